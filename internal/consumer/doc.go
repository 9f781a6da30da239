// Package consumer applies routed stream events to the aggregate engine.
//
// Order events are applied by a pool of workers; pool order and activity
// events by one worker each. Event ids are deduplicated with a bounded LRU.
// An event that fails marks every aggregate it targets so the reconciliation
// sweep can recompute them from source.
package consumer
