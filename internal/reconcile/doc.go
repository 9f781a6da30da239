// Package reconcile repairs aggregates that failed validation or could not be updated.
//
// Writers mark an aggregate on a Queue; the Sweeper periodically takes pending
// marks and recomputes each aggregate from its order source. Marks are keyed by
// aggregate id, so marking twice is harmless, and a mark re-added while its
// recompute runs survives that recompute.
package reconcile
