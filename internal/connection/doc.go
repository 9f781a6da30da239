// Package connection maintains the per-shard event streams.
//
// Each shard exposes a WebSocket that pushes order, pool order and activity
// events after a subscribe command. The Manager:
//   - keeps one Client per shard and re-subscribes after every reconnect
//   - reconnects with exponential backoff
//   - tags frames with their shard and forwards them to the router
package connection
