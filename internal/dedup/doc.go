// Package dedup drops repeated deliveries of the same event.
//
// The aggregate bus and the shard order streams are at-least-once. A Set
// remembers the most recent event ids and reports whether an id was seen.
// Watermarks remember the newest update time per key so a late, older update
// of the same order can be dropped.
package dedup
