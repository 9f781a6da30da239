// Package router turns raw shard stream frames into typed order, pool order
// and activity messages.
//
// Frames are JSON envelopes {"type", "eventId", "data"}. Parsed messages go to
// one growable buffer per type so a slow consumer never blocks the streams.
// Malformed frames are counted and dropped.
package router
