// Package aggcache keeps recently read aggregates in memory for the read API.
//
// Entries expire after a TTL and are replaced or dropped as soon as the
// listener announces a newer version on the event bus, so readers never see a
// version older than the last event this process received.
package aggcache
