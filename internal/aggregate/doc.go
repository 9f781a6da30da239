// Package aggregate keeps per-entity best-order summaries in sync with order events.
//
// Every transition runs the same compare-and-swap loop: load the stored aggregate
// (or start from an empty one), apply the event, re-derive the overall bests and
// write only when the content changed and the stored version is still the one
// read. A lost race restarts from a fresh read. Each successful write publishes
// exactly one update or delete event, after the written view passes validation;
// a view that fails validation is flagged for reconciliation instead.
package aggregate
