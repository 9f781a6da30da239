// Package database stores aggregates and reconciliation marks in PostgreSQL through pgx.
//
// Aggregates are kept as one JSONB document per (kind, entity id) with a version
// column that every write compares and increments.
package database
