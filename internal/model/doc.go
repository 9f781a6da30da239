// Package model defines shared data types used across the union data service.
//
// Conventions:
//   - Identifiers: EntityID pairs a Blockchain with its chain-local value; the string
//     form is "BLOCKCHAIN:value" and is unique across all shards.
//   - Prices and amounts: decimal.Decimal in the order's native currency unless the
//     field name says USD.
//   - Timestamps: time.Time in UTC.
package model
