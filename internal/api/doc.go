// Package api provides the REST client for one per-chain marketplace backend.
//
// Every backend serves the same resources under /v0.1 but names its pagination
// parameters differently; a Dialect captures those differences:
//
//	GET /v0.1/items/all            items, most recently updated first or last
//	GET /v0.1/ownerships/all       ownerships by creation time
//	GET /v0.1/collections/all      collections by update time
//	GET /v0.1/activities/all       activities by date
//	GET /v0.1/orders/sell/byItem   sell orders for one item, best first
//	GET /v0.1/orders/bids/byItem   bids for one item, best first
//	GET /v0.1/orders/currencies    currencies with orders on a target
//
// All prices are decimal strings in the order's native currency.
package api
