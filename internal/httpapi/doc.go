// Package httpapi serves the unified read API over gin.
//
// Listing endpoints fan out through the merge engines and enrich the page
// with stored aggregates. A malformed continuation is a 400; shard failures
// only shrink the page.
package httpapi
