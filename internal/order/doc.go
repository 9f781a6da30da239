// Package order ranks marketplace orders.
//
// A Comparator orders summaries on one side of a book: lowest price wins for
// sells, highest for bids. Prices in different currencies are compared in USD via
// a Normalizer, which is consulted only when currencies differ. Ties go to the
// larger stock, then to the smaller order id.
//
// A Searcher finds the best valid order of a target by scanning a shard's
// best-first listing with a bounded number of fetches.
package order
