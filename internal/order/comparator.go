package order

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/union-data/internal/model"
)

// Comparator is a deterministic total order over order summaries.
type Comparator struct {
	norm *Normalizer
}

// NewComparator creates a Comparator. A nil normalizer makes cross-currency
// comparisons fall through to the tie-breakers.
func NewComparator(norm *Normalizer) *Comparator {
	return &Comparator{norm: norm}
}

// Compare returns a negative number when a is better than b on side, positive when
// b is better and zero only when both are the same order. Nil and invalid summaries
// always lose.
func (c *Comparator) Compare(ctx context.Context, side model.OrderSide, a, b *model.OrderSummary) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Valid != b.Valid:
		if a.Valid {
			return -1
		}
		return 1
	}

	if r := c.comparePrice(ctx, side, a, b); r != 0 {
		return r
	}
	// Larger stock wins.
	if r := b.Stock.Cmp(a.Stock); r != 0 {
		return r
	}
	return strings.Compare(a.ID, b.ID)
}

func (c *Comparator) comparePrice(ctx context.Context, side model.OrderSide, a, b *model.OrderSummary) int {
	var pa, pb decimal.Decimal
	if a.Currency == b.Currency {
		pa, pb = a.Price, b.Price
	} else {
		ua, okA := c.norm.USD(ctx, a)
		ub, okB := c.norm.USD(ctx, b)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		pa, pb = ua, ub
	}

	r := pa.Cmp(pb)
	if side == model.SideBid {
		return -r
	}
	return r
}

// Best returns the best valid candidate on side, or nil when there is none.
func (c *Comparator) Best(ctx context.Context, side model.OrderSide, candidates ...*model.OrderSummary) *model.OrderSummary {
	var best *model.OrderSummary
	for _, s := range candidates {
		if s == nil || !s.Valid {
			continue
		}
		if best == nil || c.Compare(ctx, side, s, best) < 0 {
			best = s
		}
	}
	return best
}

// Better reports whether a strictly beats b on side.
func (c *Comparator) Better(ctx context.Context, side model.OrderSide, a, b *model.OrderSummary) bool {
	return c.Compare(ctx, side, a, b) < 0
}
