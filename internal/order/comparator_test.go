package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/union-data/internal/model"
)

type stubRates struct {
	rates map[string]decimal.Decimal
	calls int
}

func (s *stubRates) Rate(_ context.Context, _ model.Blockchain, currency string, _ time.Time) (decimal.Decimal, error) {
	s.calls++
	r, ok := s.rates[currency]
	if !ok {
		return decimal.Zero, errors.New("no rate")
	}
	return r, nil
}

func summary(id, currency, price, stock string) *model.OrderSummary {
	return &model.OrderSummary{
		Blockchain: model.Ethereum,
		ID:         id,
		Currency:   currency,
		Price:      decimal.RequireFromString(price),
		Stock:      decimal.RequireFromString(stock),
		Valid:      true,
	}
}

func TestCompareSameCurrencySkipsNormalizer(t *testing.T) {
	rates := &stubRates{}
	c := NewComparator(NewNormalizer(rates, nil))
	ctx := context.Background()

	cheap := summary("a", "ETH", "1", "1")
	dear := summary("b", "ETH", "2", "1")

	assert.True(t, c.Better(ctx, model.SideSell, cheap, dear))
	assert.True(t, c.Better(ctx, model.SideBid, dear, cheap))
	assert.Zero(t, rates.calls)
	assert.Nil(t, cheap.PriceUSD)
}

func TestCompareAcrossCurrencies(t *testing.T) {
	rates := &stubRates{rates: map[string]decimal.Decimal{
		"ETH":  decimal.NewFromInt(3000),
		"USDC": decimal.NewFromInt(1),
	}}
	c := NewComparator(NewNormalizer(rates, nil))
	ctx := context.Background()

	// 0.5 ETH = 1500 USD, 2000 USDC = 2000 USD
	eth := summary("eth", "ETH", "0.5", "1")
	usdc := summary("usdc", "USDC", "2000", "1")

	assert.True(t, c.Better(ctx, model.SideSell, eth, usdc))
	assert.True(t, c.Better(ctx, model.SideBid, usdc, eth))
	require.NotNil(t, eth.PriceUSD)
	assert.True(t, eth.PriceUSD.Equal(decimal.NewFromInt(1500)))
}

func TestCompareUnresolvedCurrencyLoses(t *testing.T) {
	rates := &stubRates{rates: map[string]decimal.Decimal{"ETH": decimal.NewFromInt(3000)}}
	c := NewComparator(NewNormalizer(rates, nil))
	ctx := context.Background()

	known := summary("a", "ETH", "100", "1")
	unknown := summary("b", "XYZ", "0.0001", "1")

	assert.True(t, c.Better(ctx, model.SideSell, known, unknown))
	assert.True(t, c.Better(ctx, model.SideBid, known, unknown))
}

func TestCompareTieBreakers(t *testing.T) {
	c := NewComparator(nil)
	ctx := context.Background()

	small := summary("a", "ETH", "1", "1")
	large := summary("b", "ETH", "1", "5")
	assert.True(t, c.Better(ctx, model.SideSell, large, small), "larger stock wins")
	assert.True(t, c.Better(ctx, model.SideBid, large, small), "larger stock wins for bids too")

	x := summary("x", "ETH", "1", "1")
	y := summary("y", "ETH", "1", "1")
	assert.True(t, c.Better(ctx, model.SideSell, x, y), "smaller id wins")
	assert.Zero(t, c.Compare(ctx, model.SideSell, x, summary("x", "ETH", "1", "1")))
}

func TestCompareInvalidAndNil(t *testing.T) {
	c := NewComparator(nil)
	ctx := context.Background()

	cheapInvalid := summary("a", "ETH", "0.1", "1")
	cheapInvalid.Valid = false
	valid := summary("b", "ETH", "9", "1")

	assert.True(t, c.Better(ctx, model.SideSell, valid, cheapInvalid))
	assert.True(t, c.Better(ctx, model.SideSell, valid, nil))
	assert.Nil(t, c.Best(ctx, model.SideSell, cheapInvalid, nil))
	assert.Equal(t, "b", c.Best(ctx, model.SideSell, cheapInvalid, valid).ID)
}

// For any pair with different USD prices the cheaper sell wins regardless of currency.
func TestComparatorTotality(t *testing.T) {
	rates := &stubRates{rates: map[string]decimal.Decimal{
		"ETH":   decimal.NewFromInt(2000),
		"MATIC": decimal.RequireFromString("0.5"),
		"USDC":  decimal.NewFromInt(1),
	}}
	c := NewComparator(NewNormalizer(rates, nil))
	ctx := context.Background()

	candidates := []*model.OrderSummary{
		summary("1", "ETH", "0.01", "1"),   // 20
		summary("2", "MATIC", "30", "1"),   // 15
		summary("3", "USDC", "17", "1"),    // 17
		summary("4", "ETH", "0.02", "1"),   // 40
		summary("5", "MATIC", "100", "1"),  // 50
		summary("6", "USDC", "16.99", "1"), // 16.99
	}

	for _, a := range candidates {
		for _, b := range candidates {
			ua, _ := c.norm.USD(ctx, a)
			ub, _ := c.norm.USD(ctx, b)
			if ua.LessThan(ub) {
				assert.True(t, c.Better(ctx, model.SideSell, a, b), "%s should beat %s", a.ID, b.ID)
				assert.True(t, c.Better(ctx, model.SideBid, b, a), "%s should beat %s on bids", b.ID, a.ID)
			}
		}
	}

	assert.Equal(t, "2", c.Best(ctx, model.SideSell, candidates...).ID)
	assert.Equal(t, "5", c.Best(ctx, model.SideBid, candidates...).ID)
}

func TestValidator(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	v := NewValidatorAt(func() time.Time { return now })
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	base := model.Order{
		ID:        "o",
		Side:      model.SideBid,
		Status:    model.StatusActive,
		Maker:     "0xmaker",
		MakeStock: decimal.NewFromInt(1),
	}

	tests := []struct {
		name   string
		mutate func(*model.Order)
		owner  string
		want   bool
	}{
		{"active", func(*model.Order) {}, "", true},
		{"filled", func(o *model.Order) { o.Status = model.StatusFilled }, "", false},
		{"cancelled", func(o *model.Order) { o.Status = model.StatusCancelled }, "", false},
		{"zero stock", func(o *model.Order) { o.MakeStock = decimal.Zero }, "", false},
		{"expired", func(o *model.Order) { o.EndedAt = &past }, "", false},
		{"not yet expired", func(o *model.Order) { o.EndedAt = &future }, "", true},
		{"self trade", func(o *model.Order) { o.Taker = o.Maker }, "", false},
		{"private order", func(o *model.Order) { o.Taker = "0xfriend" }, "", false},
		{"bid on ownership", func(*model.Order) {}, "0xother", true},
		{"owner sell", func(o *model.Order) { o.Side = model.SideSell }, "0xmaker", true},
		{"foreign sell on ownership", func(o *model.Order) { o.Side = model.SideSell }, "0xother", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mutate(&o)
			assert.Equal(t, tt.want, v.Valid(o, tt.owner))
			assert.Equal(t, tt.want, v.Summary(o, tt.owner).Valid)
		})
	}
}
