package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SortOrder is the direction of a listing.
type SortOrder string

// Sort orders.
const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// ParseSortOrder accepts DESC, LATEST or LATEST_FIRST and ASC, EARLIEST or
// EARLIEST_FIRST in any case; empty means DESC.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToUpper(s) {
	case "", "DESC", "LATEST", "LATEST_FIRST":
		return SortDesc, nil
	case "ASC", "EARLIEST", "EARLIEST_FIRST":
		return SortAsc, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Entity is anything a shard lists.
type Entity interface {
	SortKey() SortKey
}

// SortKey orders entities in merged listings: by Time, then by ID.
type SortKey struct {
	Time time.Time
	ID   string
}

// Compare returns -1, 0 or 1 comparing k to other in ascending order.
func (k SortKey) Compare(other SortKey) int {
	if c := k.Time.Compare(other.Time); c != 0 {
		return c
	}
	switch {
	case k.ID < other.ID:
		return -1
	case k.ID > other.ID:
		return 1
	default:
		return 0
	}
}

// Item is a token tracked by one shard.
type Item struct {
	ID            EntityID        `json:"id"`
	Collection    string          `json:"collection,omitempty"`
	Creators      []string        `json:"creators,omitempty"`
	Supply        decimal.Decimal `json:"supply"`
	Deleted       bool            `json:"deleted"`
	LastUpdatedAt time.Time       `json:"lastUpdatedAt"`

	// Filled from the stored aggregate, never by a shard.
	BestSellOrder *OrderSummary `json:"bestSellOrder,omitempty"`
	BestBidOrder  *OrderSummary `json:"bestBidOrder,omitempty"`
	LastSale      *Sale         `json:"lastSale,omitempty"`
}

func (i Item) SortKey() SortKey { return SortKey{Time: i.LastUpdatedAt, ID: i.ID.String()} }

// Ownership is the balance of one item held by one owner.
type Ownership struct {
	ID        EntityID        `json:"id"`
	ItemID    EntityID        `json:"itemId"`
	Owner     string          `json:"owner"`
	Value     decimal.Decimal `json:"value"`
	CreatedAt time.Time       `json:"createdAt"`

	BestSellOrder *OrderSummary `json:"bestSellOrder,omitempty"`
}

func (o Ownership) SortKey() SortKey { return SortKey{Time: o.CreatedAt, ID: o.ID.String()} }

// Collection is a contract or program grouping items.
type Collection struct {
	ID            EntityID  `json:"id"`
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol,omitempty"`
	Owner         string    `json:"owner,omitempty"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`

	BestSellOrder *OrderSummary `json:"bestSellOrder,omitempty"`
	BestBidOrder  *OrderSummary `json:"bestBidOrder,omitempty"`
}

func (c Collection) SortKey() SortKey { return SortKey{Time: c.LastUpdatedAt, ID: c.ID.String()} }

// ActivityType names a marketplace activity.
type ActivityType string

// Activity types.
const (
	ActivityMint     ActivityType = "MINT"
	ActivityBurn     ActivityType = "BURN"
	ActivityTransfer ActivityType = "TRANSFER"
	ActivityList     ActivityType = "LIST"
	ActivityBid      ActivityType = "BID"
	ActivitySell     ActivityType = "SELL"
	ActivityCancel   ActivityType = "CANCEL_LIST"
)

// Activity is one historical marketplace event.
type Activity struct {
	ID       EntityID        `json:"id"`
	Type     ActivityType    `json:"type"`
	ItemID   *EntityID       `json:"itemId,omitempty"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	Value    decimal.Decimal `json:"value"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency,omitempty"`
	Date     time.Time       `json:"date"`
	Reverted bool            `json:"reverted"`
}

func (a Activity) SortKey() SortKey { return SortKey{Time: a.Date, ID: a.ID.String()} }

// Sale is the last sell activity recorded for an item.
type Sale struct {
	Date     time.Time       `json:"date"`
	Buyer    string          `json:"buyer"`
	Value    decimal.Decimal `json:"value"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// Equal compares two sales by value.
func (s *Sale) Equal(o *Sale) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Date.Equal(o.Date) &&
		s.Buyer == o.Buyer &&
		s.Value.Equal(o.Value) &&
		s.Price.Equal(o.Price) &&
		s.Currency == o.Currency
}
