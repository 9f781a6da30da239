package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the side of the book an order sits on.
type OrderSide string

// Order sides.
const (
	SideSell OrderSide = "SELL"
	SideBid  OrderSide = "BID"
)

// OrderStatus is the lifecycle state reported by a shard.
type OrderStatus string

// Order statuses.
const (
	StatusActive     OrderStatus = "ACTIVE"
	StatusFilled     OrderStatus = "FILLED"
	StatusCancelled  OrderStatus = "CANCELLED"
	StatusInactive   OrderStatus = "INACTIVE"
	StatusHistorical OrderStatus = "HISTORICAL"
)

// Order is a marketplace order as published by a shard.
// ItemID is set for item-level orders, CollectionID for collection-level bids and sells.
type Order struct {
	ID            string          `json:"id"`
	Blockchain    Blockchain      `json:"blockchain"`
	Platform      string          `json:"platform"`
	Side          OrderSide       `json:"side"`
	Status        OrderStatus     `json:"status"`
	Maker         string          `json:"maker"`
	Taker         string          `json:"taker,omitempty"`
	ItemID        *EntityID       `json:"itemId,omitempty"`
	CollectionID  *EntityID       `json:"collectionId,omitempty"`
	Currency      string          `json:"currency"`
	Price         decimal.Decimal `json:"price"`
	MakeStock     decimal.Decimal `json:"makeStock"`
	Origins       []string        `json:"origins,omitempty"`
	EndedAt       *time.Time      `json:"endedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastUpdatedAt time.Time       `json:"lastUpdatedAt"`
}

// Summary converts the order into the compact form stored in aggregates.
func (o Order) Summary() OrderSummary {
	return OrderSummary{
		Blockchain:    o.Blockchain,
		ID:            o.ID,
		Platform:      o.Platform,
		Maker:         o.Maker,
		Currency:      o.Currency,
		Price:         o.Price,
		Stock:         o.MakeStock,
		Valid:         true,
		Origins:       o.Origins,
		LastUpdatedAt: o.LastUpdatedAt,
	}
}

// HasOrigin reports whether the order was placed through origin.
func (o Order) HasOrigin(origin string) bool {
	for _, x := range o.Origins {
		if x == origin {
			return true
		}
	}
	return false
}

// OrderSummary is the part of an order an aggregate keeps.
// PriceUSD is filled lazily and is never part of content equality.
type OrderSummary struct {
	Blockchain    Blockchain       `json:"blockchain"`
	ID            string           `json:"id"`
	Platform      string           `json:"platform"`
	Maker         string           `json:"maker"`
	Currency      string           `json:"currency"`
	Price         decimal.Decimal  `json:"price"`
	PriceUSD      *decimal.Decimal `json:"priceUsd,omitempty"`
	Stock         decimal.Decimal  `json:"stock"`
	Valid         bool             `json:"valid"`
	Origins       []string         `json:"origins,omitempty"`
	LastUpdatedAt time.Time        `json:"lastUpdatedAt"`
}

// Equal compares two summaries by content.
func (s *OrderSummary) Equal(o *OrderSummary) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Origins) != len(o.Origins) {
		return false
	}
	for i := range s.Origins {
		if s.Origins[i] != o.Origins[i] {
			return false
		}
	}
	return s.Blockchain == o.Blockchain &&
		s.ID == o.ID &&
		s.Platform == o.Platform &&
		s.Maker == o.Maker &&
		s.Currency == o.Currency &&
		s.Price.Equal(o.Price) &&
		s.Stock.Equal(o.Stock) &&
		s.Valid == o.Valid &&
		s.LastUpdatedAt.Equal(o.LastUpdatedAt)
}

// Clone returns a deep copy.
func (s *OrderSummary) Clone() *OrderSummary {
	if s == nil {
		return nil
	}
	c := *s
	if s.PriceUSD != nil {
		p := *s.PriceUSD
		c.PriceUSD = &p
	}
	if s.Origins != nil {
		c.Origins = append([]string(nil), s.Origins...)
	}
	return &c
}
