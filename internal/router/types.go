package router

import (
	"encoding/json"
	"time"

	"github.com/rickgao/union-data/internal/api"
	"github.com/rickgao/union-data/internal/model"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	OrderBufferSize     int
	PoolOrderBufferSize int
	ActivityBufferSize  int
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		OrderBufferSize:     5000,
		PoolOrderBufferSize: 1000,
		ActivityBufferSize:  1000,
	}
}

// OrderMsg is a changed order from a shard stream.
type OrderMsg struct {
	EventID    string
	Shard      model.Blockchain
	Order      model.Order
	ReceivedAt time.Time
}

// PoolOrderMsg says a pool order joined or left an item.
type PoolOrderMsg struct {
	EventID    string
	Shard      model.Blockchain
	ItemID     model.EntityID
	Order      model.Order
	Include    bool
	ReceivedAt time.Time
}

// ActivityMsg is an activity from a shard stream.
type ActivityMsg struct {
	EventID    string
	Shard      model.Blockchain
	Activity   model.Activity
	ReceivedAt time.Time
}

// Wire types for JSON parsing.

// envelope is the frame shape shared by every stream topic. Data is decoded
// per type once the topic is known.
type envelope struct {
	Type    string          `json:"type"`
	EventID string          `json:"eventId"`
	Data    json.RawMessage `json:"data"`
}

// poolOrderWire is the data of a pool_order frame.
type poolOrderWire struct {
	ItemID string       `json:"itemId"`
	Action string       `json:"action"` // "include" or "exclude"
	Order  api.APIOrder `json:"order"`
}
