package connection

import (
	"errors"
	"time"

	"github.com/rickgao/union-data/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Stream topics every shard subscription asks for.
const (
	TopicOrder     = "order"
	TopicPoolOrder = "pool_order"
	TopicActivity  = "activity"
)

// DefaultTopics is the topic set subscribed on every shard stream.
var DefaultTopics = []string{TopicOrder, TopicPoolOrder, TopicActivity}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// RawMessage is a message from the Manager to the router, tagged with its shard.
type RawMessage struct {
	Data       []byte
	Shard      model.Blockchain
	ReceivedAt time.Time
}

// Command is a control frame sent to a shard stream.
type Command struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params"`
}

// SubscribeParams are parameters for a subscribe command.
type SubscribeParams struct {
	Topics []string `json:"topics"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string
	APIKey       string        // sent as X-API-KEY when set
	PingInterval time.Duration // how often we ping the server
	PingTimeout  time.Duration // max time without pong before the connection is stale
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// Endpoint is one shard stream to keep open.
type Endpoint struct {
	Shard  model.Blockchain
	URL    string
	APIKey string
}

// ManagerConfig configures the stream Manager.
type ManagerConfig struct {
	Endpoints         []Endpoint
	Topics            []string
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	PingInterval      time.Duration
	PingTimeout       time.Duration
	MessageBufferSize int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Topics:            DefaultTopics,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       90 * time.Second,
		MessageBufferSize: 10000,
	}
}

// ManagerStats contains runtime statistics.
type ManagerStats struct {
	Connected  int
	Received   int64
	Dropped    int64
	Reconnects int64
}
