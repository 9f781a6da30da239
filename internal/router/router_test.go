package router

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/rickgao/union-data/internal/buffer"
	"github.com/rickgao/union-data/internal/connection"
	"github.com/rickgao/union-data/internal/model"
)

func startRouter(t *testing.T) (chan connection.RawMessage, Router) {
	t.Helper()
	input := make(chan connection.RawMessage, 10)
	r := NewRouter(DefaultRouterConfig(), input, slog.Default())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})
	return input, r
}

func receive[T any](t *testing.T, b *buffer.Growable[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ReceiveContext(ctx)
	if !ok {
		t.Fatal("timeout waiting for routed message")
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()

	if cfg.OrderBufferSize != 5000 {
		t.Errorf("OrderBufferSize = %d, want 5000", cfg.OrderBufferSize)
	}
	if cfg.PoolOrderBufferSize != 1000 {
		t.Errorf("PoolOrderBufferSize = %d, want 1000", cfg.PoolOrderBufferSize)
	}
	if cfg.ActivityBufferSize != 1000 {
		t.Errorf("ActivityBufferSize = %d, want 1000", cfg.ActivityBufferSize)
	}
}

func TestRouter_Order(t *testing.T) {
	input, r := startRouter(t)
	now := time.Now()

	input <- connection.RawMessage{
		Shard:      model.Ethereum,
		ReceivedAt: now,
		Data: []byte(`{"type":"order","eventId":"ev-1","data":{
			"id":"0xabc","platform":"RARIBLE","side":"sell","status":"active",
			"maker":"0xmaker","itemId":"0xtoken:1","currency":"ETH","price":"1.5","makeStock":"1"}}`),
	}

	msg := receive(t, r.Buffers().Order)
	if msg.EventID != "ev-1" {
		t.Errorf("EventID = %q, want ev-1", msg.EventID)
	}
	if msg.Shard != model.Ethereum {
		t.Errorf("Shard = %v, want %v", msg.Shard, model.Ethereum)
	}
	if !msg.ReceivedAt.Equal(now) {
		t.Errorf("ReceivedAt = %v, want %v", msg.ReceivedAt, now)
	}
	o := msg.Order
	if o.ID != "0xabc" || o.Side != model.SideSell || o.Status != model.StatusActive {
		t.Errorf("Order = %+v", o)
	}
	if o.ItemID == nil || o.ItemID.String() != "ETHEREUM:0xtoken:1" {
		t.Errorf("ItemID = %v, want ETHEREUM:0xtoken:1", o.ItemID)
	}
	if o.Price.String() != "1.5" {
		t.Errorf("Price = %v, want 1.5", o.Price)
	}
}

func TestRouter_PoolOrder(t *testing.T) {
	input, r := startRouter(t)

	input <- connection.RawMessage{
		Shard: model.Polygon,
		Data: []byte(`{"type":"pool_order","eventId":"ev-2","data":{
			"itemId":"0xtoken:7","action":"EXCLUDE","order":{"id":"pool-1","side":"sell","currency":"MATIC","price":"3"}}}`),
	}

	msg := receive(t, r.Buffers().PoolOrder)
	if msg.Include {
		t.Error("Include = true, want false")
	}
	if msg.ItemID.String() != "POLYGON:0xtoken:7" {
		t.Errorf("ItemID = %v", msg.ItemID)
	}
	if msg.Order.ID != "pool-1" || msg.Order.Blockchain != model.Polygon {
		t.Errorf("Order = %+v", msg.Order)
	}
}

func TestRouter_Activity(t *testing.T) {
	input, r := startRouter(t)

	input <- connection.RawMessage{
		Shard: model.Flow,
		Data: []byte(`{"type":"activity","eventId":"ev-3","data":{
			"id":"act-1","type":"sell","itemId":"A.1234.Token:5","price":"10","currency":"FLOW","date":"2024-03-01T10:00:00Z"}}`),
	}

	msg := receive(t, r.Buffers().Activity)
	a := msg.Activity
	if a.Type != model.ActivitySell {
		t.Errorf("Type = %v, want %v", a.Type, model.ActivitySell)
	}
	if a.ItemID == nil || a.ItemID.String() != "FLOW:A.1234.Token:5" {
		t.Errorf("ItemID = %v", a.ItemID)
	}
	if a.Date.IsZero() {
		t.Error("expected parsed date")
	}
}

func TestRouter_BadFrames(t *testing.T) {
	input, r := startRouter(t)

	frames := []string{
		`not json`,
		`{"type":"order"}`,
		`{"type":"order","data":{"side":"sell"}}`,
		`{"type":"pool_order","data":{"itemId":"x","action":"swap","order":{"id":"p"}}}`,
		`{"type":"pool_order","data":{"action":"include","order":{"id":"p"}}}`,
	}
	for _, f := range frames {
		input <- connection.RawMessage{Shard: model.Ethereum, Data: []byte(f)}
	}
	input <- connection.RawMessage{Shard: model.Ethereum, Data: []byte(`{"type":"heartbeat"}`)}
	input <- connection.RawMessage{Shard: model.Ethereum, Data: []byte(`{"type":"subscribed"}`)}

	waitFor(t, func() bool { return r.Stats().MessagesReceived == int64(len(frames)+2) })

	stats := r.Stats()
	if stats.ParseErrors != int64(len(frames)) {
		t.Errorf("ParseErrors = %d, want %d", stats.ParseErrors, len(frames))
	}
	if stats.UnknownMessages != 1 {
		t.Errorf("UnknownMessages = %d, want 1", stats.UnknownMessages)
	}
	if stats.MessagesRouted != 0 {
		t.Errorf("MessagesRouted = %d, want 0", stats.MessagesRouted)
	}
}

func TestRouter_StopClosesBuffers(t *testing.T) {
	input := make(chan connection.RawMessage, 1)
	r := NewRouter(DefaultRouterConfig(), input, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if _, ok := r.Buffers().Order.Receive(); ok {
		t.Error("expected closed order buffer")
	}
}
