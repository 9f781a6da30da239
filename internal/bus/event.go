// Package bus publishes aggregate change events.
//
// Delivery is at-least-once: subscribers must drop events whose EventID they
// have already handled (see internal/dedup).
package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/union-data/internal/model"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus closed")

// EventType distinguishes updates from deletions.
type EventType string

// Event types.
const (
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one aggregate transition. Aggregate is nil for deletions.
type Event struct {
	EventID   string              `json:"eventId"`
	Type      EventType           `json:"type"`
	Kind      model.AggregateKind `json:"kind"`
	EntityID  model.EntityID      `json:"entityId"`
	Aggregate *model.Aggregate    `json:"aggregate,omitempty"`
	At        time.Time           `json:"at"`
}

// eventSpace namespaces event ids derived from aggregate transitions.
var eventSpace = uuid.MustParse("6f1c3a52-9d7e-4b0a-8c2f-5e4d3b2a1f00")

// TransitionID returns the event id of one transition of id. Publishing the same
// transition again reuses it, so subscribers can drop the repeat.
func TransitionID(id model.AggregateID, version int64, typ EventType) string {
	return uuid.NewSHA1(eventSpace, []byte(fmt.Sprintf("%s/%d/%s", id, version, typ))).String()
}

// NewUpdateEvent builds an update event carrying agg.
func NewUpdateEvent(agg *model.Aggregate, at time.Time) Event {
	return Event{
		EventID:   TransitionID(agg.ID, agg.Version, EventUpdate),
		Type:      EventUpdate,
		Kind:      agg.ID.Kind,
		EntityID:  agg.ID.ID,
		Aggregate: agg,
		At:        at,
	}
}

// NewDeleteEvent builds the delete event that follows version of id.
func NewDeleteEvent(id model.AggregateID, version int64, at time.Time) Event {
	return Event{
		EventID:  TransitionID(id, version, EventDelete),
		Type:     EventDelete,
		Kind:     id.Kind,
		EntityID: id.ID,
		At:       at,
	}
}

// Channel returns the pub/sub channel for events of kind under prefix.
func Channel(prefix string, kind model.AggregateKind) string {
	return prefix + "." + string(kind)
}
