package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/thijsmie/pocketbase/pkg/models"
)

// Action is the kind of change a realtime event reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ErrUnknownAction is returned when a pushed message carries an action other
// than create, update or delete.
var ErrUnknownAction = errors.New("realtime: unknown event action")

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Event is a record change pushed for a subscribed topic key.
type Event struct {
	Topic  string
	Action Action
	Record models.Record
}

// ParseEvent decodes the data of a pushed message.
func ParseEvent(topic string, data []byte) (*Event, error) {
	var payload struct {
		Action Action        `json:"action"`
		Record models.Record `json:"record"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("realtime: decode event for %s: %w", topic, err)
	}
	if !payload.Action.Valid() {
		return nil, fmt.Errorf("%w %q for %s", ErrUnknownAction, payload.Action, topic)
	}
	return &Event{Topic: topic, Action: payload.Action, Record: payload.Record}, nil
}

func (e *Event) clone() *Event {
	return &Event{Topic: e.Topic, Action: e.Action, Record: e.Record.Clone()}
}

// Handler processes realtime events
type Handler interface {
	Handle(ctx context.Context, event *Event) error
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, event *Event) error

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
