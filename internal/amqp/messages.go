package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action names the kind of change an event reports.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	default:
		return false
	}
}

// ExpenseEvent announces a committed change to one ledger record. Consumers
// fetch the record itself if they need it.
type ExpenseEvent struct {
	ID        int64     `json:"id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent creates an event stamped with the current time
func NewExpenseEvent(id int64, action Action) *ExpenseEvent {
	return &ExpenseEvent{
		ID:        id,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes an event and rejects unknown actions
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var e ExpenseEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q", e.Action)
	}
	return &e, nil
}
