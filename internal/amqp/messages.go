package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType names a ledger change.
type EventType string

const (
	EventExpenseAdded       EventType = "expense.added"
	EventExpenseDeleted     EventType = "expense.deleted"
	EventLedgerCleared      EventType = "ledger.cleared"
	EventGoalSet            EventType = "goal.set"
	EventGoalCleared        EventType = "goal.cleared"
	EventPreferencesUpdated EventType = "preferences.updated"
	EventRatesRefreshed     EventType = "rates.refreshed"
)

var ErrUnknownEventType = errors.New("unknown event type")

func (t EventType) Valid() bool {
	switch t {
	case EventExpenseAdded, EventExpenseDeleted, EventLedgerCleared, EventGoalSet,
		EventGoalCleared, EventPreferencesUpdated, EventRatesRefreshed:
		return true
	}
	return false
}

// LedgerEvent announces that the snapshot changed. It carries only the version;
// consumers reload the snapshot from the shared store.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	ExpenseID string    `json:"expense_id,omitempty"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(t EventType, version int64, expenseID string) LedgerEvent {
	return LedgerEvent{
		Type:      t,
		ExpenseID: expenseID,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown types.
func LedgerEventFromJSON(data []byte) (LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return LedgerEvent{}, err
	}
	if !e.Type.Valid() {
		return LedgerEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	return e, nil
}
