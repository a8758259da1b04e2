package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event types.
const (
	EventContributionCreated = "contribution.created"
	EventContributionDeleted = "contribution.deleted"
	EventGoalCreated         = "goal.created"
	EventGoalCompleted       = "goal.completed"
	EventGoalDeleted         = "goal.deleted"
	EventLedgerResynced      = "ledger.resynced"
)

// LedgerEvent announces a committed ledger change. It carries ids and the
// moved amount only; consumers read the records back from the store.
type LedgerEvent struct {
	Type           string    `json:"type"`
	UserID         string    `json:"user_id"`
	GoalID         string    `json:"goal_id,omitempty"`
	ContributionID string    `json:"contribution_id,omitempty"`
	AccountID      string    `json:"account_id,omitempty"`
	AmountCents    int64     `json:"amount_cents,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(eventType, userID, goalID string) LedgerEvent {
	return LedgerEvent{
		Type:      eventType,
		UserID:    userID,
		GoalID:    goalID,
		Timestamp: time.Now().UTC(),
	}
}

func (m LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
