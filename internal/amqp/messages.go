package amqp

import (
	"encoding/json"
	"time"
)

// InsightRequestMessage asks the insight worker to regenerate the monthly
// insight for one user after a ranking run. It carries only identifiers;
// the worker fetches the ranking row from the database.
type InsightRequestMessage struct {
	UserID    int64     `json:"user_id"`
	Month     string    `json:"month"` // YYYY-MM
	Timestamp time.Time `json:"timestamp"`
}

// NewInsightRequestMessage creates a new insight request message.
func NewInsightRequestMessage(userID int64, month string) *InsightRequestMessage {
	return &InsightRequestMessage{
		UserID:    userID,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *InsightRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InsightRequestMessageFromJSON creates a message from JSON bytes
func InsightRequestMessageFromJSON(data []byte) (*InsightRequestMessage, error) {
	var msg InsightRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
