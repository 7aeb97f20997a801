package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseExportMessage is a lightweight pointer to an approved expense.
// The worker fetches the full record from the database, so only the ID
// and the resolution timestamp travel over the wire.
type ExpenseExportMessage struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseExportMessage(id uint64) *ExpenseExportMessage {
	return &ExpenseExportMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseExportMessageFromJSON(data []byte) (*ExpenseExportMessage, error) {
	var msg ExpenseExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
