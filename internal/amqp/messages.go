package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"feedesk/internal/ledger"
)

// PaymentChangeMessage announces a change to one payment row. Consumers load
// the payment itself from the shared store.
type PaymentChangeMessage struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	FeeID     string    `json:"fee_id"`
	UserID    string    `json:"user_id"`
	PaidAt    time.Time `json:"paid_at"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPaymentChangeMessage(ev ledger.ChangeEvent) *PaymentChangeMessage {
	return &PaymentChangeMessage{
		Type:      string(ev.Type),
		PaymentID: ev.PaymentID,
		FeeID:     ev.FeeID,
		UserID:    ev.UserID,
		PaidAt:    ev.At,
		Timestamp: time.Now(),
	}
}

func (m *PaymentChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Event converts the message back to a change event.
func (m *PaymentChangeMessage) Event() ledger.ChangeEvent {
	return ledger.ChangeEvent{
		Type:      ledger.ChangeType(m.Type),
		PaymentID: m.PaymentID,
		FeeID:     m.FeeID,
		UserID:    m.UserID,
		At:        m.PaidAt,
	}
}

func PaymentChangeMessageFromJSON(data []byte) (*PaymentChangeMessage, error) {
	var msg PaymentChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.PaymentID == "" {
		return nil, fmt.Errorf("payment change message without payment_id")
	}
	return &msg, nil
}
