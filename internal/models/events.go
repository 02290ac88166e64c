package models

import "time"

// Event types
const (
	EventTypePaymentCreated   = "PAYMENT_CREATED"
	EventTypePaymentPaid      = "PAYMENT_PAID"
	EventTypePaymentAbandoned = "PAYMENT_ABANDONED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id" bson:"eventId"`
	EventType string    `json:"event_type" bson:"eventType"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// PaymentEvent is published on every payment state transition and kept
// as the audit trail once abandoned payments are deleted.
type PaymentEvent struct {
	BaseEvent     `bson:",inline"`
	TransactionID string  `json:"transaction_id" bson:"transactionId"`
	ProductID     string  `json:"product_id,omitempty" bson:"productId,omitempty"`
	Email         string  `json:"email,omitempty" bson:"email,omitempty"`
	Amount        float64 `json:"amount,omitempty" bson:"amount,omitempty"`
	Outcome       string  `json:"outcome,omitempty" bson:"outcome,omitempty"`
	Reason        string  `json:"reason,omitempty" bson:"reason,omitempty"`
}
