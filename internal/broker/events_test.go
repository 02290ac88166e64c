package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"academix-api/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	key   string
	event interface{}
	err   error
}

func (w *recordingWriter) PublishEvent(_ context.Context, key string, event interface{}) error {
	w.key = key
	w.event = event
	return w.err
}

func paymentEvent(eventType string) *models.PaymentEvent {
	return &models.PaymentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: eventType,
			Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		TransactionID: "tran-1",
		Amount:        500,
	}
}

func TestPublishPaymentEventKeysByTransaction(t *testing.T) {
	w := &recordingWriter{}
	ep := NewEventPublisher(w)

	require.NoError(t, ep.PublishPaymentEvent(context.Background(), paymentEvent(models.EventTypePaymentPaid)))
	assert.Equal(t, "payment-tran-1", w.key)

	w.err = errors.New("broker down")
	assert.Error(t, ep.PublishPaymentEvent(context.Background(), paymentEvent(models.EventTypePaymentPaid)))
}

func TestHandleMessageRoutesPaymentEvents(t *testing.T) {
	var got *models.PaymentEvent
	eh := NewEventHandler()
	eh.OnPaymentEvent(func(_ context.Context, e *models.PaymentEvent) error {
		got = e
		return nil
	})

	value, err := json.Marshal(paymentEvent(models.EventTypePaymentAbandoned))
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, models.EventTypePaymentAbandoned, got.EventType)
	assert.Equal(t, "tran-1", got.TransactionID)
	assert.Equal(t, 500.0, got.Amount)
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	called := false
	eh := NewEventHandler()
	eh.OnPaymentEvent(func(context.Context, *models.PaymentEvent) error {
		called = true
		return nil
	})

	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"ORDER_SHIPPED"}`)})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("{")})
	assert.Error(t, err)
}
