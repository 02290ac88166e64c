package worker

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

type fakeAuditStore struct {
	events []*models.PaymentEvent
	err    error
}

func (s *fakeAuditStore) AppendPaymentEvent(_ context.Context, event *models.PaymentEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func message(t *testing.T, event *models.PaymentEvent) kafka.Message {
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("payment-" + event.TransactionID), Value: value}
}

func TestAuditWorkerRecordsPaymentEvents(t *testing.T) {
	store := &fakeAuditStore{}
	w := NewAuditWorker(nil, store)

	event := &models.PaymentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypePaymentAbandoned,
			Timestamp: time.Now().UTC(),
		},
		TransactionID: "tran-1",
		Outcome:       models.OutcomeCancel,
	}

	require.NoError(t, w.eventHandler.HandleMessage(context.Background(), message(t, event)))
	require.Len(t, store.events, 1)
	assert.Equal(t, "tran-1", store.events[0].TransactionID)
	assert.Equal(t, models.OutcomeCancel, store.events[0].Outcome)
}

func TestAuditWorkerDropsIncompleteEvents(t *testing.T) {
	store := &fakeAuditStore{}
	w := NewAuditWorker(nil, store)

	event := &models.PaymentEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypePaymentPaid}}

	require.NoError(t, w.eventHandler.HandleMessage(context.Background(), message(t, event)))
	assert.Empty(t, store.events)
}

func TestAuditWorkerSurfacesStoreErrors(t *testing.T) {
	store := &fakeAuditStore{err: errors.New("mongo down")}
	w := NewAuditWorker(nil, store)

	event := &models.PaymentEvent{
		BaseEvent:     models.BaseEvent{EventID: "evt-2", EventType: models.EventTypePaymentPaid},
		TransactionID: "tran-2",
	}

	err := w.eventHandler.HandleMessage(context.Background(), message(t, event))
	assert.Error(t, err, "store errors reach the consumer loop")
}
