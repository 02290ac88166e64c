package worker

import (
	"context"
	"fmt"

	"academix-api/internal/broker"
	"academix-api/internal/models"
	"academix-api/internal/util"

	"go.uber.org/zap"
)

// AuditStore persists payment events
type AuditStore interface {
	AppendPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
}

// AuditWorker keeps an append-only trail of payment events. Abandoned
// payments are deleted from the payments collection, so this trail is
// the only record left of them.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        AuditStore
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, store AuditStore) *AuditWorker {
	w := &AuditWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		store:        store,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnPaymentEvent(w.record)
	return w
}

// Start consumes until ctx is cancelled
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	w.logger.Info("Stopping audit worker")
	return w.consumer.Close()
}

func (w *AuditWorker) record(ctx context.Context, event *models.PaymentEvent) error {
	ctx, span := util.StartSpan(ctx, "AuditWorker.record")
	defer span.End()

	if event.EventID == "" || event.TransactionID == "" {
		w.logger.Warn("Dropping incomplete payment event",
			zap.String("event_type", event.EventType),
			zap.String("transaction_id", event.TransactionID))
		return nil
	}

	if err := w.store.AppendPaymentEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to append payment event %s: %w", event.EventID, err)
	}

	w.logger.Debug("Payment event recorded",
		zap.String("event_type", event.EventType),
		zap.String("transaction_id", event.TransactionID))
	return nil
}
