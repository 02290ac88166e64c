package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"academix-api/internal/models"
	"academix-api/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is the producer side used by EventPublisher
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing payment events
type EventPublisher struct {
	producer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventWriter) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPaymentEvent publishes a payment lifecycle event keyed by transaction
// so every event of one payment lands on the same partition.
func (ep *EventPublisher) PublishPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	key := fmt.Sprintf("payment-%s", event.TransactionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// NoopPublisher drops events; used when Kafka is disabled
type NoopPublisher struct{}

func (NoopPublisher) PublishPaymentEvent(context.Context, *models.PaymentEvent) error { return nil }

// EventHandler handles incoming events
type EventHandler struct {
	onPaymentEvent func(context.Context, *models.PaymentEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPaymentEvent registers a handler for all payment events
func (eh *EventHandler) OnPaymentEvent(handler func(context.Context, *models.PaymentEvent) error) {
	eh.onPaymentEvent = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentCreated, models.EventTypePaymentPaid, models.EventTypePaymentAbandoned:
		if eh.onPaymentEvent == nil {
			return nil
		}
		var event models.PaymentEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
		}
		return eh.onPaymentEvent(ctx, &event)

	default:
		eh.logger.Warn("Unhandled event type",
			zap.String("event_type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
	}

	return nil
}
