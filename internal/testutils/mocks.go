package testutils

import (
	"context"
	"net/url"
	"sync"

	"academix-api/internal/gateway"
	"academix-api/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.SessionResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*gateway.SessionResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) ValidateTransaction(ctx context.Context, valID string) (*gateway.ValidationResponse, error) {
	args := m.Called(ctx, valID)
	if resp, ok := args.Get(0).(*gateway.ValidationResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) VerifyCallback(form url.Values) error {
	args := m.Called(form)
	return args.Error(0)
}

// RecordingPublisher keeps every published payment event
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*models.PaymentEvent
	Err    error
}

func (p *RecordingPublisher) PublishPaymentEvent(_ context.Context, event *models.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Events() []*models.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.PaymentEvent(nil), p.events...)
}

// EventTypes lists the types of the recorded events in order
func (p *RecordingPublisher) EventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType)
	}
	return types
}
