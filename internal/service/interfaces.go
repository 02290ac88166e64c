package service

import (
	"context"
	"net/url"
	"time"

	"academix-api/internal/gateway"
	"academix-api/internal/models"
	"academix-api/internal/store"
)

type UserStore interface {
	InsertUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpsertUserProfile(ctx context.Context, email string, fields map[string]interface{}) (*store.WriteResult, error)
}

type CourseStore interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListCoursesByOwner(ctx context.Context, email string) ([]models.Course, error)
	GetCourseByID(ctx context.Context, id string) (*models.Course, error)
	CreateCourse(ctx context.Context, course *models.Course) error
	UpsertCourse(ctx context.Context, id string, fields map[string]interface{}) (*store.WriteResult, error)
	DeleteCourse(ctx context.Context, id string) (int64, error)
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByTransactionID(ctx context.Context, tranID string) (*models.Payment, error)
	MarkPaymentCreated(ctx context.Context, tranID, sessionKey, gatewayURL string) error
	MarkPaymentPaid(ctx context.Context, tranID, validationID string, paidAt time.Time) (int64, error)
	DeletePayment(ctx context.Context, tranID string) (int64, error)
}

// TokenIssuer mints tokens for an authenticated email
type TokenIssuer interface {
	Issue(email string) (string, error)
}

// PaymentGateway is the external checkout provider
type PaymentGateway interface {
	InitSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.SessionResponse, error)
	ValidateTransaction(ctx context.Context, valID string) (*gateway.ValidationResponse, error)
	VerifyCallback(form url.Values) error
}

type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
}

// Cache backs order idempotency and callback de-duplication
type Cache interface {
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
	MarkCallbackProcessed(ctx context.Context, tranID, outcome string, ttl time.Duration) (bool, error)
	ForgetCallback(ctx context.Context, tranID, outcome string) error
}
