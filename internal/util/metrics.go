package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UsersRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "users_registered_total",
		Help: "Total number of users registered",
	})

	UserLoginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "user_logins_total",
		Help: "Total number of logins of existing users",
	})

	CoursesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courses_created_total",
		Help: "Total number of courses created",
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders with an open gateway session",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of order creations that failed",
	}, []string{"reason"})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	GatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_errors_total",
		Help: "Total number of failed payment gateway calls",
	}, []string{"operation"})

	PaymentsPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_paid_total",
		Help: "Total number of payments moved to paid",
	})

	PaymentsAbandonedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_abandoned_total",
		Help: "Total number of payments removed after a fail or cancel callback",
	}, []string{"outcome"})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Total number of gateway callbacks by outcome and result",
	}, []string{"outcome", "result"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_events_published_total",
		Help: "Total number of payment events written to Kafka",
	}, []string{"result"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_events_consumed_total",
		Help: "Total number of payment events consumed by the audit worker",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
