package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"academix-api/internal/errdefs"
	"academix-api/internal/gateway"
	"academix-api/internal/models"
	"academix-api/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultCallbackTTL = 24 * time.Hour
	rollbackTimeout    = 5 * time.Second
)

// CheckoutConfig holds the URLs and switches the orchestrator needs
type CheckoutConfig struct {
	PublicURL       string
	FrontendURL     string
	Currency        string
	VerifyCallbacks bool
	ValidateSuccess bool
	IdempotencyTTL  time.Duration
	OrderLockTTL    time.Duration
	CallbackTTL     time.Duration
}

// CreateOrderRequest is the customer payload of POST /orders
type CreateOrderRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Name      string `json:"name"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

type CreateOrderResponse struct {
	TransactionID string `json:"transactionId"`
	URL           string `json:"url"`
}

// CallbackInput is one gateway notification. TransactionID may be empty
// when it only arrives in the form.
type CallbackInput struct {
	TransactionID string
	Outcome       string
	Form          url.Values
}

// CallbackAck tells the edge where to send the customer
type CallbackAck struct {
	TransactionID string `json:"transactionId"`
	Outcome       string `json:"outcome"`
	Matched       bool   `json:"matched"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	RedirectURL   string `json:"redirectUrl"`
}

type CheckoutService struct {
	courses   CourseStore
	payments  PaymentStore
	gateway   PaymentGateway
	publisher EventPublisher
	cache     Cache
	cfg       CheckoutConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewCheckoutService wires the orchestrator. cache may be nil, which
// disables idempotency keys and callback de-duplication.
func NewCheckoutService(
	courses CourseStore,
	payments PaymentStore,
	gw PaymentGateway,
	publisher EventPublisher,
	cache Cache,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "BDT"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.OrderLockTTL <= 0 {
		cfg.OrderLockTTL = 30 * time.Second
	}
	if cfg.CallbackTTL <= 0 {
		cfg.CallbackTTL = defaultCallbackTTL
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")

	return &CheckoutService{
		courses:   courses,
		payments:  payments,
		gateway:   gw,
		publisher: publisher,
		cache:     cache,
		cfg:       cfg,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// CreateOrder opens a gateway session for one course purchase. The pending
// payment is written before the gateway is called and removed again if the
// gateway refuses.
func (s *CheckoutService) CreateOrder(ctx context.Context, req *CreateOrderRequest, idempotencyKey string) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateOrder")
	defer span.End()

	if req == nil || req.ProductID == "" || req.Email == "" {
		return nil, fmt.Errorf("create order: productId and email are required: %w", errdefs.ErrInvalidArgument)
	}
	span.SetAttributes(attribute.String("product.id", req.ProductID))

	if idempotencyKey != "" && s.cache != nil {
		if cached, ok := s.cachedOrder(ctx, idempotencyKey); ok {
			s.logger.Info("Returning cached order",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("transaction_id", cached.TransactionID))
			return cached, nil
		}

		lockKey := "order:" + idempotencyKey
		acquired, err := s.cache.AcquireLock(ctx, lockKey, s.cfg.OrderLockTTL)
		if err != nil {
			return nil, fmt.Errorf("create order: acquire lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("create order: request %s in progress: %w", idempotencyKey, errdefs.ErrConflict)
		}
		defer func() {
			if err := s.cache.ReleaseLock(context.Background(), lockKey); err != nil {
				s.logger.Warn("Failed to release order lock", zap.String("lock", lockKey), zap.Error(err))
			}
		}()

		// a concurrent holder may have finished while we waited on the lock
		if cached, ok := s.cachedOrder(ctx, idempotencyKey); ok {
			return cached, nil
		}
	}

	course, err := s.courses.GetCourseByID(ctx, req.ProductID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("course_lookup").Inc()
		return nil, fmt.Errorf("create order: %w", err)
	}

	tranID := uuid.New().String()
	span.SetAttributes(attribute.String("transaction.id", tranID))
	logger := s.logger.With(zap.String("transaction_id", tranID), zap.String("product_id", req.ProductID))

	payment := &models.Payment{
		TransactionID: tranID,
		PaymentData: models.PaymentData{
			Name:      req.Name,
			Email:     req.Email,
			Phone:     req.Phone,
			Address:   req.Address,
			ProductID: req.ProductID,
		},
		ProductTitle: course.Title,
		Price:        course.Price,
		Currency:     s.cfg.Currency,
		Status:       models.PaymentStatusPending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		util.OrdersFailedTotal.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("create order: %w", err)
	}

	start := time.Now()
	session, err := s.gateway.InitSession(ctx, s.sessionRequest(payment, course))
	util.GatewayRequestLatency.WithLabelValues("init_session").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		util.GatewayErrorsTotal.WithLabelValues("init_session").Inc()
		util.OrdersFailedTotal.WithLabelValues("gateway").Inc()
		logger.Error("Gateway session failed", zap.Error(err))

		// the request may already be gone; the rollback must still run
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		if _, delErr := s.payments.DeletePayment(rbCtx, tranID); delErr != nil {
			logger.Error("Failed to remove pending payment", zap.Error(delErr))
		}
		cancel()
		if !errors.Is(err, errdefs.ErrPaymentGateway) {
			err = fmt.Errorf("%w: %w", errdefs.ErrPaymentGateway, err)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	// a pending record is still accepted by the callbacks, so this is not fatal
	if err := s.payments.MarkPaymentCreated(ctx, tranID, session.SessionKey, session.GatewayPageURL); err != nil {
		logger.Error("Failed to mark payment created", zap.Error(err))
	}

	s.publish(ctx, s.paymentEvent(models.EventTypePaymentCreated, payment, "", ""))

	resp := &CreateOrderResponse{TransactionID: tranID, URL: session.GatewayPageURL}
	if idempotencyKey != "" && s.cache != nil {
		if b, err := json.Marshal(resp); err == nil {
			if err := s.cache.SetIdempotencyKey(ctx, idempotencyKey, string(b), s.cfg.IdempotencyTTL); err != nil {
				logger.Warn("Failed to cache order result", zap.Error(err))
			}
		}
	}

	util.OrdersCreatedTotal.Inc()
	logger.Info("Order created", zap.Float64("amount", payment.Price))
	return resp, nil
}

func (s *CheckoutService) cachedOrder(ctx context.Context, key string) (*CreateOrderResponse, bool) {
	val, found, err := s.cache.GetIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var resp CreateOrderResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		s.logger.Warn("Discarding unreadable cached order", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false
	}
	return &resp, true
}

func (s *CheckoutService) sessionRequest(p *models.Payment, course *models.Course) *gateway.SessionRequest {
	return &gateway.SessionRequest{
		TotalAmount:     p.Price,
		Currency:        p.Currency,
		TranID:          p.TransactionID,
		SuccessURL:      s.callbackURL(models.OutcomeSuccess, p.TransactionID),
		FailURL:         s.callbackURL(models.OutcomeFail, p.TransactionID),
		CancelURL:       s.callbackURL(models.OutcomeCancel, p.TransactionID),
		IPNURL:          s.cfg.PublicURL + "/payment/ipn",
		CustomerName:    p.PaymentData.Name,
		CustomerEmail:   p.PaymentData.Email,
		CustomerPhone:   p.PaymentData.Phone,
		CustomerAddress: p.PaymentData.Address,
		ProductName:     course.Title,
		ProductCategory: course.Category,
	}
}

func (s *CheckoutService) callbackURL(outcome, tranID string) string {
	return s.cfg.PublicURL + "/payment/" + outcome + "/" + url.PathEscape(tranID)
}

// RedirectURL is the frontend page for a finished checkout
func (s *CheckoutService) RedirectURL(outcome, tranID string) string {
	return s.cfg.FrontendURL + "/payment/" + outcome + "/" + url.PathEscape(tranID)
}

// HandleCallback applies a gateway outcome to the payment. Unknown or
// already settled transactions are acknowledged without changes.
func (s *CheckoutService) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackAck, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.HandleCallback")
	defer span.End()

	if !models.ValidOutcome(in.Outcome) {
		return nil, fmt.Errorf("callback: unknown outcome %q: %w", in.Outcome, errdefs.ErrInvalidArgument)
	}

	tranID := in.TransactionID
	if formID := in.Form.Get("tran_id"); formID != "" {
		if tranID != "" && tranID != formID {
			return nil, fmt.Errorf("callback: tran_id %q does not match %q: %w", formID, tranID, errdefs.ErrInvalidArgument)
		}
		tranID = formID
	}
	if tranID == "" {
		return nil, fmt.Errorf("callback: missing transaction id: %w", errdefs.ErrInvalidArgument)
	}

	span.SetAttributes(attribute.String("transaction.id", tranID), attribute.String("payment.outcome", in.Outcome))
	logger := s.logger.With(zap.String("transaction_id", tranID), zap.String("outcome", in.Outcome))

	if s.cfg.VerifyCallbacks {
		if err := s.gateway.VerifyCallback(in.Form); err != nil {
			util.CallbacksTotal.WithLabelValues(in.Outcome, "rejected").Inc()
			logger.Warn("Rejected unsigned callback", zap.Error(err))
			return nil, fmt.Errorf("callback %s: %w", tranID, err)
		}
		// the signature does not cover the URL, so the signed status decides
		signed, ok := outcomeForStatus(in.Form.Get("status"))
		if !gateway.Signed(in.Form, "status") || !ok || signed != in.Outcome {
			util.CallbacksTotal.WithLabelValues(in.Outcome, "rejected").Inc()
			logger.Warn("Rejected callback with mismatched status", zap.String("status", in.Form.Get("status")))
			return nil, fmt.Errorf("callback %s: signed status %q does not match %s: %w",
				tranID, in.Form.Get("status"), in.Outcome, errdefs.ErrInvalidArgument)
		}
	}

	ack := &CallbackAck{
		TransactionID: tranID,
		Outcome:       in.Outcome,
		RedirectURL:   s.RedirectURL(in.Outcome, tranID),
	}

	if s.cache != nil {
		first, err := s.cache.MarkCallbackProcessed(ctx, tranID, in.Outcome, s.cfg.CallbackTTL)
		if err != nil {
			logger.Warn("Callback de-duplication unavailable", zap.Error(err))
		} else if !first {
			ack.Duplicate = true
			util.CallbacksTotal.WithLabelValues(in.Outcome, "duplicate").Inc()
			logger.Info("Duplicate callback ignored")
			return ack, nil
		}
	}

	var err error
	if in.Outcome == models.OutcomeSuccess {
		ack.Matched, err = s.settle(ctx, tranID, in.Form.Get("val_id"), logger)
	} else {
		ack.Matched, err = s.abandon(ctx, tranID, in.Outcome, logger)
	}
	if err != nil {
		span.RecordError(err)
		util.CallbacksTotal.WithLabelValues(in.Outcome, "error").Inc()
		if s.cache != nil {
			if ferr := s.cache.ForgetCallback(context.Background(), tranID, in.Outcome); ferr != nil {
				logger.Warn("Failed to clear callback marker", zap.Error(ferr))
			}
		}
		return nil, fmt.Errorf("callback %s: %w", tranID, err)
	}

	result := "noop"
	if ack.Matched {
		result = "applied"
	}
	util.CallbacksTotal.WithLabelValues(in.Outcome, result).Inc()
	logger.Info("Callback handled", zap.Bool("matched", ack.Matched))
	return ack, nil
}

func (s *CheckoutService) settle(ctx context.Context, tranID, valID string, logger *zap.Logger) (bool, error) {
	if s.cfg.ValidateSuccess {
		if err := s.validate(ctx, tranID, valID); err != nil {
			return false, err
		}
	}

	matched, err := s.payments.MarkPaymentPaid(ctx, tranID, valID, s.now().UTC())
	if err != nil {
		return false, err
	}
	if matched == 0 {
		return false, nil
	}

	util.PaymentsPaidTotal.Inc()
	payment, err := s.payments.GetPaymentByTransactionID(ctx, tranID)
	if err != nil {
		logger.Warn("Paid payment not readable for event", zap.Error(err))
		payment = &models.Payment{TransactionID: tranID}
	}
	s.publish(ctx, s.paymentEvent(models.EventTypePaymentPaid, payment, models.OutcomeSuccess, ""))
	return true, nil
}

func (s *CheckoutService) validate(ctx context.Context, tranID, valID string) error {
	if valID == "" {
		return fmt.Errorf("success without val_id: %w", errdefs.ErrInvalidArgument)
	}

	start := time.Now()
	v, err := s.gateway.ValidateTransaction(ctx, valID)
	util.GatewayRequestLatency.WithLabelValues("validate").Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayErrorsTotal.WithLabelValues("validate").Inc()
		return err
	}
	if !v.Valid() || v.TranID != tranID {
		return fmt.Errorf("validation status=%s tran_id=%s: %w", v.Status, v.TranID, errdefs.ErrInvalidArgument)
	}

	payment, err := s.payments.GetPaymentByTransactionID(ctx, tranID)
	if errors.Is(err, errdefs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if amount, perr := strconv.ParseFloat(v.Amount, 64); perr == nil && math.Abs(amount-payment.Price) > 0.005 {
		return fmt.Errorf("validated amount %s differs from %.2f: %w", v.Amount, payment.Price, errdefs.ErrInvalidArgument)
	}
	return nil
}

func (s *CheckoutService) abandon(ctx context.Context, tranID, outcome string, logger *zap.Logger) (bool, error) {
	payment, err := s.payments.GetPaymentByTransactionID(ctx, tranID)
	if errors.Is(err, errdefs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	deleted, err := s.payments.DeletePayment(ctx, tranID)
	if err != nil {
		return false, err
	}
	if deleted == 0 {
		logger.Info("Abandon skipped for settled payment")
		return false, nil
	}

	util.PaymentsAbandonedTotal.WithLabelValues(outcome).Inc()
	s.publish(ctx, s.paymentEvent(models.EventTypePaymentAbandoned, payment, outcome, "customer "+outcome))
	return true, nil
}

// HandleIPN maps a server-to-server notification onto a callback outcome
func (s *CheckoutService) HandleIPN(ctx context.Context, form url.Values) (*CallbackAck, error) {
	outcome, ok := outcomeForStatus(form.Get("status"))
	if !ok {
		return nil, fmt.Errorf("ipn: unknown status %q: %w", form.Get("status"), errdefs.ErrInvalidArgument)
	}

	return s.HandleCallback(ctx, CallbackInput{
		TransactionID: form.Get("tran_id"),
		Outcome:       outcome,
		Form:          form,
	})
}

func outcomeForStatus(status string) (string, bool) {
	switch strings.ToUpper(status) {
	case "VALID", "VALIDATED":
		return models.OutcomeSuccess, true
	case "FAILED", "UNATTEMPTED", "EXPIRED":
		return models.OutcomeFail, true
	case "CANCELLED":
		return models.OutcomeCancel, true
	}
	return "", false
}

// GetPayment returns the payment of tranID if principal paid for it.
// Someone else's payment reads as not found.
func (s *CheckoutService) GetPayment(ctx context.Context, tranID, principal string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.GetPayment")
	defer span.End()

	payment, err := s.payments.GetPaymentByTransactionID(ctx, tranID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if principal == "" || payment.PaymentData.Email != principal {
		return nil, fmt.Errorf("get payment %s: %w", tranID, errdefs.ErrNotFound)
	}
	return payment, nil
}

func (s *CheckoutService) paymentEvent(eventType string, p *models.Payment, outcome, reason string) *models.PaymentEvent {
	return &models.PaymentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: s.now().UTC(),
		},
		TransactionID: p.TransactionID,
		ProductID:     p.PaymentData.ProductID,
		Email:         p.PaymentData.Email,
		Amount:        p.Price,
		Outcome:       outcome,
		Reason:        reason,
	}
}

// publish is best effort; the payment record stays the source of truth
func (s *CheckoutService) publish(ctx context.Context, event *models.PaymentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPaymentEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish payment event",
			zap.String("event_type", event.EventType),
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
	}
}
