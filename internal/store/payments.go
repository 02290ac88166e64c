package store

import (
	"context"
	"fmt"
	"time"

	"academix-api/internal/errdefs"
	"academix-api/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// CreatePayment inserts a payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.Collection(PaymentCollection).InsertOne(ctx, payment)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("payment %s: %w", payment.TransactionID, errdefs.ErrAlreadyExists)
	}
	if err != nil {
		return storeErr("insert payment", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		payment.ID = id
	}
	return nil
}

// GetPaymentByTransactionID retrieves a payment by transaction id
func (s *Store) GetPaymentByTransactionID(ctx context.Context, tranID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.Collection(PaymentCollection).FindOne(ctx, bson.M{"transactionId": tranID}).Decode(&payment)
	if err != nil {
		return nil, notFoundOr("payment "+tranID, err)
	}
	return &payment, nil
}

// MarkPaymentCreated records the gateway session on a pending payment
func (s *Store) MarkPaymentCreated(ctx context.Context, tranID, sessionKey, gatewayURL string) error {
	filter := bson.M{
		"transactionId": tranID,
		"status":        models.PaymentStatusPending,
	}
	update := bson.M{"$set": bson.M{
		"status":     models.PaymentStatusCreated,
		"sessionKey": sessionKey,
		"gatewayUrl": gatewayURL,
	}}

	if _, err := s.db.Collection(PaymentCollection).UpdateOne(ctx, filter, update); err != nil {
		return storeErr("mark payment created "+tranID, err)
	}
	return nil
}

// MarkPaymentPaid moves an unpaid payment to paid. It returns the number of
// matched records, which is zero for unknown, deleted or already paid ids.
func (s *Store) MarkPaymentPaid(ctx context.Context, tranID, validationID string, paidAt time.Time) (int64, error) {
	filter := bson.M{
		"transactionId": tranID,
		"status": bson.M{"$in": bson.A{
			models.PaymentStatusPending,
			models.PaymentStatusCreated,
		}},
	}
	set := bson.M{
		"paid":   true,
		"paidAt": paidAt,
		"status": models.PaymentStatusPaid,
	}
	if validationID != "" {
		set["validationId"] = validationID
	}

	res, err := s.db.Collection(PaymentCollection).UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, storeErr("mark payment paid "+tranID, err)
	}
	return res.MatchedCount, nil
}

// DeletePayment removes an unpaid payment, returning the number of deleted records.
// Paid payments are terminal and are never removed.
func (s *Store) DeletePayment(ctx context.Context, tranID string) (int64, error) {
	filter := bson.M{
		"transactionId": tranID,
		"paid":          bson.M{"$ne": true},
	}

	res, err := s.db.Collection(PaymentCollection).DeleteOne(ctx, filter)
	if err != nil {
		return 0, storeErr("delete payment "+tranID, err)
	}
	return res.DeletedCount, nil
}

// AppendPaymentEvent stores an audit event. Re-delivered events are ignored.
func (s *Store) AppendPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	_, err := s.db.Collection(PaymentEventCollection).InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return storeErr("append payment event", err)
	}
	return nil
}
