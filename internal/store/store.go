package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"academix-api/internal/errdefs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names in academixDB
const (
	UserCollection         = "userCollection"
	CourseCollection       = "courseCollection"
	PaymentCollection      = "paymentCollection"
	PaymentEventCollection = "paymentEventCollection"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// WriteResult summarises an update or upsert
type WriteResult struct {
	Matched    int64  `json:"matchedCount"`
	Modified   int64  `json:"modifiedCount"`
	Upserted   int64  `json:"upsertedCount"`
	UpsertedID string `json:"upsertedId,omitempty"`
}

// NewStore connects to MongoDB and verifies the connection
func NewStore(ctx context.Context, uri, dbName string) (*Store, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1).
		SetStrict(true).
		SetDeprecationErrors(true)

	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(serverAPI).
		SetMaxPoolSize(25).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the underlying client
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping checks the primary is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// EnsureIndexes creates the unique indexes the service relies on for
// identity and transaction uniqueness.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		UserCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CourseCollection: {
			{Keys: bson.D{{Key: "userEmail", Value: 1}}},
		},
		PaymentCollection: {
			{Keys: bson.D{{Key: "transactionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		PaymentEventCollection: {
			{Keys: bson.D{{Key: "eventId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "transactionId", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return storeErr("create indexes on "+coll, err)
		}
	}
	return nil
}

// GetDB returns the underlying database handle
func (s *Store) GetDB() *mongo.Database {
	return s.db
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errdefs.ErrStore, err)
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, errdefs.ErrNotFound)
	}
	return storeErr(op, err)
}

func toWriteResult(res *mongo.UpdateResult) *WriteResult {
	out := &WriteResult{
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
		Upserted: res.UpsertedCount,
	}
	if id, ok := res.UpsertedID.(interface{ Hex() string }); ok {
		out.UpsertedID = id.Hex()
	}
	return out
}

// setFields builds a $set document from allow-listed fields, stamping updatedAt.
func setFields(fields map[string]interface{}, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	for k, v := range fields {
		set[k] = v
	}
	return set
}
