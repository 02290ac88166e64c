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
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InsertUser inserts a new user. A duplicate email yields ErrAlreadyExists.
func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.Collection(UserCollection).InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("user %s: %w", user.Email, errdefs.ErrAlreadyExists)
	}
	if err != nil {
		return storeErr("insert user", err)
	}

	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.Collection(UserCollection).FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		return nil, notFoundOr("user "+email, err)
	}
	return &user, nil
}

// ListUsers retrieves all users
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	cur, err := s.db.Collection(UserCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, storeErr("list users", err)
	}

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, storeErr("decode users", err)
	}
	return users, nil
}

// UpsertUserProfile sets profile fields on the user with email, creating it if absent
func (s *Store) UpsertUserProfile(ctx context.Context, email string, fields map[string]interface{}) (*WriteResult, error) {
	update := bson.M{
		"$set":         setFields(fields, time.Now().UTC()),
		"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
	}

	res, err := s.db.Collection(UserCollection).UpdateOne(ctx,
		bson.M{"email": email}, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, storeErr("upsert user "+email, err)
	}
	return toWriteResult(res), nil
}
