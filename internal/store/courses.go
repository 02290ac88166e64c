package store

import (
	"context"
	"fmt"
	"time"

	"academix-api/internal/errdefs"
	"academix-api/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("course id %q: %w", id, errdefs.ErrInvalidArgument)
	}
	return oid, nil
}

// ListCourses retrieves all courses
func (s *Store) ListCourses(ctx context.Context) ([]models.Course, error) {
	return s.findCourses(ctx, bson.M{})
}

// ListCoursesByOwner retrieves courses created by email
func (s *Store) ListCoursesByOwner(ctx context.Context, email string) ([]models.Course, error) {
	return s.findCourses(ctx, bson.M{"userEmail": email})
}

func (s *Store) findCourses(ctx context.Context, filter bson.M) ([]models.Course, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.db.Collection(CourseCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("list courses", err)
	}

	courses := []models.Course{}
	if err := cur.All(ctx, &courses); err != nil {
		return nil, storeErr("decode courses", err)
	}
	return courses, nil
}

// GetCourseByID retrieves a course by its hex id
func (s *Store) GetCourseByID(ctx context.Context, id string) (*models.Course, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var course models.Course
	if err := s.db.Collection(CourseCollection).FindOne(ctx, bson.M{"_id": oid}).Decode(&course); err != nil {
		return nil, notFoundOr("course "+id, err)
	}
	return &course, nil
}

// CreateCourse inserts a new course
func (s *Store) CreateCourse(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	res, err := s.db.Collection(CourseCollection).InsertOne(ctx, course)
	if err != nil {
		return storeErr("insert course", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		course.ID = id
	}
	return nil
}

// UpsertCourse sets fields on a course, creating it if absent
func (s *Store) UpsertCourse(ctx context.Context, id string, fields map[string]interface{}) (*WriteResult, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set":         setFields(fields, now),
		"$setOnInsert": bson.M{"createdAt": now},
	}

	res, err := s.db.Collection(CourseCollection).UpdateOne(ctx,
		bson.M{"_id": oid}, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, storeErr("upsert course "+id, err)
	}
	return toWriteResult(res), nil
}

// DeleteCourse removes a course, returning the number of deleted documents
func (s *Store) DeleteCourse(ctx context.Context, id string) (int64, error) {
	oid, err := parseID(id)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Collection(CourseCollection).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return 0, storeErr("delete course "+id, err)
	}
	return res.DeletedCount, nil
}
