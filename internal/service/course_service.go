package service

import (
	"context"
	"fmt"
	"strings"

	"academix-api/internal/errdefs"
	"academix-api/internal/models"
	"academix-api/internal/store"
	"academix-api/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CourseService struct {
	store  CourseStore
	logger *zap.Logger
}

func NewCourseService(store CourseStore) *CourseService {
	return &CourseService{
		store:  store,
		logger: util.GetLogger(),
	}
}

func (s *CourseService) ListCourses(ctx context.Context) ([]models.Course, error) {
	ctx, span := util.StartSpan(ctx, "CourseService.ListCourses")
	defer span.End()

	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

func (s *CourseService) ListCoursesByOwner(ctx context.Context, email string) ([]models.Course, error) {
	ctx, span := util.StartSpan(ctx, "CourseService.ListCoursesByOwner")
	defer span.End()

	courses, err := s.store.ListCoursesByOwner(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list courses of %s: %w", email, err)
	}
	return courses, nil
}

func (s *CourseService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	ctx, span := util.StartSpan(ctx, "CourseService.GetCourse")
	defer span.End()
	span.SetAttributes(attribute.String("course.id", id))

	course, err := s.store.GetCourseByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get course %s: %w", id, err)
	}
	return course, nil
}

// CreateCourse stores a new course. The owner defaults to the caller.
func (s *CourseService) CreateCourse(ctx context.Context, course *models.Course, principal string) (*models.Course, error) {
	ctx, span := util.StartSpan(ctx, "CourseService.CreateCourse")
	defer span.End()

	if course == nil || strings.TrimSpace(course.Title) == "" {
		return nil, fmt.Errorf("create course: title is required: %w", errdefs.ErrInvalidArgument)
	}
	if course.Price < 0 {
		return nil, fmt.Errorf("create course: negative price: %w", errdefs.ErrInvalidArgument)
	}
	if course.UserEmail == "" {
		course.UserEmail = principal
	}

	if err := s.store.CreateCourse(ctx, course); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create course: %w", err)
	}

	util.CoursesCreatedTotal.Inc()
	s.logger.Info("Course created",
		zap.String("course_id", course.ID.Hex()),
		zap.String("owner", course.UserEmail))
	return course, nil
}

// UpdateCourse upserts the allow-listed fields of course id. Unknown fields are dropped.
func (s *CourseService) UpdateCourse(ctx context.Context, id string, fields map[string]interface{}) (*store.WriteResult, error) {
	ctx, span := util.StartSpan(ctx, "CourseService.UpdateCourse")
	defer span.End()
	span.SetAttributes(attribute.String("course.id", id))

	filtered := pickFields(fields, models.CourseFields)
	if len(filtered) == 0 {
		return nil, fmt.Errorf("update course %s: no editable fields: %w", id, errdefs.ErrInvalidArgument)
	}
	if err := normalizePrice(filtered); err != nil {
		return nil, fmt.Errorf("update course %s: %w", id, err)
	}

	res, err := s.store.UpsertCourse(ctx, id, filtered)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update course %s: %w", id, err)
	}

	s.logger.Info("Course updated", zap.String("course_id", id), zap.Int64("matched", res.Matched))
	return res, nil
}

// DeleteCourse removes course id and reports how many records went away
func (s *CourseService) DeleteCourse(ctx context.Context, id string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "CourseService.DeleteCourse")
	defer span.End()

	deleted, err := s.store.DeleteCourse(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete course %s: %w", id, err)
	}

	s.logger.Info("Course deleted", zap.String("course_id", id), zap.Int64("deleted", deleted))
	return deleted, nil
}
