package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"academix-api/internal/errdefs"
	"academix-api/internal/models"
	"academix-api/internal/store"
	"academix-api/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	MessageUserCreated  = "User created"
	MessageLoginSuccess = "Login success"
)

// RegisterResult is returned by RegisterOrLogin
type RegisterResult struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Token      string `json:"token"`
	Created    bool   `json:"created"`
	InsertedID string `json:"insertedId,omitempty"`
}

type UserService struct {
	store  UserStore
	tokens TokenIssuer
	logger *zap.Logger
}

func NewUserService(store UserStore, tokens TokenIssuer) *UserService {
	return &UserService{
		store:  store,
		tokens: tokens,
		logger: util.GetLogger(),
	}
}

// RegisterOrLogin inserts the candidate user. An existing email is a login:
// the stored record is left untouched and a fresh token is issued.
func (s *UserService) RegisterOrLogin(ctx context.Context, candidate *models.User) (*RegisterResult, error) {
	ctx, span := util.StartSpan(ctx, "UserService.RegisterOrLogin")
	defer span.End()

	if candidate == nil {
		return nil, fmt.Errorf("register: empty body: %w", errdefs.ErrInvalidArgument)
	}
	candidate.Email = strings.TrimSpace(candidate.Email)
	if candidate.Email == "" {
		return nil, fmt.Errorf("register: email is required: %w", errdefs.ErrInvalidArgument)
	}
	span.SetAttributes(attribute.String("user.email", candidate.Email))

	err := s.store.InsertUser(ctx, candidate)
	switch {
	case err == nil:
		token, err := s.tokens.Issue(candidate.Email)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		util.UsersRegisteredTotal.Inc()
		s.logger.Info("User registered", zap.String("email", candidate.Email))
		return &RegisterResult{
			Status:     "Success",
			Message:    MessageUserCreated,
			Token:      token,
			Created:    true,
			InsertedID: candidate.ID.Hex(),
		}, nil

	case errors.Is(err, errdefs.ErrAlreadyExists):
		token, err := s.tokens.Issue(candidate.Email)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		util.UserLoginsTotal.Inc()
		s.logger.Debug("User logged in", zap.String("email", candidate.Email))
		return &RegisterResult{
			Status:  "Success",
			Message: MessageLoginSuccess,
			Token:   token,
		}, nil

	default:
		span.RecordError(err)
		return nil, fmt.Errorf("register: %w", err)
	}
}

// UpdateProfile upserts the allow-listed profile fields of email. Only the
// owner of the profile may edit it.
func (s *UserService) UpdateProfile(ctx context.Context, principal, email string, fields map[string]interface{}) (*store.WriteResult, error) {
	ctx, span := util.StartSpan(ctx, "UserService.UpdateProfile")
	defer span.End()

	if principal == "" || principal != email {
		return nil, fmt.Errorf("update profile %s: %w", email, errdefs.ErrPermissionDenied)
	}

	filtered := pickFields(fields, models.UserProfileFields)
	if len(filtered) == 0 {
		return nil, fmt.Errorf("update profile %s: no editable fields: %w", email, errdefs.ErrInvalidArgument)
	}

	res, err := s.store.UpsertUserProfile(ctx, email, filtered)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update profile %s: %w", email, err)
	}

	s.logger.Info("Profile updated",
		zap.String("email", email),
		zap.Int("fields", len(filtered)),
		zap.Bool("upserted", res.Upserted > 0))
	return res, nil
}

func (s *UserService) GetUser(ctx context.Context, email string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.GetUser")
	defer span.End()

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", email, err)
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.ListUsers")
	defer span.End()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
