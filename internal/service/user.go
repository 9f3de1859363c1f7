// Package service implements the user and event services on top of the store.
// Registration semantics live in the engine package; these services only
// initialise registeredCount and waitlist when an event is created, never
// change them afterwards, and never touch registration records.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventcore/events-api/internal/apperr"
	"github.com/eventcore/events-api/internal/model"
	"github.com/eventcore/events-api/internal/store"
	"github.com/eventcore/events-api/internal/validate"
)

// UserService creates and reads users.
type UserService struct {
	store store.Store
}

// NewUserService constructs a UserService.
func NewUserService(st store.Store) *UserService {
	return &UserService{store: st}
}

// CreateUser validates the payload and creates the user, enforcing userId
// uniqueness through a conditional write.
func (s *UserService) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	req, err := validate.CreateUser(req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := model.User{
		UserID:    req.UserID,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.PutUserIfAbsent(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.New(apperr.CodeDuplicateUser, "user with this userId already exists")
		}
		return nil, mapStoreErr(err, "create user")
	}
	return &user, nil
}

// GetUser returns the user or USER_NOT_FOUND.
func (s *UserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeUserNotFound, "user not found")
		}
		return nil, mapStoreErr(err, "get user")
	}
	return user, nil
}

// mapStoreErr classifies residual store failures: transient exhaustion becomes
// SERVICE_UNAVAILABLE, everything else INTERNAL_ERROR. The raw store error is
// kept as the cause for logging only.
func mapStoreErr(err error, op string) error {
	if errors.Is(err, store.ErrUnavailable) {
		return apperr.Wrap(apperr.CodeUnavailable, "storage temporarily unavailable", err)
	}
	return apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("%s failed", op), err)
}
