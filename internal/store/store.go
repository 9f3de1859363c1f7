// Package store provides typed persistence over the three tables (users,
// events, registrations) with conditional writes and multi-record transactions.
//
// Every Tx* operation either fully commits or leaves all targeted records
// unchanged; partial states are never observable. Failures collapse to a narrow
// set of kinds (ErrNotFound, ErrDuplicate, ErrConditionFailed, ErrUnavailable)
// so callers can branch without knowing the backend.
package store

import (
	"context"
	"errors"

	"github.com/eventcore/events-api/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a conditional insert finds an existing record.
var ErrDuplicate = errors.New("already exists")

// ErrConditionFailed is returned when a transactional precondition no longer
// holds. The caller re-reads and re-decides.
var ErrConditionFailed = errors.New("condition failed")

// ErrUnavailable is returned when transient backend failures exceed the
// internal retry budget.
var ErrUnavailable = errors.New("store unavailable")

// Store is the persistence contract the services and the registration engine
// are written against.
type Store interface {
	// PutUserIfAbsent creates the user, failing with ErrDuplicate when a record
	// with the same userId already exists.
	PutUserIfAbsent(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, userID string) (*model.User, error)

	// PutEvent unconditionally stores a fully initialised event.
	PutEvent(ctx context.Context, event model.Event) error
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	ListEvents(ctx context.Context, statusFilter string) ([]model.Event, error)
	// UpdateEventOpaque patches non-engine fields only and returns the updated
	// event. The patch type cannot express engine-owned fields.
	UpdateEventOpaque(ctx context.Context, eventID string, patch model.EventPatch) (*model.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error

	GetRegistration(ctx context.Context, userID, eventID string) (*model.Registration, error)
	QueryRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error)
	QueryRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)

	// TxRegisterConfirmed atomically inserts the registration (condition: the
	// pair is absent) and increments registeredCount (condition: below
	// capacity), returning the post-commit event state.
	TxRegisterConfirmed(ctx context.Context, reg model.Registration) (*model.Event, error)
	// TxRegisterWaitlist atomically inserts the registration with waitlist
	// status and appends the user to the event's waitlist (condition: event is
	// full, waitlist enabled, user not already queued).
	TxRegisterWaitlist(ctx context.Context, reg model.Registration) (*model.Event, error)
	// TxUnregisterConfirmed atomically deletes a confirmed registration and
	// decrements registeredCount.
	TxUnregisterConfirmed(ctx context.Context, userID, eventID string) (*model.Event, error)
	// TxUnregisterWaitlist atomically deletes a waitlisted registration and
	// removes the user from the waitlist, preserving the order of the rest.
	TxUnregisterWaitlist(ctx context.Context, userID, eventID string) (*model.Event, error)
	// TxPromoteHead atomically pops userID from the head of the waitlist
	// (condition: it is the head and a confirmed spot is free), increments
	// registeredCount, and flips their registration to confirmed.
	// Returns ErrConditionFailed when the head changed or the freed spot was
	// taken, and ErrNotFound when the head's registration record no longer
	// exists.
	TxPromoteHead(ctx context.Context, eventID, userID string) (*model.Event, error)
}
