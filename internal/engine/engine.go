// Package engine implements the registration state machine: register
// (confirmed or waitlisted), unregister (with FIFO promotion), and
// registration queries.
//
// For a (user, event) pair the logical state is none, confirmed, or waitlist.
// The engine is the only writer of registeredCount, the waitlist, and
// registration records. It holds no locks: every mutation is a conditional
// store transaction, and the engine's control flow is read snapshot, decide,
// conditionally commit, re-read on a lost race.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eventcore/events-api/internal/apperr"
	"github.com/eventcore/events-api/internal/model"
	"github.com/eventcore/events-api/internal/store"
	"github.com/eventcore/events-api/internal/validate"
)

// pairState is the logical registration state of a (user, event) pair.
type pairState int

const (
	stateNone pairState = iota
	stateConfirmed
	stateWaitlist
)

// plan is the transaction the engine decided to attempt.
type plan int

const (
	planConfirm plan = iota
	planWaitlist
	planReject
)

// Engine coordinates all registration mutations.
type Engine struct {
	store       store.Store
	log         *slog.Logger
	metrics     *Metrics
	maxAttempts int
	opTimeout   time.Duration
}

// New constructs an Engine with a 5-attempt retry budget and a 5s end-to-end
// deadline per operation.
func New(st store.Store, log *slog.Logger, metrics *Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:       st,
		log:         log,
		metrics:     metrics,
		maxAttempts: 5,
		opTimeout:   5 * time.Second,
	}
}

// WithBudget overrides the retry budget and the per-operation deadline.
// Non-positive values keep the defaults.
func (e *Engine) WithBudget(attempts int, timeout time.Duration) *Engine {
	if attempts > 0 {
		e.maxAttempts = attempts
	}
	if timeout > 0 {
		e.opTimeout = timeout
	}
	return e
}

func stateOf(reg *model.Registration) pairState {
	switch {
	case reg == nil:
		return stateNone
	case reg.Status == model.StatusConfirmed:
		return stateConfirmed
	default:
		return stateWaitlist
	}
}

// decide maps the pair state and a fresh event snapshot to the transaction to
// attempt. Pure: no I/O, no mutation.
func decide(state pairState, event *model.Event) (plan, error) {
	switch state {
	case stateConfirmed:
		return planReject, apperr.New(apperr.CodeAlreadyRegistered, "user already registered for this event")
	case stateWaitlist:
		return planReject, apperr.New(apperr.CodeAlreadyOnWaitlist, "user already on waitlist for this event")
	}
	if event.RegisteredCount < event.Capacity {
		return planConfirm, nil
	}
	if event.WaitlistEnabled {
		return planWaitlist, nil
	}
	return planReject, apperr.New(apperr.CodeEventFull, "event is full and waitlist is not enabled")
}

// Register registers userID for eventID, confirmed when capacity remains and
// waitlisted when the event is full with the waitlist enabled. It returns the
// created registration and the post-commit event state.
func (e *Engine) Register(ctx context.Context, userID, eventID string) (*model.Registration, *model.Event, error) {
	var details []apperr.Detail
	if d := validate.UserID(userID); d != nil {
		details = append(details, *d)
	}
	if d := validate.EventID(eventID); d != nil {
		details = append(details, *d)
	}
	if len(details) > 0 {
		return nil, nil, apperr.Validation(details...)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	if _, err := e.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.New(apperr.CodeUserNotFound, "user not found")
		}
		return nil, nil, e.mapStoreErr(err, "check user")
	}

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		event, err := e.store.GetEvent(ctx, eventID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil, apperr.New(apperr.CodeEventNotFound, "event not found")
			}
			return nil, nil, e.mapStoreErr(err, "read event")
		}

		existing, err := e.store.GetRegistration(ctx, userID, eventID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, nil, e.mapStoreErr(err, "check registration")
		}

		next, err := decide(stateOf(existing), event)
		if err != nil {
			e.metrics.registration("rejected")
			return nil, nil, err
		}

		// eventTitle and eventDate snapshot the event at decision time.
		reg := model.Registration{
			UserID:       userID,
			EventID:      eventID,
			RegisteredAt: time.Now().UTC(),
			EventTitle:   event.Title,
			EventDate:    event.Date,
		}

		var updated *model.Event
		switch next {
		case planConfirm:
			reg.Status = model.StatusConfirmed
			updated, err = e.store.TxRegisterConfirmed(ctx, reg)
		case planWaitlist:
			reg.Status = model.StatusWaitlist
			updated, err = e.store.TxRegisterWaitlist(ctx, reg)
		}

		switch {
		case err == nil:
			e.metrics.registration(string(reg.Status))
			e.log.InfoContext(ctx, "registration committed",
				"userId", userID, "eventId", eventID, "status", reg.Status)
			return &reg, updated, nil
		case errors.Is(err, store.ErrConditionFailed):
			// Another writer raced us: capacity filled or waitlist state
			// shifted. Re-read and re-decide.
			e.metrics.contentionRetry()
			e.log.DebugContext(ctx, "registration commit lost race, retrying",
				"userId", userID, "eventId", eventID, "attempt", attempt)
		case errors.Is(err, store.ErrNotFound):
			return nil, nil, apperr.New(apperr.CodeEventNotFound, "event not found")
		default:
			return nil, nil, e.mapStoreErr(err, "commit registration")
		}
	}

	e.metrics.contentionExhaust()
	return nil, nil, apperr.New(apperr.CodeContention, "registration retry budget exhausted, try again")
}

// Unregister removes userID's registration for eventID. When a confirmed
// registration leaves a full event, the head of the waitlist is promoted.
func (e *Engine) Unregister(ctx context.Context, userID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		reg, err := e.store.GetRegistration(ctx, userID, eventID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.New(apperr.CodeRegistrationNotFound, "registration not found")
			}
			return e.mapStoreErr(err, "read registration")
		}

		var event *model.Event
		if reg.Status == model.StatusConfirmed {
			event, err = e.store.TxUnregisterConfirmed(ctx, userID, eventID)
		} else {
			event, err = e.store.TxUnregisterWaitlist(ctx, userID, eventID)
		}

		switch {
		case err == nil:
			e.log.InfoContext(ctx, "unregistered",
				"userId", userID, "eventId", eventID, "status", reg.Status)
			if reg.Status == model.StatusConfirmed {
				e.promoteHead(ctx, eventID, event)
			}
			return nil
		case errors.Is(err, store.ErrConditionFailed):
			e.metrics.contentionRetry()
			e.log.DebugContext(ctx, "unregister commit lost race, retrying",
				"userId", userID, "eventId", eventID, "attempt", attempt)
		case errors.Is(err, store.ErrNotFound):
			return apperr.New(apperr.CodeEventNotFound, "event not found")
		default:
			return e.mapStoreErr(err, "commit unregister")
		}
	}

	e.metrics.contentionExhaust()
	return apperr.New(apperr.CodeContention, "unregister retry budget exhausted, try again")
}

// promoteHead moves the waitlist head into the confirmed spot freed by an
// unregister. Promotion failures never fail the unregister that triggered
// them: a changed head is re-read (bounded), a vanished registration is
// skipped, anything else is logged.
func (e *Engine) promoteHead(ctx context.Context, eventID string, event *model.Event) {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if event == nil {
			var err error
			event, err = e.store.GetEvent(ctx, eventID)
			if err != nil {
				e.log.WarnContext(ctx, "promotion aborted: event re-read failed",
					"eventId", eventID, "error", err)
				return
			}
		}
		if len(event.Waitlist) == 0 || event.RegisteredCount >= event.Capacity {
			return
		}
		head := event.Waitlist[0]

		_, err := e.store.TxPromoteHead(ctx, eventID, head)
		switch {
		case err == nil:
			e.metrics.promotion()
			e.log.InfoContext(ctx, "promoted waitlist head",
				"userId", head, "eventId", eventID)
			return
		case errors.Is(err, store.ErrNotFound):
			// The head unregistered from the waitlist in the same window.
			e.metrics.promotionSkip()
			e.log.InfoContext(ctx, "promotion skipped: head registration gone",
				"userId", head, "eventId", eventID)
			return
		case errors.Is(err, store.ErrConditionFailed):
			event = nil
		default:
			e.log.WarnContext(ctx, "promotion failed",
				"userId", head, "eventId", eventID, "error", err)
			return
		}
	}
}

// ListUserRegistrations returns every registration of an existing user, any
// status, in no guaranteed order.
func (e *Engine) ListUserRegistrations(ctx context.Context, userID string) ([]model.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	if _, err := e.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeUserNotFound, "user not found")
		}
		return nil, e.mapStoreErr(err, "check user")
	}
	regs, err := e.store.QueryRegistrationsByUser(ctx, userID)
	if err != nil {
		return nil, e.mapStoreErr(err, "query registrations")
	}
	return regs, nil
}

// ListEventRegistrations returns every registration of an existing event.
func (e *Engine) ListEventRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()

	if _, err := e.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeEventNotFound, "event not found")
		}
		return nil, e.mapStoreErr(err, "check event")
	}
	regs, err := e.store.QueryRegistrationsByEvent(ctx, eventID)
	if err != nil {
		return nil, e.mapStoreErr(err, "query registrations")
	}
	return regs, nil
}

func (e *Engine) mapStoreErr(err error, op string) error {
	if errors.Is(err, store.ErrUnavailable) {
		return apperr.Wrap(apperr.CodeUnavailable, "storage temporarily unavailable", err)
	}
	return apperr.Wrap(apperr.CodeInternal, op+" failed", err)
}
