package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eventcore/events-api/internal/apperr"
	"github.com/eventcore/events-api/internal/model"
	"github.com/eventcore/events-api/internal/store"
	"github.com/eventcore/events-api/internal/validate"
)

// EventService creates, reads, updates, and deletes events. It initialises the
// capacity bookkeeping on creation and never mutates it afterwards.
type EventService struct {
	store store.Store
}

// NewEventService constructs an EventService.
func NewEventService(st store.Store) *EventService {
	return &EventService{store: st}
}

// CreateEvent validates the payload, generates an eventId when absent, and
// stores the event with fully initialised bookkeeping fields.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req, err := validate.CreateEvent(req)
	if err != nil {
		return nil, err
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	now := time.Now().UTC()
	event := model.Event{
		EventID:         eventID,
		Title:           req.Title,
		Description:     req.Description,
		Date:            req.Date,
		Location:        req.Location,
		Organizer:       req.Organizer,
		Status:          req.Status,
		Capacity:        req.Capacity,
		RegisteredCount: 0,
		WaitlistEnabled: req.WaitlistEnabled,
		Waitlist:        []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.PutEvent(ctx, event); err != nil {
		return nil, mapStoreErr(err, "create event")
	}
	event.Recompute()
	return &event, nil
}

// GetEvent returns the event augmented with availableSpots and waitlistCount.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeEventNotFound, "event not found")
		}
		return nil, mapStoreErr(err, "get event")
	}
	return event, nil
}

// ListEvents returns all events, filtered by status when provided.
func (s *EventService) ListEvents(ctx context.Context, statusFilter string) ([]model.Event, error) {
	events, err := s.store.ListEvents(ctx, statusFilter)
	if err != nil {
		return nil, mapStoreErr(err, "list events")
	}
	return events, nil
}

// UpdateEvent patches the opaque fields only. Attempts to change engine-owned
// fields are rejected during validation.
func (s *EventService) UpdateEvent(ctx context.Context, eventID string, raw map[string]any) (*model.Event, error) {
	patch, err := validate.EventPatch(raw)
	if err != nil {
		return nil, err
	}
	event, err := s.store.UpdateEventOpaque(ctx, eventID, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeEventNotFound, "event not found")
		}
		return nil, mapStoreErr(err, "update event")
	}
	return event, nil
}

// DeleteEvent removes the event. Behaviour for events that still have
// registrations is the caller's responsibility.
func (s *EventService) DeleteEvent(ctx context.Context, eventID string) error {
	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.CodeEventNotFound, "event not found")
		}
		return mapStoreErr(err, "delete event")
	}
	return nil
}
