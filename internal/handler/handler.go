// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the services and the registration engine.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/eventcore/events-api/internal/apperr"
	"github.com/eventcore/events-api/internal/engine"
	"github.com/eventcore/events-api/internal/model"
	"github.com/eventcore/events-api/internal/service"
)

// Handler holds all HTTP handlers for the events API.
type Handler struct {
	users  *service.UserService
	events *service.EventService
	engine *engine.Engine
	log    *slog.Logger
}

// New constructs a Handler.
func New(users *service.UserService, events *service.EventService, eng *engine.Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{users: users, events: events, engine: eng, log: log}
}

// Routes builds the full router, including middleware. metrics, when non-nil,
// is mounted at /metrics.
func (h *Handler) Routes(metrics http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(AccessLog(h.log))
	r.Use(CORS)

	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/{userId}", h.GetUser)
		r.Route("/{userId}/registrations", func(r chi.Router) {
			r.Post("/", h.RegisterForUser)
			r.Get("/", h.ListUserRegistrations)
			r.Delete("/{eventId}", h.Unregister)
		})
	})

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{eventId}", h.GetEvent)
		r.Put("/{eventId}", h.UpdateEvent)
		r.Delete("/{eventId}", h.DeleteEvent)
		// Event-centric aliases of the user-centric registration routes.
		r.Route("/{eventId}/registrations", func(r chi.Router) {
			r.Post("/", h.RegisterForEvent)
			r.Get("/", h.ListEventRegistrations)
			r.Delete("/{userId}", h.Unregister)
		})
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *Handler) badBody(w http.ResponseWriter, r *http.Request, err error) {
	h.writeAppError(w, r, apperr.Validation(apperr.Detail{
		Field:   "body",
		Message: "invalid request body: " + err.Error(),
	}))
}

// ─── Root and health ──────────────────────────────────────────────────────────

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Events API",
		"version": "1.0.0",
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ─── Users ────────────────────────────────────────────────────────────────────

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, r, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /users/{userId}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, r, err)
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events with an optional ?status= filter.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{eventId}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PUT /events/{eventId}. The body is decoded to a raw map
// so patches naming engine-owned or unknown fields can be rejected with
// per-field details.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decodeJSON(w, r, &raw); err != nil {
		h.badBody(w, r, err)
		return
	}

	event, err := h.events.UpdateEvent(r.Context(), chi.URLParam(r, "eventId"), raw)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /events/{eventId}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.DeleteEvent(r.Context(), chi.URLParam(r, "eventId")); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Registrations ────────────────────────────────────────────────────────────

type registerForUserRequest struct {
	EventID string `json:"eventId"`
}

type registerForEventRequest struct {
	UserID string `json:"userId"`
}

// registrationResponse pairs the created registration with the post-commit
// event counters.
type registrationResponse struct {
	model.Registration
	Event *model.Event `json:"event"`
}

// RegisterForUser handles POST /users/{userId}/registrations
func (h *Handler) RegisterForUser(w http.ResponseWriter, r *http.Request) {
	var req registerForUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, r, err)
		return
	}
	h.register(w, r, chi.URLParam(r, "userId"), req.EventID)
}

// RegisterForEvent handles POST /events/{eventId}/registrations
func (h *Handler) RegisterForEvent(w http.ResponseWriter, r *http.Request) {
	var req registerForEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, r, err)
		return
	}
	h.register(w, r, req.UserID, chi.URLParam(r, "eventId"))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request, userID, eventID string) {
	reg, event, err := h.engine.Register(r.Context(), userID, eventID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registrationResponse{Registration: *reg, Event: event})
}

// Unregister handles DELETE /users/{userId}/registrations/{eventId} and its
// event-centric alias DELETE /events/{eventId}/registrations/{userId}.
func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	eventID := chi.URLParam(r, "eventId")
	if err := h.engine.Unregister(r.Context(), userID, eventID); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUserRegistrations handles GET /users/{userId}/registrations
func (h *Handler) ListUserRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.engine.ListUserRegistrations(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeRegistrationList(w, regs)
}

// ListEventRegistrations handles GET /events/{eventId}/registrations
func (h *Handler) ListEventRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.engine.ListEventRegistrations(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeRegistrationList(w, regs)
}

func (h *Handler) writeRegistrationList(w http.ResponseWriter, regs []model.Registration) {
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, model.RegistrationList{
		Registrations: regs,
		Total:         len(regs),
	})
}
