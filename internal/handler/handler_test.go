package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventcore/events-api/internal/engine"
	"github.com/eventcore/events-api/internal/model"
	"github.com/eventcore/events-api/internal/service"
	"github.com/eventcore/events-api/internal/store/storetest"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	m := storetest.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(
		service.NewUserService(m),
		service.NewEventService(m),
		engine.New(m, log, nil),
		log,
	)
	return h.Routes(nil)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

type errEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
		Timestamp string `json:"timestamp"`
		Path      string `json:"path"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func createUser(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/users", map[string]string{"userId": id, "name": "User " + id})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func createEvent(t *testing.T, router http.Handler, id string, capacity int, waitlist bool) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/events", map[string]any{
		"eventId":         id,
		"title":           "Event " + id,
		"capacity":        capacity,
		"waitlistEnabled": waitlist,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRootAndHealth(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "Events API", body["message"])

	rec = do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/users", map[string]string{"userId": "alice", "name": "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	user := decode[model.User](t, rec)
	assert.Equal(t, "alice", user.UserID)

	rec = do(t, router, http.MethodGet, "/users/alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	t.Run("duplicate", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/users", map[string]string{"userId": "alice", "name": "Alice"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "DUPLICATE_USER", decode[errEnvelope](t, rec).Error.Code)
	})

	t.Run("not found", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/users/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "USER_NOT_FOUND", decode[errEnvelope](t, rec).Error.Code)
	})
}

func TestWhitespaceUserIDValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/users", map[string]string{"userId": "  ", "name": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decode[errEnvelope](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	require.NotEmpty(t, env.Error.Details)
	assert.Equal(t, "userId", env.Error.Details[0].Field)
	assert.Equal(t, "/users", env.Error.Path)
	assert.NotEmpty(t, env.Error.Timestamp)
}

func TestEventLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/events", map[string]any{
		"title":    "Go Meetup",
		"capacity": 2,
		"status":   "published",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	event := decode[model.Event](t, rec)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, 2, event.AvailableSpots)

	rec = do(t, router, http.MethodGet, "/events/"+event.EventID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/events?status=draft", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.Event](t, rec))

	t.Run("update opaque", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/events/"+event.EventID, map[string]any{"title": "Renamed"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Renamed", decode[model.Event](t, rec).Title)
	})

	t.Run("update engine field rejected", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/events/"+event.EventID, map[string]any{"capacity": 99})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decode[errEnvelope](t, rec).Error.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/events/"+event.EventID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = do(t, router, http.MethodDelete, "/events/"+event.EventID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestEventValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/events", map[string]any{"title": "x", "capacity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/events", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrationFlow(t *testing.T) {
	router := newTestRouter(t)
	for _, u := range []string{"u1", "u2", "u3"} {
		createUser(t, router, u)
	}
	createEvent(t, router, "e", 2, true)

	register := func(userID string) *httptest.ResponseRecorder {
		return do(t, router, http.MethodPost, "/users/"+userID+"/registrations",
			map[string]string{"eventId": "e"})
	}

	rec := register("u1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.StatusConfirmed, decode[model.Registration](t, rec).Status)

	rec = register("u2")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = register("u3")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.StatusWaitlist, decode[model.Registration](t, rec).Status)

	t.Run("already registered", func(t *testing.T) {
		rec := register("u1")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ALREADY_REGISTERED", decode[errEnvelope](t, rec).Error.Code)
	})

	t.Run("list user registrations", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/users/u1/registrations", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[model.RegistrationList](t, rec)
		assert.Equal(t, 1, list.Total)
	})

	t.Run("list event registrations", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/events/e/registrations", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[model.RegistrationList](t, rec)
		assert.Equal(t, 3, list.Total)
	})

	t.Run("unregister promotes the waitlist head", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/users/u1/registrations/e", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, router, http.MethodGet, "/events/e", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		event := decode[model.Event](t, rec)
		assert.Equal(t, 2, event.RegisteredCount)
		assert.Empty(t, event.Waitlist)

		rec = do(t, router, http.MethodGet, "/users/u3/registrations", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[model.RegistrationList](t, rec)
		require.Equal(t, 1, list.Total)
		assert.Equal(t, model.StatusConfirmed, list.Registrations[0].Status)
	})

	t.Run("unregister unknown registration", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/users/u1/registrations/e", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "REGISTRATION_NOT_FOUND", decode[errEnvelope](t, rec).Error.Code)
	})
}

func TestEventCentricAliases(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "u1")
	createEvent(t, router, "e1", 1, false)

	rec := do(t, router, http.MethodPost, "/events/e1/registrations", map[string]string{"userId": "u1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.StatusConfirmed, decode[model.Registration](t, rec).Status)

	// The alias operates on the same underlying record.
	rec = do(t, router, http.MethodGet, "/users/u1/registrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[model.RegistrationList](t, rec).Total)

	rec = do(t, router, http.MethodDelete, "/events/e1/registrations/u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/users/u1/registrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[model.RegistrationList](t, rec).Total)
}

func TestEventFull(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "u1")
	createUser(t, router, "u2")
	createEvent(t, router, "e2", 1, false)

	rec := do(t, router, http.MethodPost, "/users/u1/registrations", map[string]string{"eventId": "e2"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/users/u2/registrations", map[string]string{"eventId": "e2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EVENT_FULL", decode[errEnvelope](t, rec).Error.Code)
}

func TestRegisterUnknownRefs(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "u1")
	createEvent(t, router, "e1", 1, false)

	rec := do(t, router, http.MethodPost, "/users/ghost/registrations", map[string]string{"eventId": "e1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", decode[errEnvelope](t, rec).Error.Code)

	rec = do(t, router, http.MethodPost, "/users/u1/registrations", map[string]string{"eventId": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "EVENT_NOT_FOUND", decode[errEnvelope](t, rec).Error.Code)

	rec = do(t, router, http.MethodGet, "/users/ghost/registrations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/events/ghost/registrations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errEnvelope](t, rec).Error.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
