package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventcore/events-api/internal/apperr"
	"github.com/eventcore/events-api/internal/model"
)

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	require.Equal(t, apperr.CodeValidation, ae.Code)
	var fields []string
	for _, d := range ae.Details {
		fields = append(fields, d.Field)
	}
	return fields
}

func TestUserID(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		ok     bool
	}{
		{"simple", "alice", true},
		{"digits and dashes", "user-42_x", true},
		{"max length", strings.Repeat("a", 100), true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"too long", strings.Repeat("a", 101), false},
		{"space inside", "a b", false},
		{"unicode", "héllo", false},
		{"slash", "a/b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := UserID(tt.userID)
			if tt.ok {
				assert.Nil(t, d)
			} else {
				require.NotNil(t, d)
				assert.Equal(t, "userId", d.Field)
			}
		})
	}
}

func TestEventID(t *testing.T) {
	assert.Nil(t, EventID("evt-1"))
	assert.Nil(t, EventID(strings.Repeat("x", 100)))
	assert.NotNil(t, EventID(""))
	assert.NotNil(t, EventID("  \t "))
	assert.NotNil(t, EventID(strings.Repeat("x", 101)))
}

func TestCreateUser(t *testing.T) {
	t.Run("valid trims name", func(t *testing.T) {
		out, err := CreateUser(model.CreateUserRequest{UserID: "alice", Name: "  Alice  "})
		require.NoError(t, err)
		assert.Equal(t, "alice", out.UserID)
		assert.Equal(t, "Alice", out.Name)
	})

	t.Run("whitespace userId", func(t *testing.T) {
		_, err := CreateUser(model.CreateUserRequest{UserID: "  ", Name: "x"})
		assert.Contains(t, fieldsOf(t, err), "userId")
	})

	t.Run("whitespace name", func(t *testing.T) {
		_, err := CreateUser(model.CreateUserRequest{UserID: "alice", Name: "   "})
		assert.Contains(t, fieldsOf(t, err), "name")
	})

	t.Run("name too long", func(t *testing.T) {
		_, err := CreateUser(model.CreateUserRequest{UserID: "alice", Name: strings.Repeat("n", 201)})
		assert.Contains(t, fieldsOf(t, err), "name")
	})

	t.Run("both invalid reports both", func(t *testing.T) {
		_, err := CreateUser(model.CreateUserRequest{UserID: "", Name: ""})
		fields := fieldsOf(t, err)
		assert.Contains(t, fields, "userId")
		assert.Contains(t, fields, "name")
	})
}

func TestCreateEvent(t *testing.T) {
	valid := model.CreateEventRequest{
		Title:    "Go Meetup",
		Capacity: 10,
		Status:   "published",
	}

	t.Run("valid", func(t *testing.T) {
		out, err := CreateEvent(valid)
		require.NoError(t, err)
		assert.Equal(t, 10, out.Capacity)
	})

	t.Run("generated id allowed", func(t *testing.T) {
		req := valid
		req.EventID = ""
		_, err := CreateEvent(req)
		assert.NoError(t, err)
	})

	t.Run("capacity zero", func(t *testing.T) {
		req := valid
		req.Capacity = 0
		_, err := CreateEvent(req)
		assert.Contains(t, fieldsOf(t, err), "capacity")
	})

	t.Run("capacity negative", func(t *testing.T) {
		req := valid
		req.Capacity = -3
		_, err := CreateEvent(req)
		assert.Contains(t, fieldsOf(t, err), "capacity")
	})

	t.Run("blank eventId", func(t *testing.T) {
		req := valid
		req.EventID = "   "
		_, err := CreateEvent(req)
		assert.Contains(t, fieldsOf(t, err), "eventId")
	})

	t.Run("unknown status", func(t *testing.T) {
		req := valid
		req.Status = "archived"
		_, err := CreateEvent(req)
		assert.Contains(t, fieldsOf(t, err), "status")
	})

	t.Run("opaque bounds", func(t *testing.T) {
		req := valid
		req.Title = strings.Repeat("t", 201)
		req.Description = strings.Repeat("d", 1001)
		req.Location = strings.Repeat("l", 201)
		req.Organizer = strings.Repeat("o", 101)
		_, err := CreateEvent(req)
		fields := fieldsOf(t, err)
		assert.ElementsMatch(t, []string{"title", "description", "location", "organizer"}, fields)
	})
}

func TestEventPatch(t *testing.T) {
	t.Run("valid patch", func(t *testing.T) {
		patch, err := EventPatch(map[string]any{"title": "New Title", "status": "cancelled"})
		require.NoError(t, err)
		require.NotNil(t, patch.Title)
		assert.Equal(t, "New Title", *patch.Title)
		require.NotNil(t, patch.Status)
		assert.Equal(t, "cancelled", *patch.Status)
		assert.Nil(t, patch.Description)
	})

	t.Run("engine fields rejected", func(t *testing.T) {
		for _, field := range []string{"capacity", "registeredCount", "waitlistEnabled", "waitlist"} {
			_, err := EventPatch(map[string]any{field: 1})
			assert.Contains(t, fieldsOf(t, err), field)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := EventPatch(map[string]any{"venue": "here"})
		assert.Contains(t, fieldsOf(t, err), "venue")
	})

	t.Run("non-string value rejected", func(t *testing.T) {
		_, err := EventPatch(map[string]any{"title": 42})
		assert.Contains(t, fieldsOf(t, err), "title")
	})

	t.Run("bad status rejected", func(t *testing.T) {
		_, err := EventPatch(map[string]any{"status": "gone"})
		assert.Contains(t, fieldsOf(t, err), "status")
	})

	t.Run("empty patch rejected", func(t *testing.T) {
		_, err := EventPatch(map[string]any{})
		require.Error(t, err)
		assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
	})

	t.Run("too long value rejected", func(t *testing.T) {
		_, err := EventPatch(map[string]any{"description": strings.Repeat("d", 1001)})
		assert.Contains(t, fieldsOf(t, err), "description")
	})
}
