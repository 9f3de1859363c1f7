// Package validate holds the pure input validation for user, event, and
// registration payloads. Functions canonicalise their input (trimming where
// semantically safe, never the userId itself) and report failures as
// VALIDATION_ERROR with per-field details.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/eventcore/events-api/internal/apperr"
	"github.com/eventcore/events-api/internal/model"
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// opaqueBounds caps the opaque event fields.
var opaqueBounds = map[string]int{
	"title":       200,
	"description": 1000,
	"location":    200,
	"organizer":   100,
}

// UserID checks a userId path or payload value.
func UserID(userID string) *apperr.Detail {
	if strings.TrimSpace(userID) == "" {
		return &apperr.Detail{Field: "userId", Message: "must not be empty or whitespace only"}
	}
	if !userIDPattern.MatchString(userID) {
		return &apperr.Detail{Field: "userId", Message: "must be 1-100 characters of letters, digits, '-' or '_'"}
	}
	return nil
}

// EventID checks an eventId path or payload value.
func EventID(eventID string) *apperr.Detail {
	if strings.TrimSpace(eventID) == "" {
		return &apperr.Detail{Field: "eventId", Message: "must not be empty or whitespace only"}
	}
	if len(eventID) > 100 {
		return &apperr.Detail{Field: "eventId", Message: "must be at most 100 characters"}
	}
	return nil
}

// CreateUser validates and canonicalises a user creation payload.
func CreateUser(req model.CreateUserRequest) (model.CreateUserRequest, error) {
	var details []apperr.Detail
	if d := UserID(req.UserID); d != nil {
		details = append(details, *d)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		details = append(details, apperr.Detail{Field: "name", Message: "must not be empty or whitespace only"})
	} else if len(name) > 200 {
		details = append(details, apperr.Detail{Field: "name", Message: "must be at most 200 characters"})
	}
	if len(details) > 0 {
		return model.CreateUserRequest{}, apperr.Validation(details...)
	}
	req.Name = name
	return req, nil
}

// CreateEvent validates and canonicalises an event creation payload.
// waitlistEnabled defaults to false when absent (zero value).
func CreateEvent(req model.CreateEventRequest) (model.CreateEventRequest, error) {
	var details []apperr.Detail
	if req.EventID != "" {
		if d := EventID(req.EventID); d != nil {
			details = append(details, *d)
		}
	}
	if req.Capacity < 1 {
		details = append(details, apperr.Detail{Field: "capacity", Message: "must be an integer >= 1"})
	}
	details = append(details, boundDetails(map[string]string{
		"title":       req.Title,
		"description": req.Description,
		"location":    req.Location,
		"organizer":   req.Organizer,
	})...)
	if req.Status != "" && !model.EventStatuses[req.Status] {
		details = append(details, apperr.Detail{
			Field:   "status",
			Message: "must be one of draft, published, cancelled, completed, active",
		})
	}
	if len(details) > 0 {
		return model.CreateEventRequest{}, apperr.Validation(details...)
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	req.Organizer = strings.TrimSpace(req.Organizer)
	return req, nil
}

// engineFields are the event attributes only the registration engine may
// write. Patches naming them are rejected.
var engineFields = map[string]bool{
	"capacity":        true,
	"registeredCount": true,
	"waitlistEnabled": true,
	"waitlist":        true,
	"availableSpots":  true,
	"waitlistCount":   true,
	"eventId":         true,
	"createdAt":       true,
	"updatedAt":       true,
}

// EventPatch validates a raw update payload and converts it into a typed
// opaque-field patch. It rejects engine-owned and unknown fields, and an
// empty patch.
func EventPatch(raw map[string]any) (model.EventPatch, error) {
	var patch model.EventPatch
	var details []apperr.Detail

	fields := map[string]**string{
		"title":       &patch.Title,
		"description": &patch.Description,
		"date":        &patch.Date,
		"location":    &patch.Location,
		"organizer":   &patch.Organizer,
		"status":      &patch.Status,
	}

	for key, value := range raw {
		if engineFields[key] {
			details = append(details, apperr.Detail{Field: key, Message: "field cannot be updated"})
			continue
		}
		dst, ok := fields[key]
		if !ok {
			details = append(details, apperr.Detail{Field: key, Message: "unknown field"})
			continue
		}
		str, ok := value.(string)
		if !ok {
			details = append(details, apperr.Detail{Field: key, Message: "must be a string"})
			continue
		}
		if max, bounded := opaqueBounds[key]; bounded && len(str) > max {
			details = append(details, apperr.Detail{Field: key, Message: fmt.Sprintf("must be at most %d characters", max)})
			continue
		}
		if key == "status" && !model.EventStatuses[str] {
			details = append(details, apperr.Detail{
				Field:   "status",
				Message: "must be one of draft, published, cancelled, completed, active",
			})
			continue
		}
		s := str
		*dst = &s
	}

	if len(details) > 0 {
		return model.EventPatch{}, apperr.Validation(details...)
	}
	if patch.IsEmpty() {
		return model.EventPatch{}, apperr.Validation(apperr.Detail{Field: "", Message: "no fields to update"})
	}
	return patch, nil
}

func boundDetails(fields map[string]string) []apperr.Detail {
	var details []apperr.Detail
	for field, value := range fields {
		if max := opaqueBounds[field]; len(value) > max {
			details = append(details, apperr.Detail{
				Field:   field,
				Message: fmt.Sprintf("must be at most %d characters", max),
			})
		}
	}
	return details
}
