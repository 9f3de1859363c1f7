// Package model defines the core domain types for the event registration system.
package model

import "time"

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusWaitlist  RegistrationStatus = "waitlist"
)

// EventStatuses enumerates the accepted values for an event's status field.
// The registration engine treats the field as opaque.
var EventStatuses = map[string]bool{
	"draft":     true,
	"published": true,
	"cancelled": true,
	"completed": true,
	"active":    true,
}

// User is an account that can register for events.
type User struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Event is a bookable event with bounded capacity and an optional FIFO waitlist.
//
// Capacity and WaitlistEnabled are immutable after creation. RegisteredCount and
// Waitlist are owned exclusively by the registration engine; every other
// component treats them as read-only.
type Event struct {
	EventID         string    `json:"eventId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Date            string    `json:"date"`
	Location        string    `json:"location"`
	Organizer       string    `json:"organizer"`
	Status          string    `json:"status"`
	Capacity        int       `json:"capacity"`
	RegisteredCount int       `json:"registeredCount"`
	WaitlistEnabled bool      `json:"waitlistEnabled"`
	Waitlist        []string  `json:"waitlist"`
	AvailableSpots  int       `json:"availableSpots"`
	WaitlistCount   int       `json:"waitlistCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Recompute refreshes the derived fields from the bookkeeping counters.
func (e *Event) Recompute() {
	e.AvailableSpots = e.Capacity - e.RegisteredCount
	e.WaitlistCount = len(e.Waitlist)
	if e.Waitlist == nil {
		e.Waitlist = []string{}
	}
}

// IsFull reports whether no confirmed spots remain.
func (e *Event) IsFull() bool {
	return e.RegisteredCount >= e.Capacity
}

// Registration links a user to an event. EventTitle and EventDate are snapshots
// taken at registration time and are not refreshed on event updates.
type Registration struct {
	UserID       string             `json:"userId"`
	EventID      string             `json:"eventId"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registeredAt"`
	EventTitle   string             `json:"eventTitle"`
	EventDate    string             `json:"eventDate"`
}

// CreateUserRequest is the payload for creating a user.
type CreateUserRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// CreateEventRequest is the payload for creating an event.
type CreateEventRequest struct {
	EventID         string `json:"eventId"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Date            string `json:"date"`
	Location        string `json:"location"`
	Organizer       string `json:"organizer"`
	Status          string `json:"status"`
	Capacity        int    `json:"capacity"`
	WaitlistEnabled bool   `json:"waitlistEnabled"`
}

// EventPatch updates the opaque event fields only. Nil means "leave unchanged".
// Engine-owned fields (capacity, registeredCount, waitlistEnabled, waitlist)
// are deliberately unrepresentable here.
type EventPatch struct {
	Title       *string
	Description *string
	Date        *string
	Location    *string
	Organizer   *string
	Status      *string
}

// IsEmpty reports whether the patch carries no changes.
func (p EventPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Date == nil &&
		p.Location == nil && p.Organizer == nil && p.Status == nil
}

// RegistrationList is the envelope returned by the list-registration endpoints.
type RegistrationList struct {
	Registrations []Registration `json:"registrations"`
	Total         int            `json:"total"`
}
