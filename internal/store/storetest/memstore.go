// Package storetest provides an in-memory Store with the same conditional
// semantics as the PostgreSQL implementation, for tests that should not need
// a database.
package storetest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/eventcore/events-api/internal/model"
	"github.com/eventcore/events-api/internal/store"
)

// Mem is a mutex-guarded in-memory Store. Every Tx* method checks its
// preconditions and applies all writes under one lock acquisition, so the
// atomicity guarantees match the real store.
type Mem struct {
	mu     sync.Mutex
	users  map[string]model.User
	events map[string]model.Event
	regs   map[[2]string]model.Registration

	// Hook, when set, runs at the start of every Tx* call before the lock is
	// taken. Tests use it to interleave writers deterministically.
	Hook func(op string)
}

// New returns an empty Mem store.
func New() *Mem {
	return &Mem{
		users:  make(map[string]model.User),
		events: make(map[string]model.Event),
		regs:   make(map[[2]string]model.Registration),
	}
}

var _ store.Store = (*Mem)(nil)

func (m *Mem) hook(op string) {
	if m.Hook != nil {
		m.Hook(op)
	}
}

func regKey(userID, eventID string) [2]string { return [2]string{userID, eventID} }

func copyEvent(e model.Event) *model.Event {
	out := e
	out.Waitlist = slices.Clone(e.Waitlist)
	out.Recompute()
	return &out
}

func (m *Mem) PutUserIfAbsent(_ context.Context, user model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.UserID]; ok {
		return store.ErrDuplicate
	}
	m.users[user.UserID] = user
	return nil
}

func (m *Mem) GetUser(_ context.Context, userID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := u
	return &out, nil
}

func (m *Mem) PutEvent(_ context.Context, event model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.Waitlist == nil {
		event.Waitlist = []string{}
	}
	m.events[event.EventID] = event
	return nil
}

func (m *Mem) GetEvent(_ context.Context, eventID string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyEvent(e), nil
}

func (m *Mem) ListEvents(_ context.Context, statusFilter string) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		if statusFilter != "" && e.Status != statusFilter {
			continue
		}
		out = append(out, *copyEvent(e))
	}
	return out, nil
}

func (m *Mem) UpdateEventOpaque(_ context.Context, eventID string, patch model.EventPatch) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&e.Title, patch.Title)
	apply(&e.Description, patch.Description)
	apply(&e.Date, patch.Date)
	apply(&e.Location, patch.Location)
	apply(&e.Organizer, patch.Organizer)
	apply(&e.Status, patch.Status)
	e.UpdatedAt = time.Now().UTC()
	m.events[eventID] = e
	return copyEvent(e), nil
}

func (m *Mem) DeleteEvent(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		return store.ErrNotFound
	}
	delete(m.events, eventID)
	return nil
}

func (m *Mem) GetRegistration(_ context.Context, userID, eventID string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[regKey(userID, eventID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := r
	return &out, nil
}

func (m *Mem) QueryRegistrationsByUser(_ context.Context, userID string) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.regs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Mem) QueryRegistrationsByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Registration
	for _, r := range m.regs {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Mem) TxRegisterConfirmed(_ context.Context, reg model.Registration) (*model.Event, error) {
	m.hook("TxRegisterConfirmed")
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[regKey(reg.UserID, reg.EventID)]; ok {
		return nil, store.ErrConditionFailed
	}
	e, ok := m.events[reg.EventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if e.RegisteredCount >= e.Capacity {
		return nil, store.ErrConditionFailed
	}
	reg.Status = model.StatusConfirmed
	m.regs[regKey(reg.UserID, reg.EventID)] = reg
	e.RegisteredCount++
	e.UpdatedAt = time.Now().UTC()
	m.events[reg.EventID] = e
	return copyEvent(e), nil
}

func (m *Mem) TxRegisterWaitlist(_ context.Context, reg model.Registration) (*model.Event, error) {
	m.hook("TxRegisterWaitlist")
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[regKey(reg.UserID, reg.EventID)]; ok {
		return nil, store.ErrConditionFailed
	}
	e, ok := m.events[reg.EventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if e.RegisteredCount < e.Capacity || !e.WaitlistEnabled || slices.Contains(e.Waitlist, reg.UserID) {
		return nil, store.ErrConditionFailed
	}
	reg.Status = model.StatusWaitlist
	m.regs[regKey(reg.UserID, reg.EventID)] = reg
	e.Waitlist = append(slices.Clone(e.Waitlist), reg.UserID)
	e.UpdatedAt = time.Now().UTC()
	m.events[reg.EventID] = e
	return copyEvent(e), nil
}

func (m *Mem) TxUnregisterConfirmed(_ context.Context, userID, eventID string) (*model.Event, error) {
	m.hook("TxUnregisterConfirmed")
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[regKey(userID, eventID)]
	if !ok || r.Status != model.StatusConfirmed {
		return nil, store.ErrConditionFailed
	}
	e, ok := m.events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if e.RegisteredCount <= 0 {
		return nil, store.ErrConditionFailed
	}
	delete(m.regs, regKey(userID, eventID))
	e.RegisteredCount--
	e.UpdatedAt = time.Now().UTC()
	m.events[eventID] = e
	return copyEvent(e), nil
}

func (m *Mem) TxUnregisterWaitlist(_ context.Context, userID, eventID string) (*model.Event, error) {
	m.hook("TxUnregisterWaitlist")
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[regKey(userID, eventID)]
	if !ok || r.Status != model.StatusWaitlist {
		return nil, store.ErrConditionFailed
	}
	e, ok := m.events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx := slices.Index(e.Waitlist, userID)
	if idx < 0 {
		return nil, store.ErrConditionFailed
	}
	delete(m.regs, regKey(userID, eventID))
	e.Waitlist = slices.Delete(slices.Clone(e.Waitlist), idx, idx+1)
	e.UpdatedAt = time.Now().UTC()
	m.events[eventID] = e
	return copyEvent(e), nil
}

func (m *Mem) TxPromoteHead(_ context.Context, eventID, userID string) (*model.Event, error) {
	m.hook("TxPromoteHead")
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return nil, store.ErrConditionFailed
	}
	if len(e.Waitlist) == 0 || e.Waitlist[0] != userID || e.RegisteredCount >= e.Capacity {
		return nil, store.ErrConditionFailed
	}
	r, ok := m.regs[regKey(userID, eventID)]
	if !ok || r.Status != model.StatusWaitlist {
		return nil, store.ErrNotFound
	}
	r.Status = model.StatusConfirmed
	m.regs[regKey(userID, eventID)] = r
	e.Waitlist = slices.Clone(e.Waitlist)[1:]
	e.RegisteredCount++
	e.UpdatedAt = time.Now().UTC()
	m.events[eventID] = e
	return copyEvent(e), nil
}
