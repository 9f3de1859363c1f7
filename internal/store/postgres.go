package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventcore/events-api/internal/model"
)

// Tables holds the injected table names. Identifiers are sanitised before use.
type Tables struct {
	Users         string
	Events        string
	Registrations string
}

// PG implements Store on PostgreSQL using pgx directly (no ORM).
//
// Conditional writes are expressed as UPDATE/INSERT statements whose WHERE or
// ON CONFLICT clause carries the precondition; a zero rows-affected result
// means the condition no longer held. Multi-record atomicity comes from
// explicit transactions.
type PG struct {
	db        *pgxpool.Pool
	users     string
	events    string
	regs      string
	opTimeout time.Duration
}

// NewPG constructs a PG store. Zero-valued table names fall back to
// users/events/registrations; a zero opTimeout falls back to 2s.
func NewPG(db *pgxpool.Pool, tables Tables, opTimeout time.Duration) *PG {
	if tables.Users == "" {
		tables.Users = "users"
	}
	if tables.Events == "" {
		tables.Events = "events"
	}
	if tables.Registrations == "" {
		tables.Registrations = "registrations"
	}
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &PG{
		db:        db,
		users:     pgx.Identifier{tables.Users}.Sanitize(),
		events:    pgx.Identifier{tables.Events}.Sanitize(),
		regs:      pgx.Identifier{tables.Registrations}.Sanitize(),
		opTimeout: opTimeout,
	}
}

var _ Store = (*PG)(nil)

const eventCols = "event_id, title, description, date, location, organizer, status, capacity, registered_count, waitlist_enabled, waitlist, created_at, updated_at"

// isTransient reports whether err is worth retrying: connection-level
// failures, serialisation conflicts, and deadlocks.
func isTransient(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "53300", "57P03", "08000", "08003", "08006":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// run executes fn under the per-call deadline, retrying transient failures
// with capped exponential backoff (3 attempts, 50-400ms). Transient failures
// that survive the budget surface as ErrUnavailable.
func (s *PG) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 400 * time.Millisecond

	err := backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))

	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.EventID, &e.Title, &e.Description, &e.Date, &e.Location,
		&e.Organizer, &e.Status, &e.Capacity, &e.RegisteredCount,
		&e.WaitlistEnabled, &e.Waitlist, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Recompute()
	return &e, nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(&r.UserID, &r.EventID, &r.Status, &r.RegisteredAt, &r.EventTitle, &r.EventDate)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ── Users ────────────────────────────────────────────────────────────────────

func (s *PG) PutUserIfAbsent(ctx context.Context, user model.User) error {
	return s.run(ctx, func(ctx context.Context) error {
		ct, err := s.db.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (user_id, name, created_at, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id) DO NOTHING`, s.users),
			user.UserID, user.Name, user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrDuplicate
		}
		return nil
	})
}

func (s *PG) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.run(ctx, func(ctx context.Context) error {
		err := s.db.QueryRow(ctx, fmt.Sprintf(
			`SELECT user_id, name, created_at, updated_at FROM %s WHERE user_id = $1`, s.users),
			userID,
		).Scan(&u.UserID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ── Events ───────────────────────────────────────────────────────────────────

func (s *PG) PutEvent(ctx context.Context, event model.Event) error {
	return s.run(ctx, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (%s)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (event_id) DO UPDATE SET
			   title = EXCLUDED.title, description = EXCLUDED.description,
			   date = EXCLUDED.date, location = EXCLUDED.location,
			   organizer = EXCLUDED.organizer, status = EXCLUDED.status,
			   capacity = EXCLUDED.capacity, registered_count = EXCLUDED.registered_count,
			   waitlist_enabled = EXCLUDED.waitlist_enabled, waitlist = EXCLUDED.waitlist,
			   updated_at = EXCLUDED.updated_at`, s.events, eventCols),
			event.EventID, event.Title, event.Description, event.Date, event.Location,
			event.Organizer, event.Status, event.Capacity, event.RegisteredCount,
			event.WaitlistEnabled, event.Waitlist, event.CreatedAt, event.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("put event: %w", err)
		}
		return nil
	})
}

func (s *PG) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	var e *model.Event
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		e, err = scanEvent(s.db.QueryRow(ctx, fmt.Sprintf(
			`SELECT %s FROM %s WHERE event_id = $1`, eventCols, s.events), eventID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PG) ListEvents(ctx context.Context, statusFilter string) ([]model.Event, error) {
	var events []model.Event
	err := s.run(ctx, func(ctx context.Context) error {
		query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC`, eventCols, s.events)
		args := []any{}
		if statusFilter != "" {
			query = fmt.Sprintf(`SELECT %s FROM %s WHERE status = $1 ORDER BY created_at DESC`, eventCols, s.events)
			args = append(args, statusFilter)
		}
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		defer rows.Close()

		events = events[:0]
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			events = append(events, *e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *PG) UpdateEventOpaque(ctx context.Context, eventID string, patch model.EventPatch) (*model.Event, error) {
	var sets []string
	var args []any
	add := func(col string, v *string) {
		if v != nil {
			args = append(args, *v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("title", patch.Title)
	add("description", patch.Description)
	add("date", patch.Date)
	add("location", patch.Location)
	add("organizer", patch.Organizer)
	add("status", patch.Status)
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, eventID)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE event_id = $%d RETURNING %s`,
		s.events, strings.Join(sets, ", "), len(args), eventCols)

	var e *model.Event
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		e, err = scanEvent(s.db.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PG) DeleteEvent(ctx context.Context, eventID string) error {
	return s.run(ctx, func(ctx context.Context) error {
		ct, err := s.db.Exec(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE event_id = $1`, s.events), eventID)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ── Registrations ────────────────────────────────────────────────────────────

func (s *PG) GetRegistration(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	var r *model.Registration
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		r, err = scanRegistration(s.db.QueryRow(ctx, fmt.Sprintf(
			`SELECT user_id, event_id, status, registered_at, event_title, event_date
			 FROM %s WHERE user_id = $1 AND event_id = $2`, s.regs),
			userID, eventID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PG) QueryRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return s.queryRegistrations(ctx, "user_id", userID)
}

func (s *PG) QueryRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return s.queryRegistrations(ctx, "event_id", eventID)
}

func (s *PG) queryRegistrations(ctx context.Context, col, key string) ([]model.Registration, error) {
	var regs []model.Registration
	err := s.run(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, fmt.Sprintf(
			`SELECT user_id, event_id, status, registered_at, event_title, event_date
			 FROM %s WHERE %s = $1`, s.regs, col), key)
		if err != nil {
			return fmt.Errorf("query registrations: %w", err)
		}
		defer rows.Close()

		regs = regs[:0]
		for rows.Next() {
			r, err := scanRegistration(rows)
			if err != nil {
				return fmt.Errorf("scan registration: %w", err)
			}
			regs = append(regs, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// ── Transactions ─────────────────────────────────────────────────────────────

// eventExists distinguishes "record gone" from "condition no longer holds"
// after a conditional update matched zero rows.
func (s *PG) eventExists(ctx context.Context, tx pgx.Tx, eventID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE event_id = $1)`, s.events), eventID).Scan(&exists)
	return exists, err
}

func (s *PG) inTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return s.run(ctx, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

func (s *PG) TxRegisterConfirmed(ctx context.Context, reg model.Registration) (*model.Event, error) {
	var event *model.Event
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (user_id, event_id, status, registered_at, event_title, event_date)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id, event_id) DO NOTHING`, s.regs),
			reg.UserID, reg.EventID, model.StatusConfirmed, reg.RegisteredAt, reg.EventTitle, reg.EventDate,
		)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrConditionFailed
		}

		event, err = scanEvent(tx.QueryRow(ctx, fmt.Sprintf(
			`UPDATE %s
			 SET registered_count = registered_count + 1, updated_at = $2
			 WHERE event_id = $1 AND registered_count < capacity
			 RETURNING %s`, s.events, eventCols),
			reg.EventID, time.Now().UTC()))
		if errors.Is(err, pgx.ErrNoRows) {
			exists, exErr := s.eventExists(ctx, tx, reg.EventID)
			if exErr != nil {
				return fmt.Errorf("check event: %w", exErr)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConditionFailed
		}
		if err != nil {
			return fmt.Errorf("increment registered_count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *PG) TxRegisterWaitlist(ctx context.Context, reg model.Registration) (*model.Event, error) {
	var event *model.Event
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (user_id, event_id, status, registered_at, event_title, event_date)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id, event_id) DO NOTHING`, s.regs),
			reg.UserID, reg.EventID, model.StatusWaitlist, reg.RegisteredAt, reg.EventTitle, reg.EventDate,
		)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrConditionFailed
		}

		event, err = scanEvent(tx.QueryRow(ctx, fmt.Sprintf(
			`UPDATE %s
			 SET waitlist = array_append(waitlist, $2), updated_at = $3
			 WHERE event_id = $1
			   AND registered_count >= capacity
			   AND waitlist_enabled
			   AND NOT ($2 = ANY(waitlist))
			 RETURNING %s`, s.events, eventCols),
			reg.EventID, reg.UserID, time.Now().UTC()))
		if errors.Is(err, pgx.ErrNoRows) {
			exists, exErr := s.eventExists(ctx, tx, reg.EventID)
			if exErr != nil {
				return fmt.Errorf("check event: %w", exErr)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConditionFailed
		}
		if err != nil {
			return fmt.Errorf("append waitlist: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *PG) TxUnregisterConfirmed(ctx context.Context, userID, eventID string) (*model.Event, error) {
	var event *model.Event
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE user_id = $1 AND event_id = $2 AND status = $3`, s.regs),
			userID, eventID, model.StatusConfirmed,
		)
		if err != nil {
			return fmt.Errorf("delete registration: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrConditionFailed
		}

		event, err = scanEvent(tx.QueryRow(ctx, fmt.Sprintf(
			`UPDATE %s
			 SET registered_count = registered_count - 1, updated_at = $2
			 WHERE event_id = $1 AND registered_count > 0
			 RETURNING %s`, s.events, eventCols),
			eventID, time.Now().UTC()))
		if errors.Is(err, pgx.ErrNoRows) {
			exists, exErr := s.eventExists(ctx, tx, eventID)
			if exErr != nil {
				return fmt.Errorf("check event: %w", exErr)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConditionFailed
		}
		if err != nil {
			return fmt.Errorf("decrement registered_count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *PG) TxUnregisterWaitlist(ctx context.Context, userID, eventID string) (*model.Event, error) {
	var event *model.Event
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE user_id = $1 AND event_id = $2 AND status = $3`, s.regs),
			userID, eventID, model.StatusWaitlist,
		)
		if err != nil {
			return fmt.Errorf("delete registration: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrConditionFailed
		}

		// array_remove keeps the relative order of the remaining entries.
		event, err = scanEvent(tx.QueryRow(ctx, fmt.Sprintf(
			`UPDATE %s
			 SET waitlist = array_remove(waitlist, $2), updated_at = $3
			 WHERE event_id = $1 AND $2 = ANY(waitlist)
			 RETURNING %s`, s.events, eventCols),
			eventID, userID, time.Now().UTC()))
		if errors.Is(err, pgx.ErrNoRows) {
			exists, exErr := s.eventExists(ctx, tx, eventID)
			if exErr != nil {
				return fmt.Errorf("check event: %w", exErr)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConditionFailed
		}
		if err != nil {
			return fmt.Errorf("remove from waitlist: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *PG) TxPromoteHead(ctx context.Context, eventID, userID string) (*model.Event, error) {
	var event *model.Event
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		event, err = scanEvent(tx.QueryRow(ctx, fmt.Sprintf(
			`UPDATE %s
			 SET waitlist = waitlist[2:],
			     registered_count = registered_count + 1,
			     updated_at = $3
			 WHERE event_id = $1 AND waitlist[1] = $2 AND registered_count < capacity
			 RETURNING %s`, s.events, eventCols),
			eventID, userID, time.Now().UTC()))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConditionFailed
		}
		if err != nil {
			return fmt.Errorf("pop waitlist head: %w", err)
		}

		ct, err := tx.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET status = $3 WHERE user_id = $1 AND event_id = $2 AND status = $4`, s.regs),
			userID, eventID, model.StatusConfirmed, model.StatusWaitlist,
		)
		if err != nil {
			return fmt.Errorf("confirm registration: %w", err)
		}
		if ct.RowsAffected() == 0 {
			// The head's registration vanished; abort so the pop does not
			// commit. The caller skips promotion.
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}
