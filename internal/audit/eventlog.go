package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/coursehub/internal/db"
)

// Event types written by the services.
const (
	QuestionAdded       = "question.added"
	QuestionUpdated     = "question.updated"
	QuestionDeleted     = "question.deleted"
	QuizCreated         = "quiz.created"
	QuizUpdated         = "quiz.updated"
	CourseCreated       = "course.created"
	CourseStatusChanged = "course.status_changed"
	UserRoleChanged     = "user.role_changed"
	UserRegistered      = "user.registered"
	UserStatusChanged   = "user.status_changed"
)

type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// Appender records events. Callers treat failures as non-fatal.
type Appender interface {
	Append(ctx context.Context, e Event) error
}

// NewEvent marshals data into an event with a fresh id.
func NewEvent(typ, key string, data any) (Event, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("audit: marshal %s: %w", typ, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Key:       key,
		DataJSON:  string(b),
		CreatedAt: time.Now().Unix(),
	}, nil
}

type EventRepo struct{ db *db.DB }

func NewEventRepo(d *db.DB) *EventRepo { return &EventRepo{db: d} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (event_id, event_type, subject_key, payload, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.Type, e.Key, e.DataJSON, e.CreatedAt)
	return err
}

// List returns the newest events first, optionally filtered by type.
func (r *EventRepo) List(ctx context.Context, typ string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT event_id, event_type, subject_key, payload, created_at FROM event_log`
	args := []any{}
	if typ != "" {
		q += ` WHERE event_type = $1`
		args = append(args, typ)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, event_id LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Memory keeps events in process.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Append(context.Context, Event) error { return nil }
