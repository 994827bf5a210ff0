package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Intent is a lifecycle event recorded in the outbox alongside the state change
// that produced it.
type Intent interface {
	EventType() string
}

// Envelope is the JSON document stored in outbox.payload.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	EventType  string          `json:"event_type"`
	Aggregate  string          `json:"aggregate"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Option adjusts an envelope before it is written.
type Option func(*Envelope)

// WithEventID pins the event id, mainly for tests and replays.
func WithEventID(id uuid.UUID) Option {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// OccurredAt overrides the recorded event time.
func OccurredAt(ts time.Time) Option {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.OccurredAt = ts.UTC()
		}
	}
}

var (
	ErrNoAggregate = errors.New("events: aggregate is required")
	ErrNoIntent    = errors.New("events: intent is required")

	clock = time.Now
)

func seal(aggregate string, intent Intent, opts ...Option) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	if aggregate == "" {
		return Envelope{}, ErrNoAggregate
	}
	if intent == nil {
		return Envelope{}, ErrNoIntent
	}
	eventType := strings.TrimSpace(intent.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: %T has no event type", intent)
	}
	body, err := json.Marshal(intent)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	env := Envelope{
		EventID:    uuid.New(),
		EventType:  eventType,
		Aggregate:  aggregate,
		OccurredAt: clock().UTC(),
		Payload:    body,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append writes intent to the outbox using exec, which should be the
// transaction that changes the appointment row.
func Append(ctx context.Context, exec execer, aggregate string, intent Intent, opts ...Option) (Envelope, error) {
	if exec == nil {
		return Envelope{}, errors.New("events: exec required")
	}
	env, err := seal(aggregate, intent, opts...)
	if err != nil {
		return Envelope{}, err
	}
	doc, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	if _, err := exec.Exec(ctx, `
		INSERT INTO outbox (id, aggregate, event_type, payload)
		VALUES ($1, $2, $3, $4)`,
		env.EventID, env.Aggregate, env.EventType, doc,
	); err != nil {
		return Envelope{}, fmt.Errorf("events: append %s: %w", env.EventType, err)
	}
	return env, nil
}

// Decode unpacks an outbox entry's envelope and unmarshals its payload into v.
func Decode(entry OutboxEntry, v any) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(entry.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: decode envelope %s: %w", entry.ID, err)
	}
	if env.EventType != "" && entry.Type != "" && env.EventType != entry.Type {
		return Envelope{}, fmt.Errorf("events: entry %s is %s but envelope says %s", entry.ID, entry.Type, env.EventType)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return Envelope{}, fmt.Errorf("events: decode %s payload: %w", env.EventType, err)
	}
	return env, nil
}
