package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/consultation-reminders/internal/observability/metrics"
	"github.com/wolfman30/consultation-reminders/pkg/logging"
)

const deliveryConsumer = "lifecycle"

// OutboxEntry is a pending intent.
type OutboxEntry struct {
	ID        uuid.UUID
	Aggregate string
	Type      string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt time.Time
}

// DeliveryHandler performs the side effects an intent asks for.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists intents for reliable delivery.
type OutboxStore struct {
	db DB
}

func NewOutboxStore(db DB) *OutboxStore {
	if db == nil {
		panic("events: outbox db required")
	}
	return &OutboxStore{db: db}
}

// FetchPending returns undelivered entries that have not exhausted their attempts, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error) {
	query := `
		SELECT id, aggregate, event_type, payload, attempts, created_at
		FROM outbox
		WHERE delivered_at IS NULL AND attempts < $2
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Aggregate, &entry.Type, &payload, &entry.Attempts, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// RecordFailure bumps the attempt counter and keeps the last error for reconciliation.
func (s *OutboxStore) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	query := `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, id, msg); err != nil {
		return fmt.Errorf("events: record failure: %w", err)
	}
	return nil
}

type outboxQueue interface {
	FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, cause error) error
}

type processedTracker interface {
	Seen(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Record(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store       outboxQueue
	handler     DeliveryHandler
	processed   processedTracker
	metrics     *metrics.ReminderMetrics
	logger      *logging.Logger
	batchSize   int32
	maxAttempts int
	interval    time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	d := newDeliverer(handler, logger)
	if store != nil {
		d.store = store
	}
	return d
}

func newDeliverer(handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		maxAttempts: 5,
		interval:    2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithMaxAttempts bounds how often a failing entry is retried.
func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

// WithProcessedStore skips entries whose handler already succeeded but whose
// delivered mark was lost.
func (d *Deliverer) WithProcessedStore(store *ProcessedStore) *Deliverer {
	if store != nil {
		d.processed = store
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.ReminderMetrics) *Deliverer {
	d.metrics = m
	return d
}

// Start drains once, then on every interval until ctx is done.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, entry)
	}
}

func (d *Deliverer) deliver(ctx context.Context, entry OutboxEntry) {
	if d.processed != nil {
		seen, err := d.processed.Seen(ctx, deliveryConsumer, entry.ID)
		if err != nil {
			d.logger.Warn("outbox processed check failed", "error", err, "event_id", entry.ID)
		} else if seen {
			d.metrics.ObserveOutbox(entry.Type, "duplicate")
			d.markDelivered(ctx, entry)
			return
		}
	}

	if err := d.handler.Handle(ctx, entry); err != nil {
		d.metrics.ObserveOutbox(entry.Type, "failed")
		d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type, "attempt", entry.Attempts+1)
		if recErr := d.store.RecordFailure(ctx, entry.ID, err); recErr != nil {
			d.logger.Error("failed to record outbox failure", "error", recErr, "event_id", entry.ID)
		}
		if entry.Attempts+1 >= d.maxAttempts {
			d.logger.Error("outbox entry abandoned", "event_id", entry.ID, "type", entry.Type, "aggregate", entry.Aggregate)
		}
		return
	}
	d.metrics.ObserveOutbox(entry.Type, "delivered")

	if d.processed != nil {
		if _, err := d.processed.Record(ctx, deliveryConsumer, entry.ID); err != nil {
			d.logger.Warn("outbox processed mark failed", "error", err, "event_id", entry.ID)
		}
	}
	d.markDelivered(ctx, entry)
}

func (d *Deliverer) markDelivered(ctx context.Context, entry OutboxEntry) {
	if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
		d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
	} else if ok {
		d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
	}
}
