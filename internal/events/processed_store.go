package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore is a ledger of outbox events a consumer has finished
// handling. It lets the deliverer skip a handler whose success was recorded
// but whose delivered_at update was lost.
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(db rowQuerier) *ProcessedStore {
	if db == nil {
		panic("events: processed store db required")
	}
	return &ProcessedStore{db: db}
}

// Seen reports whether consumer already handled eventID.
func (s *ProcessedStore) Seen(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx,
		`SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`,
		consumer, eventID.String(),
	).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("events: check processed %s: %w", eventID, err)
	}
	return true, nil
}

// Record stores eventID for consumer. It returns false when the row existed.
func (s *ProcessedStore) Record(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		consumer, eventID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("events: record processed %s: %w", eventID, err)
	}
	return ct.RowsAffected() > 0, nil
}

// Prune drops ledger rows older than cutoff and returns how many went.
func (s *ProcessedStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("events: prune processed: %w", err)
	}
	return ct.RowsAffected(), nil
}
