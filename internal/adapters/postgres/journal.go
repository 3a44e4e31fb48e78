// Package postgres stores the market event journal in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS market_events (
    seq        BIGSERIAL PRIMARY KEY,
    id         UUID        NOT NULL UNIQUE,
    name       TEXT        NOT NULL,
    epoch      BIGINT      NOT NULL DEFAULT 0,
    at         TIMESTAMPTZ NOT NULL,
    attrs      JSONB       NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_market_events_epoch ON market_events(epoch);
`

// Journal implements ports.EventSink as an append-only table.
type Journal struct {
	pool *pgxpool.Pool
}

var _ ports.EventSink = (*Journal)(nil)

// Open connects to dsn, pings, and applies the schema.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}
	return &Journal{pool: pool}, nil
}

// NewJournal wraps an existing pool. The schema must already exist.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Emit inserts events in one batch.
func (j *Journal) Emit(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	const query = `INSERT INTO market_events (id, name, epoch, at, attrs) VALUES ($1, $2, $3, $4, $5)`
	batch := &pgx.Batch{}
	for _, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		attrs, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("postgres: marshal attrs of %s: %w", e.Name, err)
		}
		batch.Queue(query, id, string(e.Name), int64(e.Epoch), e.At.UTC(), attrs)
	}

	if err := j.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert %d events: %w", len(events), err)
	}
	return nil
}

// List returns up to limit events of epoch (0 = any), newest first.
func (j *Journal) List(ctx context.Context, epoch uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id::text, name, epoch, at, attrs FROM market_events`
	args := []any{}
	if epoch > 0 {
		query += ` WHERE epoch = $1`
		args = append(args, int64(epoch))
	}
	query += fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e     domain.Event
			name  string
			ep    int64
			at    time.Time
			attrs []byte
		)
		if err := rows.Scan(&e.ID, &name, &ep, &at, &attrs); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Name = domain.EventName(name)
		e.Epoch = uint64(ep)
		e.At = at.UTC()
		if err := json.Unmarshal(attrs, &e.Attrs); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal attrs of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (j *Journal) Close() {
	j.pool.Close()
}
