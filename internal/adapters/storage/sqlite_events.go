package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/google/uuid"
)

// Emit agrega los eventos al journal en una transacción.
func (s *SQLiteStorage) Emit(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Emit: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (id, name, epoch, at, attrs) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.Emit: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		attrs, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("storage.Emit: marshal attrs: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, id, string(e.Name), int64(e.Epoch), e.At.UnixNano(), string(attrs)); err != nil {
			return fmt.Errorf("storage.Emit: insert %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Emit: commit: %w", err)
	}
	return nil
}

// ListEvents devuelve los últimos limit eventos, opcionalmente de un epoch.
// epoch=0 devuelve todos. Orden: más reciente primero.
func (s *SQLiteStorage) ListEvents(ctx context.Context, epoch uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, name, epoch, at, attrs FROM events ORDER BY seq DESC LIMIT ?`
	args := []any{limit}
	if epoch > 0 {
		query = `SELECT id, name, epoch, at, attrs FROM events WHERE epoch = ? ORDER BY seq DESC LIMIT ?`
		args = []any{int64(epoch), limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.ListEvents: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e     domain.Event
			name  string
			ep    int64
			at    int64
			attrs string
		)
		if err := rows.Scan(&e.ID, &name, &ep, &at, &attrs); err != nil {
			return nil, fmt.Errorf("storage.ListEvents: scan row: %w", err)
		}
		e.Name = domain.EventName(name)
		e.Epoch = uint64(ep)
		e.At = time.Unix(0, at).UTC()
		if err := json.Unmarshal([]byte(attrs), &e.Attrs); err != nil {
			return nil, fmt.Errorf("storage.ListEvents: attrs of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
