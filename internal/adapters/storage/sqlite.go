package storage

// sqlite.go: almacenamiento key-value del mercado sobre SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - `kv`: una fila por registro (round, wager, historial, config, estado).
//     Los valores son los bytes versionados del ledger; SQLite no los interpreta.
//   - WriteBatch aplica todas las mutaciones de una llamada en una sola
//     transacción: o se escriben todas o ninguna.
//   - `events`: journal append-only de eventos, ver sqlite_events.go.
//   - Prune automático al arrancar: eventos de más de 90 días.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/predictbot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
-- Registros del mercado, opacos para la DB
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      BLOB     NOT NULL,
    updated_at DATETIME NOT NULL
);

-- Journal de eventos emitidos tras cada llamada confirmada
CREATE TABLE IF NOT EXISTS events (
    seq      INTEGER PRIMARY KEY AUTOINCREMENT,
    id       TEXT     NOT NULL,
    name     TEXT     NOT NULL,
    epoch    INTEGER  NOT NULL DEFAULT 0,
    at       INTEGER  NOT NULL, -- unix nanos
    attrs    TEXT     NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_at    ON events(at DESC);
CREATE INDEX IF NOT EXISTS idx_events_epoch ON events(epoch);
`

const retentionEvents = 90 * 24 * time.Hour // eventos: 90 días

// SQLiteStorage implementa ports.KVStore, ports.BatchWriter y ports.EventSink.
type SQLiteStorage struct {
	db *sql.DB
}

var (
	_ ports.KVStore     = (*SQLiteStorage)(nil)
	_ ports.BatchWriter = (*SQLiteStorage)(nil)
	_ ports.EventSink   = (*SQLiteStorage)(nil)
)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia eventos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Get devuelve el valor bajo key; ok=false si no existe.
func (s *SQLiteStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage.Get %q: %w", key, err)
	}
	return value, true, nil
}

// Set hace upsert de key.
func (s *SQLiteStorage) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertKV, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("storage.Set %q: %w", key, err)
	}
	return nil
}

// Delete borra key; borrar una key inexistente no es error.
func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage.Delete %q: %w", key, err)
	}
	return nil
}

// Has indica si key existe.
func (s *SQLiteStorage) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM kv WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage.Has %q: %w", key, err)
	}
	return true, nil
}

// WriteBatch aplica las mutaciones en una transacción.
func (s *SQLiteStorage) WriteBatch(ctx context.Context, muts []ports.Mutation) error {
	if len(muts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.WriteBatch: begin tx: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, upsertKV)
	if err != nil {
		return fmt.Errorf("storage.WriteBatch: prepare upsert: %w", err)
	}
	defer upsert.Close()

	del, err := tx.PrepareContext(ctx, `DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("storage.WriteBatch: prepare delete: %w", err)
	}
	defer del.Close()

	now := time.Now().UTC()
	for _, m := range muts {
		if m.Delete {
			_, err = del.ExecContext(ctx, m.Key)
		} else {
			_, err = upsert.ExecContext(ctx, m.Key, m.Value, now)
		}
		if err != nil {
			return fmt.Errorf("storage.WriteBatch: %q: %w", m.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.WriteBatch: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

const upsertKV = `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value      = excluded.value,
		updated_at = excluded.updated_at
`

// pruneOld elimina eventos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionEvents)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, cutoff.UnixNano())
	if err != nil {
		slog.Warn("storage: prune events failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("storage: pruned old events", "count", n)
	}
}
