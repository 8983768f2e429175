package sink

import (
	"context"
	"database/sql"
	"fmt"

	"biotune/backend/services/bridge-service/internal/models"
)

// PostgresSink upserts one row per reading kind.
type PostgresSink struct {
	db     *sql.DB
	query  string
	schema string
}

// NewPostgresSink returns a sink writing to table, which must have a unique key on kind.
func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	query := fmt.Sprintf("INSERT INTO %s (kind, value, observed_at, session_id, updated_at) "+
		"VALUES ($1, $2, $3, $4, NOW()) "+
		"ON CONFLICT (kind) DO UPDATE SET value = EXCLUDED.value, observed_at = EXCLUDED.observed_at, "+
		"session_id = EXCLUDED.session_id, updated_at = NOW()", table)
	schema := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
		"kind TEXT PRIMARY KEY, value INTEGER NOT NULL, observed_at TIMESTAMPTZ NOT NULL, "+
		"session_id TEXT NOT NULL DEFAULT '', updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW())", table)
	return &PostgresSink{db: db, query: query, schema: schema}
}

// EnsureTable creates the table when it is missing.
func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schema); err != nil {
		return fmt.Errorf("create readings table: %w", err)
	}
	return nil
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return DriverPostgres }

// Upload implements Sink.
func (s *PostgresSink) Upload(ctx context.Context, r models.Reading) error {
	_, err := s.db.ExecContext(ctx, s.query,
		string(r.Kind),
		r.Value,
		r.ObservedAt,
		r.SessionID,
	)
	if err != nil {
		return uploadFailed(s.Name(), err)
	}
	return nil
}

var _ Sink = (*PostgresSink)(nil)
