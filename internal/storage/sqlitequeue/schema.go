package sqlitequeue

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS queued_harvests (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  client_ref TEXT NOT NULL UNIQUE,
  producer_ref TEXT NOT NULL,
  plot_ref TEXT NOT NULL,
  quantity TEXT NOT NULL,
  crop_type TEXT NOT NULL,
  unit TEXT NOT NULL,
  captured_at TEXT NOT NULL,
  sync_state TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  next_attempt_at TEXT NOT NULL,
  last_error TEXT NULL,
  created_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_queued_harvests_pending ON queued_harvests(sync_state, id)`,
		`
CREATE TABLE IF NOT EXISTS queued_scans (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  code TEXT NOT NULL UNIQUE,
  captured_at TEXT NOT NULL,
  sync_state TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  next_attempt_at TEXT NOT NULL,
  last_error TEXT NULL,
  created_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_queued_scans_pending ON queued_scans(sync_state, id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrapf(ErrStorage, "init schema: %v", err)
		}
	}
	return nil
}
