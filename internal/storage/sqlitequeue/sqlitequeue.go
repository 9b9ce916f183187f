// Package sqlitequeue is the on-device durable queue backing offline capture.
// Records live in a single SQLite file and survive app restarts and reboots.
package sqlitequeue

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const dbFileName = "offline-queue.db"

// Times are persisted as UTC text so they round-trip across drivers.
const timeLayout = time.RFC3339Nano

var (
	// ErrStorage marks a device storage failure. This is the one unrecoverable
	// failure mode of the subsystem and must be surfaced loudly.
	ErrStorage = errors.New("device storage failure")

	// ErrDuplicateScan is returned when a scan code is already queued locally.
	ErrDuplicateScan = errors.New("scan code already queued on this device")
)

type Storage struct {
	db *sql.DB

	subs subscribers
}

func Open(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(ErrStorage, "create data dir: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFileName))
	if err != nil {
		return nil, errors.Wrapf(ErrStorage, "open sqlite: %v", err)
	}

	// SQLite has a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(ErrStorage, "apply %s: %v", pragma, err)
		}
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PendingCounts returns the number of pending records per kind.
func (s *Storage) PendingCounts(ctx context.Context) (harvests, scans int, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM queued_harvests WHERE sync_state = ?),
  (SELECT COUNT(*) FROM queued_scans WHERE sync_state = ?)
`, "pending", "pending")
	if err := row.Scan(&harvests, &scans); err != nil {
		return 0, 0, errors.Wrapf(ErrStorage, "count pending: %v", err)
	}
	return harvests, scans, nil
}

func storageErr(op string, err error) error {
	return errors.Wrapf(ErrStorage, "%s: %v", op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
