package sqlitequeue

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/models"
)

// EnqueueScan appends a pending batch-code scan. A code already present in
// the local queue is rejected with ErrDuplicateScan before insertion, so
// duplicate work is never queued.
func (s *Storage) EnqueueScan(ctx context.Context, code string, capturedAt time.Time) (*models.QueuedScan, error) {
	now := time.Now().UTC()
	if capturedAt.IsZero() {
		capturedAt = now
	}

	exists, err := s.HasScanCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateScan
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO queued_scans (code, captured_at, sync_state, attempts, next_attempt_at, created_at)
VALUES (?,?,?,0,?,?)
`, code, formatTime(capturedAt), models.SyncStatePending, formatTime(now), formatTime(now))
	if err != nil {
		// UNIQUE index backstop for the pre-check.
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrDuplicateScan
		}
		return nil, storageErr("insert scan", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("scan insert id", err)
	}

	rec := &models.QueuedScan{
		ID:            uint64(id),
		Code:          code,
		CapturedAt:    capturedAt,
		SyncState:     models.SyncStatePending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}

	s.notify(Change{Kind: KindScan, Op: OpInsert, ID: rec.ID})
	return rec, nil
}

// HasScanCode reports whether a code is already queued, whatever its state.
func (s *Storage) HasScanCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM queued_scans WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, storageErr("check scan code", err)
	}
	return exists, nil
}

// ListPendingScans returns pending scans in insertion order.
func (s *Storage) ListPendingScans(ctx context.Context) ([]*models.QueuedScan, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, code, captured_at, sync_state, attempts, next_attempt_at, last_error, created_at
FROM queued_scans
WHERE sync_state = ?
ORDER BY id ASC
`, models.SyncStatePending)
	if err != nil {
		return nil, storageErr("select pending scans", err)
	}
	defer rows.Close()

	var out []*models.QueuedScan
	for rows.Next() {
		sc, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate pending scans", err)
	}
	return out, nil
}

// RemoveScan deletes by local identifier. Removing a missing id is a no-op.
func (s *Storage) RemoveScan(ctx context.Context, id uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queued_scans WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete scan", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(Change{Kind: KindScan, Op: OpRemove, ID: id})
	}
	return nil
}

// ResolveScan flips pending -> synced and deletes the record in one
// transaction. Only the sweeper calls this, after remote acknowledgment.
func (s *Storage) ResolveScan(ctx context.Context, id uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin resolve scan", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE queued_scans SET sync_state = ? WHERE id = ? AND sync_state = ?
`, models.SyncStateSynced, id, models.SyncStatePending)
	if err != nil {
		return storageErr("mark scan synced", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_scans WHERE id = ?`, id); err != nil {
		return storageErr("delete synced scan", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit resolve scan", err)
	}

	if n > 0 {
		s.notify(Change{Kind: KindScan, Op: OpRemove, ID: id})
	}
	return nil
}

// RecordScanFailure stores the outcome of a failed submission so the next
// sweep can honor the retry window.
func (s *Storage) RecordScanFailure(ctx context.Context, id uint64, attempts int32, nextAttempt time.Time, cause string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE queued_scans
SET attempts = ?, next_attempt_at = ?, last_error = ?
WHERE id = ?
`, attempts, formatTime(nextAttempt), cause, id)
	if err != nil {
		return storageErr("record scan failure", err)
	}
	s.notify(Change{Kind: KindScan, Op: OpUpdate, ID: id})
	return nil
}

func scanScan(rows *sql.Rows) (*models.QueuedScan, error) {
	var (
		sc            models.QueuedScan
		capturedAt    string
		nextAttemptAt string
		createdAt     string
		lastError     sql.NullString
	)
	if err := rows.Scan(
		&sc.ID, &sc.Code, &capturedAt, &sc.SyncState, &sc.Attempts, &nextAttemptAt, &lastError, &createdAt,
	); err != nil {
		return nil, storageErr("scan scan row", err)
	}
	sc.CapturedAt = parseTime(capturedAt)
	sc.NextAttemptAt = parseTime(nextAttemptAt)
	sc.CreatedAt = parseTime(createdAt)
	if lastError.Valid {
		sc.LastError = &lastError.String
	}
	return &sc, nil
}
