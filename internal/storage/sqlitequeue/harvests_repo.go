package sqlitequeue

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/models"
)

// EnqueueHarvest appends a pending harvest declaration. It performs no
// business validation; a structurally well-formed record always lands unless
// the device storage itself fails.
func (s *Storage) EnqueueHarvest(ctx context.Context, in models.HarvestInput) (*models.QueuedHarvest, error) {
	now := time.Now().UTC()

	ref := in.ClientRef
	if ref == "" {
		ref = uuid.NewString()
	}
	capturedAt := in.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = now
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO queued_harvests (
  client_ref, producer_ref, plot_ref, quantity, crop_type, unit,
  captured_at, sync_state, attempts, next_attempt_at, created_at
)
VALUES (?,?,?,?,?,?,?,?,0,?,?)
`, ref, in.ProducerRef, in.PlotRef, in.Quantity.String(), in.CropType, in.Unit,
		formatTime(capturedAt), models.SyncStatePending, formatTime(now), formatTime(now))
	if err != nil {
		return nil, storageErr("insert harvest", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("harvest insert id", err)
	}

	rec := &models.QueuedHarvest{
		ID:            uint64(id),
		ClientRef:     ref,
		ProducerRef:   in.ProducerRef,
		PlotRef:       in.PlotRef,
		Quantity:      in.Quantity,
		CropType:      in.CropType,
		Unit:          in.Unit,
		CapturedAt:    capturedAt,
		SyncState:     models.SyncStatePending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}

	s.notify(Change{Kind: KindHarvest, Op: OpInsert, ID: rec.ID})
	return rec, nil
}

// ListPendingHarvests returns pending harvests in insertion order.
func (s *Storage) ListPendingHarvests(ctx context.Context) ([]*models.QueuedHarvest, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT
  id, client_ref, producer_ref, plot_ref, quantity, crop_type, unit,
  captured_at, sync_state, attempts, next_attempt_at, last_error, created_at
FROM queued_harvests
WHERE sync_state = ?
ORDER BY id ASC
`, models.SyncStatePending)
	if err != nil {
		return nil, storageErr("select pending harvests", err)
	}
	defer rows.Close()

	var out []*models.QueuedHarvest
	for rows.Next() {
		h, err := scanHarvest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate pending harvests", err)
	}
	return out, nil
}

// RemoveHarvest deletes by local identifier. Removing a missing id is a no-op.
func (s *Storage) RemoveHarvest(ctx context.Context, id uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queued_harvests WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete harvest", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(Change{Kind: KindHarvest, Op: OpRemove, ID: id})
	}
	return nil
}

// ResolveHarvest flips pending -> synced and deletes the record in one
// transaction. Only the sweeper calls this, after remote acknowledgment.
func (s *Storage) ResolveHarvest(ctx context.Context, id uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin resolve harvest", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE queued_harvests SET sync_state = ? WHERE id = ? AND sync_state = ?
`, models.SyncStateSynced, id, models.SyncStatePending)
	if err != nil {
		return storageErr("mark harvest synced", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_harvests WHERE id = ?`, id); err != nil {
		return storageErr("delete synced harvest", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit resolve harvest", err)
	}

	if n > 0 {
		s.notify(Change{Kind: KindHarvest, Op: OpRemove, ID: id})
	}
	return nil
}

// RecordHarvestFailure stores the outcome of a failed submission so the next
// sweep can honor the retry window.
func (s *Storage) RecordHarvestFailure(ctx context.Context, id uint64, attempts int32, nextAttempt time.Time, cause string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE queued_harvests
SET attempts = ?, next_attempt_at = ?, last_error = ?
WHERE id = ?
`, attempts, formatTime(nextAttempt), cause, id)
	if err != nil {
		return storageErr("record harvest failure", err)
	}
	s.notify(Change{Kind: KindHarvest, Op: OpUpdate, ID: id})
	return nil
}

func scanHarvest(rows *sql.Rows) (*models.QueuedHarvest, error) {
	var (
		h             models.QueuedHarvest
		quantity      string
		capturedAt    string
		nextAttemptAt string
		createdAt     string
		lastError     sql.NullString
	)
	if err := rows.Scan(
		&h.ID, &h.ClientRef, &h.ProducerRef, &h.PlotRef, &quantity, &h.CropType, &h.Unit,
		&capturedAt, &h.SyncState, &h.Attempts, &nextAttemptAt, &lastError, &createdAt,
	); err != nil {
		return nil, storageErr("scan harvest", err)
	}

	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return nil, storageErr("parse harvest quantity", err)
	}
	h.Quantity = q
	h.CapturedAt = parseTime(capturedAt)
	h.NextAttemptAt = parseTime(nextAttemptAt)
	h.CreatedAt = parseTime(createdAt)
	if lastError.Valid {
		h.LastError = &lastError.String
	}
	return &h, nil
}
