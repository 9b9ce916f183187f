// Package sweeper drains the local durable queue into the server-of-record,
// exactly once per record: an entry is removed only after positive server
// acknowledgment, where "already recorded" counts as acknowledgment.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/integrations/platform"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/models"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status/notify"
)

// Reason a sweep was triggered.
type Reason string

const (
	// ReasonReachability: the device just came back online. Retry windows
	// are bypassed for this pass.
	ReasonReachability Reason = "reachability"
	// ReasonManual: the user (or the status surface) asked for a sweep.
	ReasonManual Reason = "manual"
)

type Repository interface {
	ListPendingHarvests(ctx context.Context) ([]*models.QueuedHarvest, error)
	ListPendingScans(ctx context.Context) ([]*models.QueuedScan, error)
	ResolveHarvest(ctx context.Context, id uint64) error
	ResolveScan(ctx context.Context, id uint64) error
	RecordHarvestFailure(ctx context.Context, id uint64, attempts int32, nextAttempt time.Time, cause string) error
	RecordScanFailure(ctx context.Context, id uint64, attempts int32, nextAttempt time.Time, cause string) error
}

type Sweeper struct {
	repo     Repository
	remote   platform.Client
	notifier notify.Notifier
	planner  *Planner

	// OnSweepState, when set, observes sweep begin/end (status surface).
	// Distinct from the notifier: an empty sweep is silent for the user but
	// still visible here.
	OnSweepState func(inProgress bool, at time.Time)

	now func() time.Time

	triggerCh chan Reason

	lastSweepUnixNano atomic.Int64
	totalSwept        atomic.Int64
	totalResolved     atomic.Int64
	totalFailed       atomic.Int64
	inProgress        atomic.Bool
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(repo Repository, remote platform.Client, notifier notify.Notifier) *Sweeper {
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Sweeper{
		repo:      repo,
		remote:    remote,
		notifier:  notifier,
		planner:   DefaultPlanner(),
		now:       func() time.Time { return time.Now().UTC() },
		triggerCh: make(chan Reason, 1),
	}
}

func (s *Sweeper) WithPlanner(p *Planner) *Sweeper {
	if p != nil {
		s.planner = p
	}
	return s
}

// WithClock overrides the sweep clock (tests).
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Trigger requests a sweep (best-effort, non-blocking). A sweep already in
// flight absorbs the request: both queues are fully drained each pass anyway.
func (s *Sweeper) Trigger(reason Reason) {
	select {
	case s.triggerCh <- reason:
	default:
	}
}

type Stats struct {
	LastSweepAt   *time.Time `json:"lastSweepAt,omitempty"`
	TotalSwept    int64      `json:"totalSwept"`
	TotalResolved int64      `json:"totalResolved"`
	TotalFailed   int64      `json:"totalFailed"`
	InProgress    bool       `json:"inProgress"`
	LastError     string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		TotalSwept:    s.totalSwept.Load(),
		TotalResolved: s.totalResolved.Load(),
		TotalFailed:   s.totalFailed.Load(),
		InProgress:    s.inProgress.Load(),
	}
	if n := s.lastSweepUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastSweepAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

// Run consumes triggers until ctx is done. Sweeps run serially; there is no
// periodic ticker, the sweeper is purely edge-triggered.
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-s.triggerCh:
			s.SweepOnce(ctx, reason)
		}
	}
}

// SweepOnce drains both queues once and returns the number of records the
// server acknowledged.
func (s *Sweeper) SweepOnce(ctx context.Context, reason Reason) int {
	now := s.now()

	harvests, err := s.repo.ListPendingHarvests(ctx)
	if err != nil {
		s.fail("list pending harvests", err)
		return 0
	}
	scans, err := s.repo.ListPendingScans(ctx)
	if err != nil {
		s.fail("list pending scans", err)
		return 0
	}

	harvests = dueHarvests(harvests, reason, now)
	scans = dueScans(scans, reason, now)
	if len(harvests)+len(scans) == 0 {
		return 0 // nothing to say for an empty sweep
	}

	s.inProgress.Store(true)
	if s.OnSweepState != nil {
		s.OnSweepState(true, now)
	}
	s.notifier.OnStatus(notify.KindSyncStarted, "Synchronisation des données en cours...")

	resolved := 0
	for _, h := range harvests {
		if s.submitHarvest(ctx, h) {
			resolved++
		}
	}
	for _, sc := range scans {
		if s.submitScan(ctx, sc) {
			resolved++
		}
	}

	end := s.now()
	s.lastSweepUnixNano.Store(end.UnixNano())
	s.totalSwept.Add(int64(len(harvests) + len(scans)))
	s.inProgress.Store(false)
	if s.OnSweepState != nil {
		s.OnSweepState(false, end)
	}

	if resolved > 0 {
		s.notifier.OnStatus(notify.KindSyncCompleted,
			fmt.Sprintf("%d éléments synchronisés avec succès !", resolved))
	}
	return resolved
}

func (s *Sweeper) submitHarvest(ctx context.Context, h *models.QueuedHarvest) bool {
	err := s.remote.SubmitHarvest(ctx, platform.HarvestSubmission{
		ClientRef:   h.ClientRef,
		ProducerRef: h.ProducerRef,
		PlotRef:     h.PlotRef,
		Quantity:    h.Quantity,
		CropType:    h.CropType,
		Unit:        h.Unit,
		CapturedAt:  h.CapturedAt,
	})
	// A duplicate proves the logical effect already landed; retrying forever
	// on it would wedge the queue.
	if err == nil || errors.Is(err, platform.ErrDuplicate) {
		if rerr := s.repo.ResolveHarvest(ctx, h.ID); rerr != nil {
			// Record stays pending; the server will answer duplicate next pass.
			s.fail("resolve harvest", rerr)
			return false
		}
		s.totalResolved.Add(1)
		return true
	}

	s.totalFailed.Add(1)
	attempts := h.Attempts + 1
	next := s.now().Add(s.planner.Delay(attempts))
	if rerr := s.repo.RecordHarvestFailure(ctx, h.ID, attempts, next, err.Error()); rerr != nil {
		s.fail("record harvest failure", rerr)
	}
	slog.Error("submit harvest", "id", h.ID, "attempts", attempts, "error", err.Error())
	return false
}

func (s *Sweeper) submitScan(ctx context.Context, sc *models.QueuedScan) bool {
	err := s.remote.SubmitScan(ctx, platform.ScanSubmission{
		Code:       sc.Code,
		CapturedAt: sc.CapturedAt,
	})
	if err == nil || errors.Is(err, platform.ErrDuplicate) {
		if rerr := s.repo.ResolveScan(ctx, sc.ID); rerr != nil {
			s.fail("resolve scan", rerr)
			return false
		}
		s.totalResolved.Add(1)
		return true
	}

	s.totalFailed.Add(1)
	attempts := sc.Attempts + 1
	next := s.now().Add(s.planner.Delay(attempts))
	if rerr := s.repo.RecordScanFailure(ctx, sc.ID, attempts, next, err.Error()); rerr != nil {
		s.fail("record scan failure", rerr)
	}
	slog.Error("submit scan", "id", sc.ID, "attempts", attempts, "error", err.Error())
	return false
}

func (s *Sweeper) fail(op string, err error) {
	s.lastErrorMu.Lock()
	s.lastError = op + ": " + err.Error()
	s.lastErrorMu.Unlock()
	slog.Error(op, "error", err.Error())
}

func dueHarvests(in []*models.QueuedHarvest, reason Reason, now time.Time) []*models.QueuedHarvest {
	if reason == ReasonReachability {
		return in
	}
	out := in[:0]
	for _, h := range in {
		if !h.NextAttemptAt.After(now) {
			out = append(out, h)
		}
	}
	return out
}

func dueScans(in []*models.QueuedScan, reason Reason, now time.Time) []*models.QueuedScan {
	if reason == ReasonReachability {
		return in
	}
	out := in[:0]
	for _, sc := range in {
		if !sc.NextAttemptAt.After(now) {
			out = append(out, sc)
		}
	}
	return out
}
