// Package dispatch gives every write call-site one uniform contract: the
// action either reached the server now, or is durably queued for later, and
// the user is told which.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/integrations/platform"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/models"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status/notify"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/storage/sqlitequeue"
)

type Outcome string

const (
	// OutcomeRemote: the server acknowledged the action now.
	OutcomeRemote Outcome = "remote"
	// OutcomeQueued: saved locally, will be reconciled later.
	OutcomeQueued Outcome = "queued"
	// OutcomeLost: the local fallback itself failed; the data must be
	// re-entered.
	OutcomeLost Outcome = "lost"
)

type Connectivity interface {
	Online() bool
}

type Policy struct {
	net      Connectivity
	notifier notify.Notifier
}

func New(net Connectivity, notifier notify.Notifier) *Policy {
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Policy{net: net, notifier: notifier}
}

// Perform runs the remote attempt when the device is online, falling back to
// the local enqueue on any remote failure or when offline. Exactly one of
// {remote success, local enqueue, fatal loss} happens per call.
func (p *Policy) Perform(ctx context.Context, label string, remote, fallback func(context.Context) error) (Outcome, error) {
	if p.net.Online() {
		err := remote(ctx)
		// A duplicate answer means the effect already landed server-side;
		// queueing it would only tell the user "saved locally" for an action
		// that is already authoritative.
		if err == nil || errors.Is(err, platform.ErrDuplicate) {
			p.notifier.OnStatus(notify.KindInfo, fmt.Sprintf("%s : enregistré sur le serveur.", label))
			return OutcomeRemote, nil
		}
		slog.Warn("remote attempt failed, falling back to local queue",
			"label", label, "error", err.Error())
	}

	if err := fallback(ctx); err != nil {
		p.notifier.OnStatus(notify.KindError,
			fmt.Sprintf("%s : échec de l'enregistrement local, veuillez ressaisir les données.", label))
		return OutcomeLost, err
	}

	p.notifier.OnStatus(notify.KindQueued,
		fmt.Sprintf("%s : hors ligne, enregistré localement. Envoi dès le retour du réseau.", label))
	return OutcomeQueued, nil
}

// Queue is the slice of the durable queue the dispatch path needs.
type Queue interface {
	EnqueueHarvest(ctx context.Context, in models.HarvestInput) (*models.QueuedHarvest, error)
	EnqueueScan(ctx context.Context, code string, capturedAt time.Time) (*models.QueuedScan, error)
	HasScanCode(ctx context.Context, code string) (bool, error)
}

// Service wires the policy to the capture operations.
type Service struct {
	policy *Policy
	queue  Queue
	remote platform.Client
	now    func() time.Time
}

func NewService(policy *Policy, queue Queue, remote platform.Client) *Service {
	return &Service{policy: policy, queue: queue, remote: remote, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the capture clock (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// DeclareHarvest captures a harvest declaration. The client ref minted here
// is used on both paths, so a record queued after a half-failed remote
// attempt is deduplicated server-side at sweep time.
func (s *Service) DeclareHarvest(ctx context.Context, in models.HarvestInput) (Outcome, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	if in.ClientRef == "" {
		in.ClientRef = uuid.NewString()
	}
	if in.CapturedAt.IsZero() {
		in.CapturedAt = s.now()
	}

	return s.policy.Perform(ctx, "Déclaration de récolte",
		func(ctx context.Context) error {
			return s.remote.SubmitHarvest(ctx, platform.HarvestSubmission{
				ClientRef:   in.ClientRef,
				ProducerRef: in.ProducerRef,
				PlotRef:     in.PlotRef,
				Quantity:    in.Quantity,
				CropType:    in.CropType,
				Unit:        in.Unit,
				CapturedAt:  in.CapturedAt,
			})
		},
		func(ctx context.Context) error {
			_, err := s.queue.EnqueueHarvest(ctx, in)
			return err
		},
	)
}

// ScanBatch captures a batch-code scan. A code already queued on this device
// is rejected immediately, before any remote round-trip.
func (s *Service) ScanBatch(ctx context.Context, code string) (Outcome, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("code is required")
	}

	queued, err := s.queue.HasScanCode(ctx, code)
	if err != nil {
		return "", err
	}
	if queued {
		return "", sqlitequeue.ErrDuplicateScan
	}

	capturedAt := s.now()
	return s.policy.Perform(ctx, "Scan de lot",
		func(ctx context.Context) error {
			return s.remote.SubmitScan(ctx, platform.ScanSubmission{Code: code, CapturedAt: capturedAt})
		},
		func(ctx context.Context) error {
			_, err := s.queue.EnqueueScan(ctx, code, capturedAt)
			return err
		},
	)
}
