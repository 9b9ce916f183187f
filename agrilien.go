// Package agrilien is the offline-first capture and sync core of the
// Agri-Lien field application. The embedding app constructs an Agent, runs it
// for the life of the process, and calls the capture methods from its UI.
// Everything captured lands on the platform eventually: online captures go
// straight through, offline ones queue on disk and drain when connectivity
// returns.
package agrilien

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/config"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/integrations/platform"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/integrations/platform/httpapi"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/models"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/netmon"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/services/dispatch"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/services/sweeper"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status/notify"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status/statushttp"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/storage/sqlitequeue"
)

type options struct {
	remote   platform.Client
	notifier notify.Notifier
	clock    func() time.Time
	onListen func(addr string)
}

type Option func(*options)

// WithRemote substitutes the platform client (tests, emulators).
func WithRemote(c platform.Client) Option {
	return func(o *options) { o.remote = c }
}

// WithNotifier adds a notifier to the chain; the UI registers its toast
// handler here.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock overrides the capture and sweep clock (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithStatusListen observes the bound address of the status HTTP surface.
func WithStatusListen(fn func(addr string)) Option {
	return func(o *options) { o.onListen = fn }
}

// Agent owns the durable queue, the connectivity monitor, the dispatch path
// and the reconciliation sweeper. One Agent per device.
type Agent struct {
	cfg     config.Config
	store   *sqlitequeue.Storage
	remote  platform.Client
	bus     *status.Bus
	monitor *netmon.Monitor
	service *dispatch.Service
	sweeper *sweeper.Sweeper

	onListen   func(addr string)
	unsubStore func()
}

func New(cfg config.Config, src netmon.Source, opts ...Option) (*Agent, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	remote := o.remote
	if remote == nil {
		remote = httpapi.New(cfg.Remote.BaseURL, cfg.Remote.APIKey,
			time.Duration(cfg.Remote.TimeoutSeconds)*time.Second)
	}

	store, err := sqlitequeue.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	bus := status.NewBus(status.Snapshot{Online: src.Current()})
	notifier := notify.Notifier(bus)
	if o.notifier != nil {
		notifier = notify.Multi(bus, o.notifier)
	}

	debounce := time.Duration(cfg.Network.DebounceMillis) * time.Millisecond
	monitor := netmon.New(src, debounce)

	policy := dispatch.New(monitor, notifier)
	service := dispatch.NewService(policy, store, remote)

	sw := sweeper.New(store, remote, notifier)
	if cfg.Sweeper.RetryInitialSeconds > 0 || cfg.Sweeper.RetryMaxSeconds > 0 {
		sw = sw.WithPlanner(sweeper.NewPlanner(
			time.Duration(cfg.Sweeper.RetryInitialSeconds)*time.Second,
			time.Duration(cfg.Sweeper.RetryMaxSeconds)*time.Second))
	}
	if o.clock != nil {
		service = service.WithClock(o.clock)
		sw = sw.WithClock(o.clock)
	}

	a := &Agent{
		cfg:      cfg,
		store:    store,
		remote:   remote,
		bus:      bus,
		monitor:  monitor,
		service:  service,
		sweeper:  sw,
		onListen: o.onListen,
	}

	monitor.OnChange(bus.SetOnline)
	monitor.OnOnline(func() { sw.Trigger(sweeper.ReasonReachability) })
	sw.OnSweepState = bus.SetSweepInProgress
	a.unsubStore = store.Subscribe(func(sqlitequeue.Change) {
		a.refreshPending(context.Background())
	})

	return a, nil
}

// Run drives the agent until ctx is cancelled: connectivity monitoring, the
// sweeper loop and, when configured, the localhost status surface. A backlog
// left over from a previous session is swept immediately if the device comes
// up online.
func (a *Agent) Run(ctx context.Context) error {
	a.refreshPending(ctx)

	errCh := make(chan error, 3)
	parts := 2
	go func() { errCh <- a.monitor.Run(ctx) }()
	go func() { errCh <- a.sweeper.Run(ctx) }()
	if a.cfg.Status.HTTPAddr != "" {
		parts++
		go func() {
			errCh <- a.runStatusHTTP(ctx)
		}()
	}

	if a.monitor.Online() {
		a.sweeper.Trigger(sweeper.ReasonReachability)
	}

	var first error
	for i := 0; i < parts; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
		}
	}
	return first
}

// Close releases the durable queue. Call after Run has returned.
func (a *Agent) Close() error {
	a.unsubStore()
	return a.store.Close()
}

// DeclareHarvest captures a harvest declaration, remote first with local
// fallback.
func (a *Agent) DeclareHarvest(ctx context.Context, in models.HarvestInput) (dispatch.Outcome, error) {
	return a.service.DeclareHarvest(ctx, in)
}

// ScanBatch captures a batch code scan. A code already captured on this
// device is rejected before anything is sent or stored.
func (a *Agent) ScanBatch(ctx context.Context, code string) (dispatch.Outcome, error) {
	return a.service.ScanBatch(ctx, code)
}

// Status returns the current observable state for the UI.
func (a *Agent) Status() status.Snapshot {
	return a.bus.Snapshot()
}

// SubscribeStatus registers a callback for every snapshot change and returns
// the unsubscribe function.
func (a *Agent) SubscribeStatus(fn func(status.Snapshot)) func() {
	return a.bus.Subscribe(fn)
}

// PendingCounts reads the queue directly, bypassing the bus cache.
func (a *Agent) PendingCounts(ctx context.Context) (harvests, scans int, err error) {
	return a.store.PendingCounts(ctx)
}

// TriggerSync requests a sweep on the user's behalf ("synchroniser
// maintenant"). Best-effort; the sweep itself reports through the notifier.
func (a *Agent) TriggerSync() {
	a.sweeper.Trigger(sweeper.ReasonManual)
}

// Online reports the debounced connectivity state.
func (a *Agent) Online() bool {
	return a.monitor.Online()
}

func (a *Agent) runStatusHTTP(ctx context.Context) error {
	return statushttp.Run(ctx, statushttp.Opts{
		Addr:     a.cfg.Status.HTTPAddr,
		OnListen: a.onListen,
		Bus:      a.bus,
		Queue:    a.store,
		Sweeper:  a.sweeper,
	})
}

func (a *Agent) refreshPending(ctx context.Context) {
	harvests, scans, err := a.store.PendingCounts(ctx)
	if err != nil {
		slog.Warn("pending counts refresh failed", "error", err)
		return
	}
	a.bus.SetPending(harvests, scans)
}
