// Package statushttp serves the offline subsystem's observable state to the
// embedding UI over localhost: snapshot, pending records, manual sync trigger
// and a websocket push of every snapshot change.
package statushttp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/models"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/services/sweeper"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status"
)

type PendingLister interface {
	ListPendingHarvests(ctx context.Context) ([]*models.QueuedHarvest, error)
	ListPendingScans(ctx context.Context) ([]*models.QueuedScan, error)
}

type Triggerer interface {
	Trigger(reason sweeper.Reason)
	Stats() sweeper.Stats
}

type Opts struct {
	Addr     string
	OnListen func(addr string)

	Bus     *status.Bus
	Queue   PendingLister
	Sweeper Triggerer
}

func Run(ctx context.Context, opts Opts) error {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8091"
	}

	lis, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}
	if opts.OnListen != nil {
		opts.OnListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: router(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func router(opts Opts) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		snap := opts.Bus.Snapshot()
		out := map[string]any{
			"snapshot": snap,
		}
		if opts.Sweeper != nil {
			out["sweeper"] = opts.Sweeper.Stats()
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Get("/pending", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.Queue == nil {
			_, _ = w.Write([]byte(`{"error":"queue not wired"}`))
			return
		}
		harvests, err := opts.Queue.ListPendingHarvests(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		scans, err := opts.Queue.ListPendingScans(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"harvests": pendingHarvestsJSON(harvests),
			"scans":    pendingScansJSON(scans),
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.Sweeper == nil {
			_, _ = w.Write([]byte(`{"error":"sweeper not wired"}`))
			return
		}
		opts.Sweeper.Trigger(sweeper.ReasonManual)
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Get("/ws", wsHandler(opts.Bus))

	return r
}

func writeErr(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

type pendingHarvest struct {
	ID          uint64 `json:"id"`
	ProducerRef string `json:"producerRef"`
	PlotRef     string `json:"plotRef"`
	Quantity    string `json:"quantity"`
	CropType    string `json:"cropType"`
	Unit        string `json:"unit"`
	CapturedAt  string `json:"capturedAt"`
	Attempts    int32  `json:"attempts"`
	LastError   string `json:"lastError,omitempty"`
}

type pendingScan struct {
	ID         uint64 `json:"id"`
	Code       string `json:"code"`
	CapturedAt string `json:"capturedAt"`
	Attempts   int32  `json:"attempts"`
	LastError  string `json:"lastError,omitempty"`
}

func pendingHarvestsJSON(in []*models.QueuedHarvest) []pendingHarvest {
	out := make([]pendingHarvest, 0, len(in))
	for _, h := range in {
		p := pendingHarvest{
			ID:          h.ID,
			ProducerRef: h.ProducerRef,
			PlotRef:     h.PlotRef,
			Quantity:    h.Quantity.String(),
			CropType:    h.CropType,
			Unit:        h.Unit,
			CapturedAt:  h.CapturedAt.Format(time.RFC3339),
			Attempts:    h.Attempts,
		}
		if h.LastError != nil {
			p.LastError = *h.LastError
		}
		out = append(out, p)
	}
	return out
}

func pendingScansJSON(in []*models.QueuedScan) []pendingScan {
	out := make([]pendingScan, 0, len(in))
	for _, sc := range in {
		p := pendingScan{
			ID:         sc.ID,
			Code:       sc.Code,
			CapturedAt: sc.CapturedAt.Format(time.RFC3339),
			Attempts:   sc.Attempts,
		}
		if sc.LastError != nil {
			p.LastError = *sc.LastError
		}
		out = append(out, p)
	}
	return out
}
