package statushttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/models"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/services/sweeper"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status"
	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status/notify"
)

type fakeQueue struct {
	harvests []*models.QueuedHarvest
	scans    []*models.QueuedScan
}

func (f *fakeQueue) ListPendingHarvests(context.Context) ([]*models.QueuedHarvest, error) {
	return f.harvests, nil
}

func (f *fakeQueue) ListPendingScans(context.Context) ([]*models.QueuedScan, error) {
	return f.scans, nil
}

type fakeTriggerer struct {
	mu      sync.Mutex
	reasons []sweeper.Reason
}

func (f *fakeTriggerer) Trigger(reason sweeper.Reason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
}

func (f *fakeTriggerer) Stats() sweeper.Stats {
	return sweeper.Stats{TotalResolved: 7}
}

func (f *fakeTriggerer) Reasons() []sweeper.Reason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sweeper.Reason(nil), f.reasons...)
}

func startServer(t *testing.T, opts Opts) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addrCh := make(chan string, 1)
	opts.Addr = "127.0.0.1:0"
	opts.OnListen = func(addr string) { addrCh <- addr }

	go func() {
		if err := Run(ctx, opts); err != nil {
			t.Errorf("status server: %v", err)
		}
	}()

	select {
	case addr := <-addrCh:
		return addr
	case <-time.After(2 * time.Second):
		t.Fatal("status server did not start listening")
		return ""
	}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestHealthz(t *testing.T) {
	addr := startServer(t, Opts{Bus: status.NewBus(status.Snapshot{})})

	var out map[string]string
	getJSON(t, fmt.Sprintf("http://%s/healthz", addr), &out)
	require.Equal(t, "ok", out["status"])
}

func TestStatus_ReflectsBusAndSweeper(t *testing.T) {
	bus := status.NewBus(status.Snapshot{Online: true, PendingHarvests: 2})
	bus.OnStatus(notify.KindQueued, "hors ligne, enregistré localement.")
	addr := startServer(t, Opts{Bus: bus, Sweeper: &fakeTriggerer{}})

	var out struct {
		Snapshot status.Snapshot `json:"snapshot"`
		Sweeper  sweeper.Stats   `json:"sweeper"`
	}
	getJSON(t, fmt.Sprintf("http://%s/status", addr), &out)
	require.True(t, out.Snapshot.Online)
	require.Equal(t, 2, out.Snapshot.PendingHarvests)
	require.Equal(t, notify.KindQueued, out.Snapshot.LastMessageKind)
	require.Equal(t, int64(7), out.Sweeper.TotalResolved)
}

func TestPending_ListsQueuedRecords(t *testing.T) {
	lastErr := "agrilien api http 500"
	queue := &fakeQueue{
		harvests: []*models.QueuedHarvest{{
			ID:          1,
			ProducerRef: "PROD-001",
			PlotRef:     "PLOT-009",
			Quantity:    decimal.RequireFromString("120.5"),
			CropType:    models.CropCacao,
			Unit:        models.UnitKilogram,
			CapturedAt:  time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC),
			Attempts:    2,
			LastError:   &lastErr,
		}},
		scans: []*models.QueuedScan{{
			ID:         4,
			Code:       "AGL-SAC-0042",
			CapturedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		}},
	}
	addr := startServer(t, Opts{Bus: status.NewBus(status.Snapshot{}), Queue: queue})

	var out struct {
		Harvests []map[string]any `json:"harvests"`
		Scans    []map[string]any `json:"scans"`
	}
	getJSON(t, fmt.Sprintf("http://%s/pending", addr), &out)

	require.Len(t, out.Harvests, 1)
	require.Equal(t, "120.5", out.Harvests[0]["quantity"])
	require.Equal(t, "CACAO", out.Harvests[0]["cropType"])
	require.Equal(t, "agrilien api http 500", out.Harvests[0]["lastError"])
	require.Len(t, out.Scans, 1)
	require.Equal(t, "AGL-SAC-0042", out.Scans[0]["code"])
}

func TestTrigger_ForwardsManualReason(t *testing.T) {
	trig := &fakeTriggerer{}
	addr := startServer(t, Opts{Bus: status.NewBus(status.Snapshot{}), Sweeper: trig})

	resp, err := http.Post(fmt.Sprintf("http://%s/trigger", addr), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, []sweeper.Reason{sweeper.ReasonManual}, trig.Reasons())
}

func TestWS_PushesSnapshotChanges(t *testing.T) {
	bus := status.NewBus(status.Snapshot{Online: false, PendingHarvests: 1})
	addr := startServer(t, Opts{Bus: bus})

	conn, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", addr), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	readSnap := func() status.Snapshot {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var snap status.Snapshot
		require.NoError(t, conn.ReadJSON(&snap))
		return snap
	}

	first := readSnap()
	require.False(t, first.Online)
	require.Equal(t, 1, first.PendingHarvests)

	bus.SetOnline(true)
	next := readSnap()
	require.True(t, next.Online)
}

func TestOfferLatest_EvictsOldestWhenFull(t *testing.T) {
	ch := make(chan status.Snapshot, 2)
	for i := 1; i <= 5; i++ {
		offerLatest(ch, status.Snapshot{PendingHarvests: i})
	}

	// The two freshest snapshots survive; a slow client never renders a
	// state older than what a faster one would.
	require.Equal(t, 4, (<-ch).PendingHarvests)
	require.Equal(t, 5, (<-ch).PendingHarvests)
	require.Empty(t, ch)
}

func TestLocalOrigin(t *testing.T) {
	mk := func(origin string) *http.Request {
		r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	require.True(t, localOrigin(mk("")))
	require.True(t, localOrigin(mk("http://localhost:3000")))
	require.True(t, localOrigin(mk("http://127.0.0.1:8091")))
	require.False(t, localOrigin(mk("http://example.com")))
	require.False(t, localOrigin(mk("://bad")))
}
