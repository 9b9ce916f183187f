package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status/notify"
)

func TestBus_SnapshotUpdatesAndFanOut(t *testing.T) {
	b := NewBus(Snapshot{Online: true})

	var seen []Snapshot
	unsub := b.Subscribe(func(s Snapshot) { seen = append(seen, s) })

	b.SetOnline(false)
	b.SetPending(3, 2)
	b.OnStatus(notify.KindQueued, "enregistré localement")

	snap := b.Snapshot()
	require.False(t, snap.Online)
	require.Equal(t, 3, snap.PendingHarvests)
	require.Equal(t, 2, snap.PendingScans)
	require.Equal(t, 5, snap.PendingTotal())
	require.Equal(t, notify.KindQueued, snap.LastMessageKind)
	require.Len(t, seen, 3)

	unsub()
	b.SetOnline(true)
	require.Len(t, seen, 3)
}

func TestBus_SweepProgressRecordsLastSweep(t *testing.T) {
	b := NewBus(Snapshot{})
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	b.SetSweepInProgress(true, time.Time{})
	require.True(t, b.Snapshot().SweepInProgress)
	require.Nil(t, b.Snapshot().LastSweepAt)

	b.SetSweepInProgress(false, at)
	snap := b.Snapshot()
	require.False(t, snap.SweepInProgress)
	require.NotNil(t, snap.LastSweepAt)
	require.Equal(t, at, *snap.LastSweepAt)
}
