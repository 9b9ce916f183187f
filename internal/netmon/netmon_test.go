package netmon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitor_InitializesFromSource(t *testing.T) {
	require.True(t, New(NewChanSource(true), 0).Online())
	require.False(t, New(NewChanSource(false), 0).Online())
}

func TestMonitor_EdgeTriggeredOnce(t *testing.T) {
	src := NewChanSource(false)
	m := New(src, 0)

	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { _ = m.Run(ctx); close(done) }()

	src.Set(true)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, m.Online())

	// Staying online does not re-fire.
	src.Set(true)
	src.Set(true)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())

	// A full offline -> online cycle fires again.
	src.Set(false)
	src.Set(true)
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestMonitor_OnChangeSeesBothEdges(t *testing.T) {
	src := NewChanSource(true)
	m := New(src, 0)

	var mu []bool
	ch := make(chan bool, 4)
	m.OnChange(func(online bool) { ch <- online })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	src.Set(false)
	src.Set(true)

	for len(mu) < 2 {
		select {
		case v := <-ch:
			mu = append(mu, v)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for transitions")
		}
	}
	require.Equal(t, []bool{false, true}, mu)
}

func TestMonitor_DebounceSwallowsFlicker(t *testing.T) {
	src := NewChanSource(false)
	m := New(src, 50*time.Millisecond)

	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	// Up then immediately down again: no transition.
	src.Set(true)
	src.Set(false)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
	require.False(t, m.Online())

	// A stable up fires after the window.
	src.Set(true)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, m.Online())
}
