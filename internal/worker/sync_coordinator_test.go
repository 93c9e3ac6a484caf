package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shelfline/shelfline/internal/connectivity"
	"github.com/shelfline/shelfline/internal/reconciler"
)

// mockFlusher implements Flusher for coordinator tests.
type mockFlusher struct {
	mu       sync.Mutex
	calls    int
	flushErr error
	stats    reconciler.SyncStats
}

func (m *mockFlusher) FlushPending(ctx context.Context) (reconciler.SyncStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.flushErr != nil {
		return reconciler.SyncStats{Failed: 1}, m.flushErr
	}
	return m.stats, nil
}

func (m *mockFlusher) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// waitForCalls waits until at least n flushes have occurred.
func (m *mockFlusher) waitForCalls(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if m.getCalls() >= n {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSyncCoordinatorFlushesOnInterval(t *testing.T) {
	flusher := &mockFlusher{stats: reconciler.SyncStats{Created: 1}}
	net := connectivity.NewManual(true)
	coordinator := NewSyncCoordinator(flusher, net, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		coordinator.Run(ctx)
		close(done)
	}()

	if !flusher.waitForCalls(2, 2*time.Second) {
		t.Fatalf("expected at least 2 flushes, got %d", flusher.getCalls())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop after context cancellation")
	}
}

func TestSyncCoordinatorSkipsWhileOffline(t *testing.T) {
	flusher := &mockFlusher{}
	net := connectivity.NewManual(false)
	coordinator := NewSyncCoordinator(flusher, net, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coordinator.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if calls := flusher.getCalls(); calls != 0 {
		t.Errorf("expected no flushes while offline, got %d", calls)
	}
}

func TestSyncCoordinatorFlushesOnReconnect(t *testing.T) {
	flusher := &mockFlusher{stats: reconciler.SyncStats{Updated: 1}}
	net := connectivity.NewManual(false)
	// Long interval so any flush must come from the reconnect event.
	coordinator := NewSyncCoordinator(flusher, net, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coordinator.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	net.Set(true)

	if !flusher.waitForCalls(1, 2*time.Second) {
		t.Fatal("expected a flush after reconnect")
	}
}

func TestSyncCoordinatorContinuesAfterFlushError(t *testing.T) {
	flusher := &mockFlusher{flushErr: errors.New("service unavailable")}
	net := connectivity.NewManual(true)
	coordinator := NewSyncCoordinator(flusher, net, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coordinator.Run(ctx)

	if !flusher.waitForCalls(2, 2*time.Second) {
		t.Fatalf("expected coordinator to keep flushing after errors, got %d calls", flusher.getCalls())
	}
}

func TestSyncCoordinatorStopsOnCancellation(t *testing.T) {
	flusher := &mockFlusher{}
	net := connectivity.NewManual(true)
	coordinator := NewSyncCoordinator(flusher, net, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coordinator.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop after context cancellation")
	}
}
