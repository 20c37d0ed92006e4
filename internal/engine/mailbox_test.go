package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/movetable"
)

func TestLatest_Empty(t *testing.T) {
	l := NewLatest[int]()
	_, ok := l.TryTake()
	assert.False(t, ok)
}

func TestLatest_LastValueWins(t *testing.T) {
	l := NewLatest[int]()
	l.Put(1)
	l.Put(2)
	l.Put(3)

	v, ok := l.TryTake()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = l.TryTake()
	assert.False(t, ok, "take clears the slot")
}

func TestLatest_WaitIsSignalled(t *testing.T) {
	l := NewLatest[string]()
	l.Put("a")
	l.Put("b") // coalesced into the same signal

	select {
	case <-l.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-l.Wait():
		t.Fatal("signals should coalesce")
	default:
	}

	v, ok := l.TryTake()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

// gatedScanner blocks each scan until the gate is released.
type gatedScanner struct {
	started chan struct{}
	gate    chan struct{}
	n       int
	fail    bool
}

func (s *gatedScanner) Scan(ctx context.Context, _ [model.SlotCount]model.Field[uint32]) (*movetable.Table, error) {
	s.started <- struct{}{}
	<-s.gate
	s.n++
	if s.fail {
		return nil, errors.New("read scan region: unmapped")
	}
	return &movetable.Table{Generation: s.n}, nil
}

func TestScanWorker_CoalescesRequests(t *testing.T) {
	s := &gatedScanner{started: make(chan struct{}, 4), gate: make(chan struct{})}
	w := NewScanWorker(context.Background(), s)

	require.True(t, w.Request(ScanRequest{}))
	<-s.started // first scan is running

	assert.True(t, w.Request(ScanRequest{}), "one request may wait behind the running scan")
	assert.False(t, w.Request(ScanRequest{}), "further requests are dropped")

	close(s.gate)
	w.Close()

	assert.Equal(t, 2, s.n)
	got, ok := w.Results().TryTake()
	require.True(t, ok)
	assert.Equal(t, 2, got.Generation, "only the newest result is kept")
}

func TestScanWorker_ErrorLeavesMailboxEmpty(t *testing.T) {
	s := &gatedScanner{started: make(chan struct{}, 1), gate: make(chan struct{}), fail: true}
	close(s.gate)
	w := NewScanWorker(context.Background(), s)

	require.True(t, w.Request(ScanRequest{}))
	w.Close()

	_, ok := w.Results().TryTake()
	assert.False(t, ok)
}

func TestScanWorker_CloseIsIdempotent(t *testing.T) {
	s := &gatedScanner{started: make(chan struct{}, 1), gate: make(chan struct{})}
	w := NewScanWorker(context.Background(), s)

	done := make(chan struct{})
	go func() {
		w.Close()
		w.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked")
	}
	assert.False(t, w.Request(ScanRequest{}), "closed worker rejects requests")
}
