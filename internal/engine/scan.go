package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/movetable"
)

// MoveScanner is the deep-scan operation run by the worker.
// Implemented by *movetable.Scanner.
type MoveScanner interface {
	Scan(ctx context.Context, entities [model.SlotCount]model.Field[uint32]) (*movetable.Table, error)
}

// ScanRequest asks for one deep scan with the entity ids current at the
// time of the request.
type ScanRequest struct {
	Entities [model.SlotCount]model.Field[uint32]
}

// ScanWorker runs deep scans on its own goroutine.
//
// Requests are coalesced: while one is pending, further requests are
// dropped. Results land in a Latest mailbox that the engine loop drains
// without blocking.
//
// Close stops accepting requests and waits for the worker to finish the
// scan in progress; a running scan is never interrupted.
//
// Thread-safety: Request, Results and Close are safe from any goroutine.
type ScanWorker struct {
	scanner MoveScanner
	logger  *slog.Logger
	results *Latest[*movetable.Table]

	mu       sync.Mutex
	closed   bool
	requests chan ScanRequest // buffered, size 1
	done     chan struct{}
}

// ScanWorkerOption configures a ScanWorker.
type ScanWorkerOption func(*ScanWorker)

// WithScanLogger sets the worker's logger.
func WithScanLogger(l *slog.Logger) ScanWorkerOption {
	return func(w *ScanWorker) {
		w.logger = l
	}
}

// NewScanWorker starts a worker goroutine. ctx supplies values (such as
// the tracing span) to each scan; its cancellation does not stop a scan
// in progress. Call Close to stop the worker.
func NewScanWorker(ctx context.Context, scanner MoveScanner, opts ...ScanWorkerOption) *ScanWorker {
	w := &ScanWorker{
		scanner:  scanner,
		logger:   slog.Default(),
		results:  NewLatest[*movetable.Table](),
		requests: make(chan ScanRequest, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop(context.WithoutCancel(ctx))
	return w
}

func (w *ScanWorker) loop(ctx context.Context) {
	defer close(w.done)
	for req := range w.requests {
		t, err := w.scanner.Scan(ctx, req.Entities)
		if err != nil {
			w.logger.Error("deep scan failed", "error", err)
			continue
		}
		w.results.Put(t)
	}
}

// Request enqueues a scan. It never blocks and reports whether the request
// was accepted; false means one is already pending or the worker is closed.
func (w *ScanWorker) Request(req ScanRequest) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.requests <- req:
		return true
	default:
		return false
	}
}

// Results returns the mailbox holding the newest completed scan.
func (w *ScanWorker) Results() *Latest[*movetable.Table] {
	return w.results
}

// Close stops the worker after the current scan and waits for it to exit.
// A pending request that has not started is still run. Close is idempotent.
func (w *ScanWorker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.requests)
	}
	w.mu.Unlock()
	<-w.done
}
