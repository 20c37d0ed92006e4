package engine

import "sync"

// Latest is a single-slot, last-value-wins mailbox.
//
// A newer Put overwrites a value nobody has taken yet. The reader polls
// with TryTake, which never blocks, or selects on Wait.
//
// Thread-safety: all methods are safe for concurrent use.
type Latest[T any] struct {
	mu     sync.Mutex
	v      T
	full   bool
	signal chan struct{} // buffered, size 1
}

// NewLatest creates an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{signal: make(chan struct{}, 1)}
}

// Put stores v, replacing any unread value.
func (l *Latest[T]) Put(v T) {
	l.mu.Lock()
	l.v = v
	l.full = true
	l.mu.Unlock()

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// TryTake returns and clears the stored value, or false when empty.
func (l *Latest[T]) TryTake() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	if !l.full {
		return zero, false
	}
	v := l.v
	l.v = zero
	l.full = false
	return v, true
}

// Wait returns a channel that is signalled after a Put. A signal may be
// stale; always follow it with TryTake.
func (l *Latest[T]) Wait() <-chan struct{} {
	return l.signal
}
