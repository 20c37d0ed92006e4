package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/model"
)

// Poker performs guarded debug writes into the external process.
//
// Every write is checked on its own: the target must lie in a configured
// window and every byte written must be on the debug-flag allowlist. A rejected write returns a
// *model.Error of kind KindWriteRejected and touches nothing.
//
// Momentary writes capture the original bytes first and restore them
// after the table's revert delay. Close reverts anything still pending.
//
// Thread-safety: Poker is safe for concurrent use.
type Poker struct {
	mem    Access
	table  *config.Table
	logger *slog.Logger

	mu      sync.Mutex
	pending map[uint32]*pendingRevert
	closed  bool
	gen     uint64

	afterFunc func(time.Duration, func()) stopper
}

type pendingRevert struct {
	original []byte
	timer    stopper
	gen      uint64 // only the callback scheduled with this gen may revert
}

// stopper is the part of *time.Timer Poker relies on.
type stopper interface {
	Stop() bool
}

// PokerOption configures a Poker.
type PokerOption func(*Poker)

// WithPokerLogger sets the logger.
func WithPokerLogger(l *slog.Logger) PokerOption {
	return func(p *Poker) {
		p.logger = l
	}
}

// withAfterFunc replaces time.AfterFunc in tests.
func withAfterFunc(fn func(time.Duration, func()) stopper) PokerOption {
	return func(p *Poker) {
		p.afterFunc = fn
	}
}

// NewPoker creates a Poker writing through mem.
func NewPoker(mem Access, table *config.Table, opts ...PokerOption) *Poker {
	p := &Poker{
		mem:     mem,
		table:   table,
		logger:  slog.Default(),
		pending: make(map[uint32]*pendingRevert),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poker) check(addr uint32, n int) error {
	if n <= 0 {
		return &model.Error{Kind: model.KindWriteRejected, Slot: model.SlotNone, Addr: addr, Message: "empty write"}
	}
	end := addr + uint32(n) - 1
	if !p.table.InWindow(addr) || !p.table.InWindow(end) {
		return &model.Error{Kind: model.KindWriteRejected, Slot: model.SlotNone, Addr: addr, Message: "target outside valid windows"}
	}
	for i := 0; i < n; i++ {
		if a := addr + uint32(i); !p.table.Debug.Allowed(a) {
			return &model.Error{Kind: model.KindWriteRejected, Slot: model.SlotNone, Addr: a, Message: "target not on debug allowlist"}
		}
	}
	return nil
}

// Write performs a persistent guarded write.
func (p *Poker) Write(addr uint32, b []byte) error {
	if err := p.check(addr, len(b)); err != nil {
		return err
	}
	if err := p.mem.WriteRange(addr, b); err != nil {
		return &model.Error{Kind: model.KindWriteRejected, Slot: model.SlotNone, Addr: addr, Message: err.Error()}
	}
	p.logger.Info("debug write", "addr", fmt.Sprintf("0x%08X", addr), "bytes", fmt.Sprintf("% X", b))
	return nil
}

// WriteFlag writes a single byte to a named debug flag.
func (p *Poker) WriteFlag(name string, v uint8) error {
	f, ok := p.table.Debug.Flag(name)
	if !ok {
		return &model.Error{Kind: model.KindWriteRejected, Slot: model.SlotNone, Field: name, Message: "unknown debug flag"}
	}
	return p.Write(f.Addr, []byte{v})
}

// Momentary writes b and schedules the original bytes to be restored
// after the table's revert delay. A second momentary write to the same
// address before the revert keeps the first original.
func (p *Poker) Momentary(addr uint32, b []byte) error {
	if err := p.check(addr, len(b)); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &model.Error{Kind: model.KindWriteRejected, Slot: model.SlotNone, Addr: addr, Message: "poker closed"}
	}

	pr, exists := p.pending[addr]
	if !exists {
		orig, err := p.mem.ReadRange(addr, len(b))
		if err != nil {
			return &model.Error{Kind: model.KindWriteRejected, Slot: model.SlotNone, Addr: addr, Message: fmt.Sprintf("capture original: %v", err)}
		}
		pr = &pendingRevert{original: orig}
	}
	if err := p.mem.WriteRange(addr, b); err != nil {
		return &model.Error{Kind: model.KindWriteRejected, Slot: model.SlotNone, Addr: addr, Message: err.Error()}
	}

	if pr.timer != nil {
		pr.timer.Stop()
	}
	p.gen++
	gen := p.gen
	pr.gen = gen
	pr.timer = p.afterFunc(p.table.Debug.RevertAfter, func() { p.revert(addr, gen) })
	p.pending[addr] = pr

	p.logger.Info("momentary debug write", "addr", fmt.Sprintf("0x%08X", addr), "revert_after", p.table.Debug.RevertAfter)
	return nil
}

// revert restores the original bytes of addr if gen is still the latest
// momentary write there. A timer that fired before a later Momentary
// stopped it finds a newer gen and does nothing.
func (p *Poker) revert(addr uint32, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.pending[addr]; !ok || pr.gen != gen {
		return
	}
	p.revertLocked(addr)
}

func (p *Poker) revertLocked(addr uint32) {
	pr, ok := p.pending[addr]
	if !ok {
		return
	}
	delete(p.pending, addr)
	if err := p.mem.WriteRange(addr, pr.original); err != nil {
		p.logger.Error("debug revert failed", "addr", fmt.Sprintf("0x%08X", addr), "error", err)
		return
	}
	p.logger.Debug("debug write reverted", "addr", fmt.Sprintf("0x%08X", addr))
}

// Pending returns the number of writes awaiting revert.
func (p *Poker) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close reverts every pending momentary write and rejects further ones.
func (p *Poker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for addr, pr := range p.pending {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		p.revertLocked(addr)
	}
	return nil
}
