package session

import (
	"context"
	"sync"
	"time"
)

// pendingConfirmation is a single-assignment outcome slot. The first call to
// resolve wins; abandon claims the slot without a value.
type pendingConfirmation struct {
	id      string
	tool    string
	args    map[string]any
	outcome chan bool
	once    sync.Once
}

func (p *pendingConfirmation) resolve(approved bool) bool {
	won := false
	p.once.Do(func() {
		p.outcome <- approved
		won = true
	})
	return won
}

func (p *pendingConfirmation) abandon() {
	p.once.Do(func() {})
}

// wait blocks until the entry is resolved, the timeout expires, or ctx ends.
// Expiry and cancellation both resolve to denied.
func (p *pendingConfirmation) wait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case approved := <-p.outcome:
		return approved, nil
	case <-timer.C:
		err = ErrConfirmationTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	p.abandon()
	// A resolve that won the race just before abandon still counts.
	select {
	case approved := <-p.outcome:
		return approved, nil
	default:
		return false, err
	}
}

// confirmationTable maps request ids to pending outcomes. Entries are inserted
// and removed by the dispatching goroutine; resolve may come from any goroutine.
type confirmationTable struct {
	mu      sync.Mutex
	pending map[string]*pendingConfirmation
}

func newConfirmationTable() *confirmationTable {
	return &confirmationTable{pending: make(map[string]*pendingConfirmation)}
}

func (t *confirmationTable) register(id, tool string, args map[string]any) *pendingConfirmation {
	p := &pendingConfirmation{
		id:      id,
		tool:    tool,
		args:    args,
		outcome: make(chan bool, 1),
	}
	t.mu.Lock()
	t.pending[id] = p
	t.mu.Unlock()
	return p
}

// resolve reports whether the outcome was accepted. Unknown and already
// resolved ids return false.
func (t *confirmationTable) resolve(id string, approved bool) bool {
	t.mu.Lock()
	p, ok := t.pending[id]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return p.resolve(approved)
}

func (t *confirmationTable) remove(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *confirmationTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// denyAll resolves every open entry as denied. Used on teardown.
func (t *confirmationTable) denyAll() int {
	t.mu.Lock()
	entries := make([]*pendingConfirmation, 0, len(t.pending))
	for _, p := range t.pending {
		entries = append(entries, p)
	}
	t.mu.Unlock()

	n := 0
	for _, p := range entries {
		if p.resolve(false) {
			n++
		}
	}
	return n
}
