package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/messages"
)

// ErrExtensionNotConnected is returned when no browser extension is attached.
var ErrExtensionNotConnected = errors.New("browser extension not connected")

// Sender delivers a message to the connected extension.
type Sender func(ctx context.Context, msg interface{}) error

type extensionReply struct {
	result interface{}
	err    error
}

// Bridge correlates commands sent to the browser extension with the results
// it sends back. The server attaches the extension's connection and feeds
// results through Resolve.
type Bridge struct {
	timeout time.Duration

	mu      sync.Mutex
	send    Sender
	gen     uint64
	pending map[string]chan extensionReply
}

// NewBridge creates a bridge whose commands time out after timeout
func NewBridge(timeout time.Duration) *Bridge {
	return &Bridge{
		timeout: timeout,
		pending: make(map[string]chan extensionReply),
	}
}

// Attach sets the connection used to reach the extension. A later Attach
// replaces it. The returned release detaches only if send is still the
// current connection.
func (b *Bridge) Attach(send Sender) (release func()) {
	b.mu.Lock()
	b.send = send
	b.gen++
	gen := b.gen
	b.mu.Unlock()
	logger.Info("🧩 Browser extension attached")

	return func() {
		b.mu.Lock()
		current := b.gen == gen
		b.mu.Unlock()
		if current {
			b.Detach()
		}
	}
}

// Detach drops the connection and fails every pending command.
func (b *Bridge) Detach() {
	b.mu.Lock()
	b.send = nil
	pending := b.pending
	b.pending = make(map[string]chan extensionReply)
	b.mu.Unlock()

	for _, ch := range pending {
		ch <- extensionReply{err: ErrExtensionNotConnected}
	}
	logger.Info("🧩 Browser extension detached", "failed_commands", len(pending))
}

// Connected reports whether an extension is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.send != nil
}

// Command sends one command and waits for its result.
func (b *Bridge) Command(ctx context.Context, command string, args map[string]interface{}) (interface{}, error) {
	id := uuid.NewString()
	reply := make(chan extensionReply, 1)

	b.mu.Lock()
	send := b.send
	if send == nil {
		b.mu.Unlock()
		return nil, ErrExtensionNotConnected
	}
	b.pending[id] = reply
	b.mu.Unlock()

	defer b.forget(id)

	err := send(ctx, messages.ExtensionCommand{
		Type:      messages.TypeExtensionCommand,
		Command:   command,
		Args:      args,
		RequestID: id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send %s to extension: %w", command, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r.result, r.err
	case <-timer.C:
		return nil, fmt.Errorf("extension did not answer '%s' within %s", command, b.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status updates the extension popup. It is best effort.
func (b *Bridge) Status(ctx context.Context, label string, progress float64, active bool) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send == nil {
		return
	}
	err := send(ctx, messages.ExtensionStatus{
		Type:     messages.TypeExtensionStatus,
		Label:    label,
		Progress: progress,
		Active:   active,
	})
	if err != nil {
		logger.Debug("Extension status update failed", "error", err)
	}
}

// Resolve delivers a result. Unknown or expired request ids are ignored.
func (b *Bridge) Resolve(requestID string, result interface{}, errMsg string) bool {
	b.mu.Lock()
	reply, ok := b.pending[requestID]
	delete(b.pending, requestID)
	b.mu.Unlock()

	if !ok {
		logger.Warn("⚠️ Extension result for unknown request", "request_id", requestID)
		return false
	}

	r := extensionReply{result: result}
	if errMsg != "" {
		r.err = errors.New(errMsg)
	}
	reply <- r
	return true
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
