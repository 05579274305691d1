package session

import (
	"io"
	"sync"
)

// deviceHandle releases one device exactly once, whether the owning pipeline
// or teardown gets there first. Teardown closing the device also unblocks a
// pending Read or Write.
type deviceHandle struct {
	name   string
	device io.Closer

	mu     sync.Mutex
	opened bool
	closed bool
}

func newDeviceHandle(name string, device io.Closer) *deviceHandle {
	return &deviceHandle{name: name, device: device}
}

// markOpen records a successful Open. If teardown already ran, the device is
// closed on the spot and markOpen reports false.
func (h *deviceHandle) markOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		_ = h.device.Close()
		return false
	}
	h.opened = true
	return true
}

func (h *deviceHandle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if !h.opened {
		return nil
	}
	return h.device.Close()
}
