package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// mockChannel records outbound traffic and replays scripted inbound events.
type mockChannel struct {
	mu            sync.Mutex
	sent          []Frame
	toolResponses [][]ToolResponse

	events    chan InboundEvent
	recvErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newMockChannel() *mockChannel {
	return &mockChannel{
		events:  make(chan InboundEvent, 16),
		recvErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *mockChannel) Send(ctx context.Context, f Frame) error {
	select {
	case <-c.closed:
		return errors.New("channel closed")
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, f)
	c.mu.Unlock()
	return nil
}

func (c *mockChannel) Receive(ctx context.Context) (InboundEvent, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case err := <-c.recvErr:
		return nil, err
	case <-c.closed:
		return nil, errors.New("channel closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *mockChannel) SendToolResponse(ctx context.Context, rs []ToolResponse) error {
	c.mu.Lock()
	c.toolResponses = append(c.toolResponses, rs)
	c.mu.Unlock()
	return nil
}

func (c *mockChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *mockChannel) sentFrames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.sent...)
}

func (c *mockChannel) sentTexts() []string {
	var texts []string
	for _, f := range c.sentFrames() {
		if f.Kind == FrameText {
			texts = append(texts, f.Text)
		}
	}
	return texts
}

func (c *mockChannel) responses() [][]ToolResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]ToolResponse(nil), c.toolResponses...)
}

type mockConnector struct {
	channel *mockChannel
	err     error
	calls   atomic.Int32
}

func (m *mockConnector) Connect(ctx context.Context) (Channel, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.channel, nil
}

// blockingDevice never yields a sample; Read returns only once Close is called.
type blockingDevice struct {
	once    sync.Once
	release chan struct{}
	reading chan struct{}
	closes  atomic.Int32
}

func newBlockingDevice() *blockingDevice {
	return &blockingDevice{release: make(chan struct{}), reading: make(chan struct{}, 1)}
}

func (d *blockingDevice) Open(ctx context.Context) error { return nil }

func (d *blockingDevice) Read(ctx context.Context) ([]byte, error) {
	select {
	case d.reading <- struct{}{}:
	default:
	}
	<-d.release
	return nil, errors.New("device closed")
}

func (d *blockingDevice) MIMEType() string { return MIMEAudioPCM }

func (d *blockingDevice) Close() error {
	d.closes.Add(1)
	d.once.Do(func() { close(d.release) })
	return nil
}

// dialingConnector blocks in Connect until its context ends.
type dialingConnector struct {
	dialing chan struct{}
}

func (c *dialingConnector) Connect(ctx context.Context) (Channel, error) {
	close(c.dialing)
	<-ctx.Done()
	return nil, ctx.Err()
}

// mockDevice yields numbered one-byte samples and counts open/close calls.
type mockDevice struct {
	openErr error
	mime    string

	opens  atomic.Int32
	closes atomic.Int32
	reads  atomic.Int32
}

func (d *mockDevice) Open(ctx context.Context) error {
	if d.openErr != nil {
		return d.openErr
	}
	d.opens.Add(1)
	return nil
}

func (d *mockDevice) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-time.After(2 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	n := d.reads.Add(1)
	return []byte{byte(n)}, nil
}

func (d *mockDevice) MIMEType() string {
	if d.mime == "" {
		return MIMEAudioPCM
	}
	return d.mime
}

func (d *mockDevice) Close() error {
	d.closes.Add(1)
	return nil
}

type mockSpeaker struct {
	mu      sync.Mutex
	written [][]byte
	opens   atomic.Int32
	closes  atomic.Int32
}

func (s *mockSpeaker) Open(ctx context.Context) error {
	s.opens.Add(1)
	return nil
}

func (s *mockSpeaker) Write(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	s.written = append(s.written, pcm)
	s.mu.Unlock()
	return nil
}

func (s *mockSpeaker) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *mockSpeaker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

type mockTool struct {
	confirm    bool
	validate   func(args map[string]any) error
	run        func(ctx context.Context, args map[string]any, progress func(Progress)) (string, error)
	ack        string
	completion string
}

func (t *mockTool) Validate(args map[string]any) error {
	if t.validate != nil {
		return t.validate(args)
	}
	return nil
}

func (t *mockTool) RequiresConfirmation() bool { return t.confirm }

func (t *mockTool) Acknowledgement() string {
	if t.ack == "" {
		return "started"
	}
	return t.ack
}

func (t *mockTool) Run(ctx context.Context, args map[string]any, progress func(Progress)) (string, error) {
	if t.run != nil {
		return t.run(ctx, args, progress)
	}
	return "ok", nil
}

func (t *mockTool) CompletionMessage(result string, err error) string {
	if err != nil {
		return "failed"
	}
	if t.completion != "" {
		return t.completion + ": " + result
	}
	return ""
}

type mockTools map[string]Tool

func (m mockTools) Lookup(name string) (Tool, bool) {
	t, ok := m[name]
	return t, ok
}

// statusRecorder collects status notifications.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(st Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, st)
	r.mu.Unlock()
}

func (r *statusRecorder) has(level StatusLevel, state State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.statuses {
		if st.Level == level && st.State == state {
			return true
		}
	}
	return false
}
