package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/metrics"
)

const (
	defaultOutboundQueueSize   = 10
	defaultConfirmationTimeout = 15 * time.Second
	defaultPausePollInterval   = 100 * time.Millisecond
	defaultVideoFrameInterval  = time.Second
	defaultShutdownTimeout     = 5 * time.Second
	readRetryDelay             = 100 * time.Millisecond
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the collaborators and tunables of a Session.
type Config struct {
	ID        string
	Connector Connector
	Tools     Tools
	Devices   Devices
	Callbacks Callbacks
	Metrics   *metrics.Collector

	VideoMode           VideoMode
	OutboundQueueSize   int
	ConfirmationTimeout time.Duration
	PausePollInterval   time.Duration
	VideoFrameInterval  time.Duration
	ShutdownTimeout     time.Duration
}

// StartOptions parameterise one run of a Session.
type StartOptions struct {
	Mode         VideoMode // empty selects Config.VideoMode
	StartMessage string    // sent as an end-of-turn text once connected
	Paused       bool
}

// Session multiplexes one live conversation across capture, transport,
// dispatch and playback goroutines.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger

	paused atomic.Bool

	mu         sync.Mutex
	state      State
	current    *run
	dialCancel context.CancelFunc
}

// run holds everything owned by one running period of a Session.
type run struct {
	ctx      context.Context
	cancel   context.CancelFunc
	bgCtx    context.Context
	channel  Channel
	mode     VideoMode
	outbound chan Frame
	inbound  *AudioQueue

	// devices opened by this run's pipelines; teardown closes them.
	handles []*deviceHandle
	speaker *deviceHandle
	capture sync.WaitGroup

	confirmations *confirmationTable
	inflight      atomic.Int64

	done chan struct{}
	err  error
}

// New validates cfg and returns an idle Session.
func New(cfg Config) (*Session, error) {
	if cfg.Connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.VideoMode == "" {
		cfg.VideoMode = VideoNone
	}
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = defaultOutboundQueueSize
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = defaultConfirmationTimeout
	}
	if cfg.PausePollInterval <= 0 {
		cfg.PausePollInterval = defaultPausePollInterval
	}
	if cfg.VideoFrameInterval <= 0 {
		cfg.VideoFrameInterval = defaultVideoFrameInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Session{
		id:  cfg.ID,
		cfg: cfg,
		log: logger.With("session", logger.ShortID(cfg.ID)),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Paused reports whether capture is paused.
func (s *Session) Paused() bool {
	return s.paused.Load()
}

// Done returns a channel closed when the current run has fully stopped.
// It returns a closed channel if the session is not running.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.current.done
}

// Err returns the error that ended the last run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Start connects the duplex channel and spawns every pipeline as one
// supervised group. Starting a running session is a no-op.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	r, started, err := s.start(ctx, opts)
	if err != nil || !started {
		return err
	}

	s.log.Info("✅ Session started", "mode", r.mode, "paused", opts.Paused)
	s.notify(StatusInfo, StateRunning, "A.D.A Started")

	if opts.StartMessage != "" {
		if err := r.channel.Send(r.ctx, TextFrame(opts.StartMessage, true)); err != nil {
			s.log.Warn("⚠️ Failed to send start message", "error", err)
		}
	}
	return nil
}

// start dials outside the lock so State, Stop and ResolveConfirmation stay
// responsive during a slow connect. Stop during the dial aborts it.
func (s *Session) start(ctx context.Context, opts StartOptions) (*run, bool, error) {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StateStopping || s.dialCancel != nil {
		s.mu.Unlock()
		s.log.Info("Session already running, ignoring start")
		return nil, false, nil
	}
	dialCtx, dialCancel := context.WithCancel(ctx)
	s.dialCancel = dialCancel
	s.mu.Unlock()

	channel, err := s.cfg.Connector.Connect(dialCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	aborted := dialCtx.Err()
	s.dialCancel = nil
	dialCancel()

	if err != nil {
		return nil, false, fmt.Errorf("failed to connect live channel: %w", err)
	}
	if aborted != nil {
		_ = channel.Close()
		return nil, false, fmt.Errorf("connect aborted: %w", aborted)
	}

	mode := opts.Mode
	if mode == "" {
		mode = s.cfg.VideoMode
	}
	s.paused.Store(opts.Paused)

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)

	r := &run{
		ctx:           gctx,
		cancel:        cancel,
		bgCtx:         context.WithoutCancel(gctx),
		channel:       channel,
		mode:          mode,
		outbound:      make(chan Frame, s.cfg.OutboundQueueSize),
		inbound:       NewAudioQueue(),
		confirmations: newConfirmationTable(),
		done:          make(chan struct{}),
	}
	if speaker := s.cfg.Devices.Speaker; speaker != nil {
		r.speaker = newDeviceHandle("speaker", speaker)
		r.handles = append(r.handles, r.speaker)
	}
	s.current = r
	s.state = StateRunning
	s.cfg.Metrics.SessionStarted()

	g.Go(func() error { return s.sendLoop(gctx, r) })
	g.Go(func() error { return s.receiveLoop(gctx, r) })
	g.Go(func() error { return s.playbackLoop(gctx, r) })

	if mic := s.cfg.Devices.Microphone; mic != nil {
		s.goCapture(g, r, newDeviceHandle("microphone", mic), mic, FrameAudio, 0)
	}
	if video := s.videoDevice(mode); video != nil {
		s.goCapture(g, r, newDeviceHandle(string(mode), video), video, FrameImage, s.cfg.VideoFrameInterval)
	}

	go s.supervise(r, g)
	return r, true, nil
}

func (s *Session) goCapture(g *errgroup.Group, r *run, h *deviceHandle, dev InputDevice, kind FrameKind, minInterval time.Duration) {
	r.handles = append(r.handles, h)
	r.capture.Add(1)
	g.Go(func() error {
		defer r.capture.Done()
		return s.captureLoop(r.ctx, r, h, dev, kind, minInterval)
	})
}

func (s *Session) videoDevice(mode VideoMode) InputDevice {
	switch mode {
	case VideoCamera:
		return s.cfg.Devices.Camera
	case VideoScreen:
		return s.cfg.Devices.Screen
	default:
		return nil
	}
}

// supervise waits for the group's context to end (explicit stop or a member
// failure), releases blocking resources so every member can return, then
// awaits the group. Background tasks are abandoned, not awaited.
func (s *Session) supervise(r *run, g *errgroup.Group) {
	<-r.ctx.Done()
	s.setState(StateStopping)

	// Closing the channel unblocks Receive, closing devices unblocks capture
	// reads and closing the queue unblocks playback.
	if err := r.channel.Close(); err != nil {
		s.log.Warn("⚠️ Error closing live channel", "error", err)
	}
	for _, h := range r.handles {
		if err := h.close(); err != nil {
			s.log.Warn("⚠️ Error closing device", "device", h.name, "error", err)
		}
	}
	r.inbound.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	var err error
	select {
	case err = <-errCh:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn("⚠️ Pipelines did not exit within shutdown timeout", "timeout", s.cfg.ShutdownTimeout)
		// Devices are already closed; capture members return once their
		// reads come back.
		r.capture.Wait()
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if n := r.confirmations.denyAll(); n > 0 {
		s.log.Info("Abandoned pending confirmations", "count", n)
	}
	if n := r.inflight.Load(); n > 0 {
		s.log.Info("Abandoning background tasks; their reports will be dropped", "count", n)
	}

	r.err = err
	s.setState(StateStopped)
	s.cfg.Metrics.SessionStopped()

	if err != nil {
		s.log.Error("❌ Session ended with error", "error", err)
		s.notify(StatusError, StateStopped, fmt.Sprintf("A.D.A Stopped: %v", err))
	} else {
		s.log.Info("🔌 Session stopped")
		s.notify(StatusInfo, StateStopped, "A.D.A Stopped")
	}
	close(r.done)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Stop cancels the running group and waits for teardown. A Start still
// dialing is aborted. Stopping an idle or stopped session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.dialCancel != nil {
		s.dialCancel()
	}
	r := s.current
	running := s.state == StateRunning || s.state == StateStopping
	s.mu.Unlock()

	if r == nil || !running {
		return nil
	}

	r.cancel()
	<-r.done
	return nil
}

// SetPaused pauses or resumes capture without releasing devices.
func (s *Session) SetPaused(paused bool) {
	s.paused.Store(paused)
	s.log.Info("Capture pause changed", "paused", paused)
}

// ResolveConfirmation delivers the user's decision for a pending tool call.
// Unknown or already resolved ids are logged and ignored; the return value
// reports whether the decision took effect.
func (s *Session) ResolveConfirmation(id string, approved bool) bool {
	r := s.activeRun()
	if r == nil {
		s.log.Warn("⚠️ No active session, cannot resolve confirmation", "request_id", id)
		return false
	}
	if !r.confirmations.resolve(id, approved) {
		s.log.Warn("⚠️ Confirmation request not pending", "request_id", id, "approved", approved)
		return false
	}
	s.log.Info("Confirmation resolved", "request_id", id, "approved", approved)
	return true
}

// SendFrame enqueues a JPEG image, e.g. a frame captured by the UI client.
func (s *Session) SendFrame(ctx context.Context, image []byte) error {
	return s.enqueue(ctx, ImageFrame(image, MIMEImageJPG))
}

// SendFrameBase64 enqueues a base64 encoded image, accepting data URLs.
func (s *Session) SendFrameBase64(ctx context.Context, encoded string) error {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i > 0 {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid base64 frame: %w", err)
	}
	return s.SendFrame(ctx, data)
}

// SendText enqueues a complete user text turn.
func (s *Session) SendText(ctx context.Context, text string) error {
	return s.enqueue(ctx, TextFrame(text, true))
}

func (s *Session) activeRun() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return nil
	}
	return s.current
}

func (s *Session) enqueue(ctx context.Context, f Frame) error {
	r := s.activeRun()
	if r == nil {
		return ErrNotRunning
	}
	select {
	case r.outbound <- f:
		s.cfg.Metrics.QueueDepths(len(r.outbound), r.inbound.Len())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrNotRunning
	}
}

func (s *Session) pendingConfirmations() int {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.confirmations.len()
}
