package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/memory"
	"github.com/room4-2/ada/messages"
	"github.com/room4-2/ada/session"
)

const (
	writeTimeout  = 10 * time.Second
	writeChanSize = 256
)

// client is one UI connection. It owns at most one session, created on
// start_audio and stopped on stop_audio or disconnect.
type client struct {
	id   string
	conn *websocket.Conn
	srv  *Server
	log  *slog.Logger

	writeChan chan *messages.ServerMessage
	closeChan chan struct{}

	mu            sync.RWMutex
	closed        bool
	authenticated bool
}

func newClient(id string, conn *websocket.Conn, srv *Server) *client {
	return &client{
		id:            id,
		conn:          conn,
		srv:           srv,
		log:           logger.With("client", logger.ShortID(id)),
		writeChan:     make(chan *messages.ServerMessage, writeChanSize),
		closeChan:     make(chan struct{}),
		authenticated: srv.opts.Authorizer == nil,
	}
}

// run serves the connection until the client goes away.
func (c *client) run() {
	go c.writePump()

	c.queueMessage(messages.NewStatusMessage(c.id, "Connected to A.D.A"))
	c.queueMessage(messages.NewAuthStatusMessage(c.id, c.isAuthenticated()))

	c.handleClientMessages()
}

// writePump handles all outgoing messages in a single goroutine
func (c *client) writePump() {
	defer func() {
		// Send close message before exiting
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-c.closeChan:
			return
		case msg := <-c.writeChan:
			data, err := messages.Encode(msg)
			if err != nil {
				c.log.Error("Failed to encode message", "type", msg.Type, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// queueMessage adds a message to the write queue (non-blocking)
func (c *client) queueMessage(msg *messages.ServerMessage) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}
	select {
	case c.writeChan <- msg:
	default:
		c.log.Warn("⚠️ Write queue full, dropping message", "type", msg.Type)
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.closeChan)
	c.conn.Close()
}

func (c *client) isAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *client) sendError(code, msg string) {
	c.queueMessage(messages.NewErrorMessage(c.id, code, msg))
}

func (c *client) handleClientMessages() {
	defer c.close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("UI connection closed unexpectedly", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.sendError(messages.ErrCodeInvalidMessage, "Binary messages are not supported")
			continue
		}

		msg, err := messages.DecodeClient(data)
		if err != nil {
			c.sendError(messages.ErrCodeInvalidMessage, "Invalid message format")
			continue
		}

		ctx := context.Background()
		c.srv.sessionManager.Touch(ctx, c.id)
		c.processClientMessage(ctx, msg)
	}
}

func (c *client) processClientMessage(ctx context.Context, msg *messages.ClientMessage) {
	switch msg.Type {
	case messages.TypePing:
		c.queueMessage(&messages.ServerMessage{Type: messages.TypePong, SessionID: c.id})

	case messages.TypeAuthenticate:
		var p messages.AuthenticatePayload
		if !c.decode(msg, &p) {
			return
		}
		c.authenticate(ctx, p.Token)

	case messages.TypeStartAudio:
		p := messages.StartAudioPayload{}
		if !c.decode(msg, &p) {
			return
		}
		c.startAudio(ctx, p)

	case messages.TypeStopAudio:
		if err := c.srv.sessionManager.Remove(ctx, c.id); err != nil {
			c.log.Warn("Session stopped with error", "error", err)
		}

	case messages.TypePauseAudio, messages.TypeResumeAudio:
		s, ok := c.srv.sessionManager.Get(c.id)
		if !ok {
			c.sendError(messages.ErrCodeNotRunning, "A.D.A is not running")
			return
		}
		paused := msg.Type == messages.TypePauseAudio
		s.SetPaused(paused)
		if paused {
			c.queueMessage(messages.NewStatusMessage(c.id, "Audio Paused"))
		} else {
			c.queueMessage(messages.NewStatusMessage(c.id, "Audio Resumed"))
		}

	case messages.TypeConfirmTool:
		var p messages.ConfirmToolPayload
		if !c.decode(msg, &p) {
			return
		}
		s, ok := c.srv.sessionManager.Get(c.id)
		if !ok {
			c.log.Warn("⚠️ Confirmation received without a session", "request_id", p.ID)
			return
		}
		s.ResolveConfirmation(p.ID, p.Confirmed)

	case messages.TypeUserInput:
		var p messages.UserInputPayload
		if !c.decode(msg, &p) || p.Text == "" {
			return
		}
		c.sendText(ctx, p.Text)

	case messages.TypeVideoFrame:
		var p messages.VideoFramePayload
		if !c.decode(msg, &p) {
			return
		}
		s, ok := c.srv.sessionManager.Get(c.id)
		if !ok {
			return
		}
		if err := s.SendFrameBase64(ctx, p.Image); err != nil && !errors.Is(err, session.ErrNotRunning) {
			c.sendError(messages.ErrCodeInvalidMessage, err.Error())
		}

	case messages.TypeSaveMemory:
		var p messages.SaveMemoryPayload
		if !c.decode(msg, &p) {
			return
		}
		c.saveMemory(ctx, p)

	case messages.TypeUploadMemory:
		var p messages.UploadMemoryPayload
		if !c.decode(msg, &p) || p.Memory == "" {
			return
		}
		if c.sendText(ctx, memory.UploadMessage(p.Memory)) {
			c.queueMessage(messages.NewStatusMessage(c.id, "Memory uploaded"))
		}

	default:
		c.sendError(messages.ErrCodeInvalidMessage, "Unknown message type: "+msg.Type)
	}
}

func (c *client) decode(msg *messages.ClientMessage, v interface{}) bool {
	if err := messages.DecodePayload(msg, v); err != nil {
		c.sendError(messages.ErrCodeInvalidMessage, err.Error())
		return false
	}
	return true
}

func (c *client) authenticate(ctx context.Context, token string) {
	auth := c.srv.opts.Authorizer
	ok := auth == nil
	if !ok {
		var err error
		ok, err = auth.Authorize(ctx, token)
		if err != nil {
			c.log.Error("❌ Authorization failed", "error", err)
			ok = false
		}
	}

	c.mu.Lock()
	c.authenticated = ok
	c.mu.Unlock()

	c.queueMessage(messages.NewAuthStatusMessage(c.id, ok))
	if !ok {
		c.sendError(messages.ErrCodeAuthRequired, "Authentication Required")
	}
}

func (c *client) startAudio(ctx context.Context, p messages.StartAudioPayload) {
	if !c.isAuthenticated() {
		c.sendError(messages.ErrCodeAuthRequired, "Authentication Required")
		return
	}

	s, ok := c.srv.sessionManager.Get(c.id)
	if ok && s.State() == session.StateRunning {
		c.queueMessage(messages.NewStatusMessage(c.id, "A.D.A is already running"))
		return
	}
	if !ok {
		var err error
		s, err = c.srv.sessionManager.Create(ctx, c.id, c.sessionConfig(p))
		if err != nil {
			c.sendError(messages.ErrCodeSessionFailed, err.Error())
			return
		}
	}

	opts := session.StartOptions{Paused: p.Muted}
	if p.VideoMode != "" {
		opts.Mode = session.ParseVideoMode(p.VideoMode)
	}
	if c.srv.opts.Authorizer != nil {
		opts.StartMessage = DefaultStartMessage
	}

	if err := s.Start(ctx, opts); err != nil {
		c.log.Error("❌ Failed to start session", "error", err)
		c.sendError(messages.ErrCodeGeminiError, err.Error())
	}
}

func (c *client) sendText(ctx context.Context, text string) bool {
	s, ok := c.srv.sessionManager.Get(c.id)
	if !ok {
		c.sendError(messages.ErrCodeNotRunning, "A.D.A is not running")
		return false
	}
	if err := s.SendText(ctx, text); err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			c.sendError(messages.ErrCodeNotRunning, "A.D.A is not running")
		} else {
			c.sendError(messages.ErrCodeGeminiError, err.Error())
		}
		return false
	}
	return true
}

func (c *client) saveMemory(ctx context.Context, p messages.SaveMemoryPayload) {
	store := c.srv.opts.Memory
	if store == nil {
		c.sendError(messages.ErrCodeMemoryFailed, "Memory storage is not configured")
		return
	}

	entries := make([]memory.Entry, 0, len(p.Messages))
	for _, m := range p.Messages {
		entries = append(entries, memory.Entry{Sender: m.Sender, Text: m.Text})
	}
	path, err := store.Save(ctx, entries, p.Filename)
	if err != nil {
		c.sendError(messages.ErrCodeMemoryFailed, err.Error())
		return
	}
	c.queueMessage(messages.NewStatusMessage(c.id, fmt.Sprintf("Memory saved to %s", path)))
}

func (c *client) sessionConfig(p messages.StartAudioPayload) session.Config {
	cfg := c.srv.config
	sc := session.Config{
		Connector:           c.srv.opts.Connector,
		Tools:               c.srv.opts.Tools,
		Devices:             c.srv.opts.Devices(p),
		Metrics:             c.srv.opts.Metrics,
		VideoMode:           session.ParseVideoMode(cfg.VideoMode),
		OutboundQueueSize:   cfg.OutboundQueueSize,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
		Callbacks: session.Callbacks{
			OnAudioOut: func(pcm []byte) {
				c.queueMessage(messages.NewAudioMessage(c.id, base64.StdEncoding.EncodeToString(pcm)))
			},
			OnTranscription: func(t session.Transcription) {
				c.queueMessage(messages.NewTranscriptionMessage(c.id, t.Sender, t.Text))
			},
			OnBackgroundResult: c.onBackgroundResult,
			OnStatus:           c.onStatus,
		},
	}
	if cfg.RequireConfirmation {
		sc.Callbacks.OnToolConfirmationRequest = func(req session.ConfirmationRequest) {
			c.queueMessage(messages.NewToolConfirmationMessage(c.id, req.ID, req.Tool, req.Args))
		}
	}
	return sc
}

func (c *client) onBackgroundResult(r session.BackgroundResult) {
	if p := r.Progress; p != nil {
		if format, ok := p.Data["format"].(string); ok {
			data, _ := p.Data["data"].(string)
			c.queueMessage(messages.NewCADMessage(c.id, format, data))
		}
		if p.Image != "" || p.Log != "" {
			c.queueMessage(messages.NewBrowserFrameMessage(c.id, p.Image, p.Log))
		}
		return
	}
	if !r.Done {
		return
	}
	if r.Err != nil {
		c.sendError(messages.ErrCodeGeminiError, fmt.Sprintf("%s failed: %v", r.Tool, r.Err))
		return
	}
	c.queueMessage(messages.NewStatusMessage(c.id, fmt.Sprintf("%s finished", r.Tool)))
}

func (c *client) onStatus(st session.Status) {
	if st.Level == session.StatusError {
		c.sendError(messages.ErrCodeGeminiError, st.Message)
		return
	}
	c.queueMessage(&messages.ServerMessage{
		Type:      messages.TypeStatus,
		SessionID: c.id,
		Payload: messages.StatusPayload{
			Msg:   st.Message,
			Level: string(st.Level),
			State: st.State.String(),
		},
	})
}
