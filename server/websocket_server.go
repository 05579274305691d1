package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/room4-2/ada/agents"
	"github.com/room4-2/ada/config"
	"github.com/room4-2/ada/devices"
	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/memory"
	"github.com/room4-2/ada/messages"
	"github.com/room4-2/ada/metrics"
	"github.com/room4-2/ada/session"
)

// DefaultStartMessage greets the user once the authorization gate passes.
const DefaultStartMessage = "System: User successfully authenticated via facial recognition. Access granted. Greet the user."

// DeviceFactory builds the hardware for a session started by a UI client.
type DeviceFactory func(p messages.StartAudioPayload) session.Devices

// Options are the collaborators shared by every UI client.
type Options struct {
	Connector  session.Connector
	Tools      session.Tools
	Devices    DeviceFactory
	Memory     *memory.Store
	Bridge     *agents.Bridge
	Authorizer Authorizer
	Metrics    *metrics.Collector
	Gatherer   prometheus.Gatherer
}

type Server struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	config         *config.Config
	opts           Options
}

func NewServerWebsocket(cfg *config.Config, sessionManager *session.Manager, opts Options) *Server {
	if opts.Devices == nil {
		opts.Devices = LocalDevices(cfg)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		sessionManager: sessionManager,
		config:         cfg,
		opts:           opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for video frames
			WriteBufferSize:   64 * 1024, // 64KB for audio chunks
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				// Check allowed origins
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the routes served by the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/extension", s.handleExtension)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start begins listening for connections
func (s *Server) Start() error {
	logger.Info(fmt.Sprintf("🚀 WebSocket server starting on port %d", s.config.Port))
	logger.Info(fmt.Sprintf("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port))
	logger.Info(fmt.Sprintf("🧩 Extension endpoint: ws://localhost:%d/extension", s.config.Port))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("🛑 Shutting down server...")
	s.sessionManager.Shutdown(ctx)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := newClient(uuid.New().String(), conn, s)
	logger.Info("✅ UI client connected", "client", logger.ShortID(c.id))

	c.run()

	// Clean up
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.sessionManager.Remove(ctx, c.id); err != nil {
		logger.Warn("Session stopped with error", "client", logger.ShortID(c.id), "error", err)
	}
	logger.Info("🔌 UI client disconnected", "client", logger.ShortID(c.id))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.sessionManager.Count())
}

type statusResponse struct {
	Sessions  []session.Info `json:"sessions"`
	Extension bool           `json:"extension_connected"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Sessions: s.sessionManager.List()}
	if s.opts.Bridge != nil {
		resp.Extension = s.opts.Bridge.Connected()
	}

	data, err := sonic.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// LocalDevices returns a factory using the machine's audio devices and
// ffmpeg grabbers. The start_audio device index overrides the configured
// microphone.
func LocalDevices(cfg *config.Config) DeviceFactory {
	return func(p messages.StartAudioPayload) session.Devices {
		input := cfg.InputDevice
		if p.DeviceIndex != nil {
			input = *p.DeviceIndex
		}
		return session.Devices{
			Microphone: devices.NewMicrophone(input),
			Speaker:    devices.NewSpeaker(cfg.OutputDevice),
			Camera:     devices.NewCamera(devices.DefaultFFmpegPath),
			Screen:     devices.NewScreen(devices.DefaultFFmpegPath),
		}
	}
}
