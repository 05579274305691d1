package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/messages"
)

// handleExtension attaches the browser extension to the bridge for the
// lifetime of the connection. A newer connection replaces an older one.
func (s *Server) handleExtension(w http.ResponseWriter, r *http.Request) {
	if s.opts.Bridge == nil {
		http.Error(w, "browser bridge disabled", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Extension upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	release := s.opts.Bridge.Attach(func(ctx context.Context, msg interface{}) error {
		data, err := messages.Encode(msg)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	})
	defer release()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := messages.DecodeExtension(data)
		if err != nil {
			logger.Warn("⚠️ Invalid extension message", "error", err)
			continue
		}
		if msg.Type != messages.TypeExtensionResult {
			logger.Debug("Extension message ignored", "type", msg.Type)
			continue
		}
		s.opts.Bridge.Resolve(msg.RequestID, msg.Result, msg.Error)
	}
}
