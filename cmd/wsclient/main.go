// Command wsclient exercises the server's UI protocol: it authenticates, starts
// the assistant, sends a text turn and plays the returned audio through sox.
package main

import (
	"encoding/base64"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	cli "github.com/spf13/pflag"

	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/messages"
)

// AudioPlayer streams audio via sox
type AudioPlayer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	closed bool
}

func NewAudioPlayer() *AudioPlayer {
	cmd := exec.Command("sox",
		"-t", "raw",
		"-r", "24000",
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
		"-d",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.Warn("sox stdin error", "error", err)
		return nil
	}

	if err := cmd.Start(); err != nil {
		logger.Warn("sox start error", "error", err)
		return nil
	}

	return &AudioPlayer{cmd: cmd, stdin: stdin}
}

func (p *AudioPlayer) Play(audioData []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.stdin == nil {
		return
	}
	p.stdin.Write(audioData)
}

func (p *AudioPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Wait()
	}
}

func main() {
	serverURL := cli.StringP("server", "s", "ws://localhost:8000/ws", "WebSocket server URL")
	token := cli.String("token", "", "Authorization token, if the server requires one")
	text := cli.StringP("text", "t", "Hello! Say hi back in one sentence.", "Text turn to send")
	approve := cli.Bool("approve", false, "Approve every tool confirmation request")
	mute := cli.Bool("mute", true, "Start with the server microphone paused")
	noAudio := cli.Bool("no-audio", false, "Do not play returned audio")
	wait := cli.DurationP("wait", "w", 30*time.Second, "How long to wait for responses")
	cli.Parse()

	logger.Info("🔌 Connecting", "url", *serverURL)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		logger.Error("Failed to connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	logger.Info("✅ Connected!")

	var player *AudioPlayer
	if !*noAudio {
		if player = NewAudioPlayer(); player == nil {
			logger.Warn("Audio playback disabled (is sox installed?)")
		} else {
			defer player.Close()
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	var writeMu sync.Mutex
	send := func(typ string, payload interface{}) {
		msg := map[string]interface{}{"type": typ}
		if payload != nil {
			msg["payload"] = payload
		}
		data, err := messages.Encode(msg)
		if err != nil {
			logger.Error("Encode error", "error", err)
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Error("Send error", "error", err)
		}
	}

	started := make(chan struct{})
	var startOnce sync.Once
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				logger.Info("Read loop ended", "error", err)
				return
			}

			// Server envelopes share the client's {type, payload} shape.
			msg, err := messages.DecodeClient(data)
			if err != nil {
				logger.Warn("Parse error", "error", err)
				continue
			}

			switch msg.Type {
			case messages.TypeAudioData:
				var p messages.AudioPayload
				if messages.DecodePayload(msg, &p) != nil || player == nil {
					continue
				}
				if audio, err := base64.StdEncoding.DecodeString(p.Data); err == nil {
					player.Play(audio)
				}

			case messages.TypeTranscription:
				var p messages.TranscriptionPayload
				_ = messages.DecodePayload(msg, &p)
				logger.Info("📝 "+p.Sender, "text", p.Text)

			case messages.TypeStatus:
				var p messages.StatusPayload
				_ = messages.DecodePayload(msg, &p)
				logger.Info("📊 Status", "msg", p.Msg, "state", p.State)
				if p.Msg == "A.D.A Started" || p.Msg == "A.D.A is already running" {
					startOnce.Do(func() { close(started) })
				}

			case messages.TypeAuthStatus:
				var p messages.AuthStatusPayload
				_ = messages.DecodePayload(msg, &p)
				logger.Info("🔐 Auth status", "authenticated", p.Authenticated)

			case messages.TypeToolConfirmationRequest:
				var p messages.ToolConfirmationPayload
				_ = messages.DecodePayload(msg, &p)
				logger.Info("🔧 Confirmation requested", "tool", p.Tool, "args", p.Args, "approve", *approve)
				send(messages.TypeConfirmTool, messages.ConfirmToolPayload{ID: p.ID, Confirmed: *approve})

			case messages.TypeCADData:
				var p messages.CADPayload
				_ = messages.DecodePayload(msg, &p)
				logger.Info("📐 CAD data received", "format", p.Format, "bytes", base64.StdEncoding.DecodedLen(len(p.Data)))

			case messages.TypeBrowserFrame:
				var p messages.BrowserFramePayload
				_ = messages.DecodePayload(msg, &p)
				if p.Log != "" {
					logger.Info("🌐 Browser", "log", p.Log)
				}

			case messages.TypeError:
				logger.Error("❌ Error", "payload", string(msg.Payload))
			}
		}
	}()

	if *token != "" {
		send(messages.TypeAuthenticate, messages.AuthenticatePayload{Token: *token})
	}
	send(messages.TypeStartAudio, messages.StartAudioPayload{Muted: *mute})

	select {
	case <-started:
	case <-done:
		logger.Info("Connection closed before start")
		return
	case <-time.After(15 * time.Second):
		logger.Error("⏰ Timeout waiting for the assistant to start")
		os.Exit(1)
	}

	logger.Info("📤 Sending text", "text", *text)
	send(messages.TypeUserInput, messages.UserInputPayload{Text: *text})

	select {
	case <-done:
		logger.Info("Connection closed")
	case <-interrupt:
		logger.Info("👋 Interrupted, closing...")
		send(messages.TypeStopAudio, nil)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-time.After(*wait):
		logger.Info("⏰ Done waiting for responses")
		send(messages.TypeStopAudio, nil)
	}
}
