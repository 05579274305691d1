// Command local runs one assistant session against this machine's microphone,
// speaker and camera or screen, with a console for text and confirmations.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	cli "github.com/spf13/pflag"

	"github.com/room4-2/ada/agents"
	"github.com/room4-2/ada/config"
	"github.com/room4-2/ada/devices"
	"github.com/room4-2/ada/functions"
	"github.com/room4-2/ada/gemini"
	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/session"
)

func main() {
	mode := cli.StringP("mode", "m", "", "Video source: camera, screen or none (default from VIDEO_MODE)")
	inputDevice := cli.IntP("input-device", "i", devices.DefaultDevice, "Microphone device index, -1 for the system default")
	outputDevice := cli.IntP("output-device", "o", devices.DefaultDevice, "Speaker device index, -1 for the system default")
	listDevices := cli.BoolP("list-devices", "L", false, "List audio devices and exit")
	text := cli.StringP("text", "t", "", "Text to send once connected")
	muted := cli.Bool("muted", false, "Start with capture paused")
	noConfirm := cli.Bool("no-confirm", false, "Run tools without asking for confirmation")
	verbose := cli.BoolP("verbose", "v", false, "Debug logging")
	cli.Parse()

	logger.SetVerbose(*verbose)

	if *listDevices {
		names, err := devices.ListAudioDevices()
		if err != nil {
			logger.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.VideoMode = *mode
	}
	if cli.CommandLine.Changed("input-device") {
		cfg.InputDevice = *inputDevice
	}
	if cli.CommandLine.Changed("output-device") {
		cfg.OutputDevice = *outputDevice
	}
	if *noConfirm {
		cfg.RequireConfirmation = false
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Error("Failed to create Gemini client", "error", err)
		os.Exit(1)
	}

	subModel := gemini.NewModel(client, cfg.SubAgentModel)
	catalog, err := functions.NewCatalog(
		agents.NewCADAgent(subModel, cfg.CADWorkDir, cfg.PythonBin),
		agents.NewBrowserAgent(subModel, agents.NewBridge(cfg.ExtensionTimeout)),
		cfg.RequireConfirmation,
	)
	if err != nil {
		logger.Error("Failed to build tool catalog", "error", err)
		os.Exit(1)
	}

	console := &console{}
	callbacks := session.Callbacks{
		OnTranscription: func(t session.Transcription) {
			fmt.Printf("%s: %s\n", t.Sender, t.Text)
		},
		OnBackgroundResult: func(r session.BackgroundResult) {
			switch {
			case r.Progress != nil && r.Progress.Log != "":
				fmt.Printf("[%s] %s\n", r.Tool, r.Progress.Log)
			case r.Done && r.Err != nil:
				fmt.Printf("[%s] failed: %v\n", r.Tool, r.Err)
			case r.Done:
				fmt.Printf("[%s] done: %s\n", r.Tool, r.Result)
			}
		},
		OnStatus: func(st session.Status) {
			fmt.Printf("* %s\n", st.Message)
		},
	}
	if cfg.RequireConfirmation {
		callbacks.OnToolConfirmationRequest = console.ask
	}

	sess, err := session.New(session.Config{
		Connector: gemini.NewConnector(client, gemini.LiveOptions{
			Model:        cfg.Model,
			SystemPrompt: session.DefaultSystemPrompt,
			Voice:        cfg.VoiceName,
			Tools:        catalog.Tools(),
		}),
		Tools: catalog,
		Devices: session.Devices{
			Microphone: devices.NewMicrophone(cfg.InputDevice),
			Speaker:    devices.NewSpeaker(cfg.OutputDevice),
			Camera:     devices.NewCamera(devices.DefaultFFmpegPath),
			Screen:     devices.NewScreen(devices.DefaultFFmpegPath),
		},
		Callbacks:           callbacks,
		VideoMode:           session.ParseVideoMode(cfg.VideoMode),
		OutboundQueueSize:   cfg.OutboundQueueSize,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
	})
	if err != nil {
		logger.Error("Failed to create session", "error", err)
		os.Exit(1)
	}

	if err := sess.Start(ctx, session.StartOptions{StartMessage: *text, Paused: *muted}); err != nil {
		logger.Error("Failed to start session", "error", err)
		os.Exit(1)
	}
	console.session = sess

	fmt.Println("Type a message and press enter. /pause, /resume and /quit control the session.")
	go console.readLines(ctx, cancel)

	select {
	case <-ctx.Done():
		_ = sess.Stop()
	case <-sess.Done():
	}
	if err := sess.Err(); err != nil {
		logger.Error("Session ended with error", "error", err)
		os.Exit(1)
	}
}

// console routes stdin lines either to a pending confirmation or to the
// session as text.
type console struct {
	session *session.Session

	mu      sync.Mutex
	pending []session.ConfirmationRequest
}

func (c *console) ask(req session.ConfirmationRequest) {
	c.mu.Lock()
	c.pending = append(c.pending, req)
	c.mu.Unlock()
	fmt.Printf("? Allow %s %v [y/n]\n", req.Tool, req.Args)
}

func (c *console) next() (session.ConfirmationRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return session.ConfirmationRequest{}, false
	}
	req := c.pending[0]
	c.pending = c.pending[1:]
	return req, true
}

func (c *console) readLines(ctx context.Context, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if req, ok := c.next(); ok {
			approved := strings.EqualFold(line, "y") || strings.EqualFold(line, "yes")
			if !c.session.ResolveConfirmation(req.ID, approved) {
				fmt.Println("* Confirmation expired")
			}
			continue
		}

		switch line {
		case "/quit":
			quit()
			return
		case "/pause":
			c.session.SetPaused(true)
		case "/resume":
			c.session.SetPaused(false)
		default:
			if err := c.session.SendText(ctx, line); err != nil {
				logger.Warn("Failed to send text", "error", err)
			}
		}
	}
}
