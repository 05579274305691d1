package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/room4-2/ada/agents"
	"github.com/room4-2/ada/config"
	"github.com/room4-2/ada/functions"
	"github.com/room4-2/ada/gemini"
	"github.com/room4-2/ada/logger"
	"github.com/room4-2/ada/memory"
	"github.com/room4-2/ada/metrics"
	"github.com/room4-2/ada/server"
	"github.com/room4-2/ada/session"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Error("Failed to create Gemini client", "error", err)
		os.Exit(1)
	}

	// Sub-agents and the tool catalog
	subModel := gemini.NewModel(client, cfg.SubAgentModel)
	bridge := agents.NewBridge(cfg.ExtensionTimeout)
	catalog, err := functions.NewCatalog(
		agents.NewCADAgent(subModel, cfg.CADWorkDir, cfg.PythonBin),
		agents.NewBrowserAgent(subModel, bridge),
		cfg.RequireConfirmation,
	)
	if err != nil {
		logger.Error("Failed to build tool catalog", "error", err)
		os.Exit(1)
	}

	connector := gemini.NewConnector(client, gemini.LiveOptions{
		Model:        cfg.Model,
		SystemPrompt: session.DefaultSystemPrompt,
		Voice:        cfg.VoiceName,
		Tools:        catalog.Tools(),
	})

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Create session manager
	sessionManager := session.NewManager(cfg)
	go sessionManager.StartCleanupRoutine(ctx)

	var authorizer server.Authorizer
	if cfg.AuthToken != "" {
		authorizer = server.TokenAuthorizer{Token: cfg.AuthToken}
	}

	srv := server.NewServerWebsocket(cfg, sessionManager, server.Options{
		Connector:  connector,
		Tools:      catalog,
		Memory:     memory.NewStore(cfg.MemoryDir, sessionManager.Redis()),
		Bridge:     bridge,
		Authorizer: authorizer,
		Metrics:    collector,
		Gatherer:   registry,
	})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Received shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
