package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/neurolens/lucid/internal/answer"
	"github.com/neurolens/lucid/internal/api"
	"github.com/neurolens/lucid/internal/archive"
	"github.com/neurolens/lucid/internal/config"
	"github.com/neurolens/lucid/internal/engine"
	"github.com/neurolens/lucid/internal/events"
	"github.com/neurolens/lucid/internal/explain"
	"github.com/neurolens/lucid/internal/intent"
	"github.com/neurolens/lucid/internal/knowledge"
	"github.com/neurolens/lucid/internal/metrics"
	"github.com/neurolens/lucid/internal/session"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("lucid starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reference knowledge
	kb := knowledge.Default()
	if cfg.KnowledgeFile != "" {
		loaded, err := knowledge.Load(cfg.KnowledgeFile)
		if err != nil {
			slog.Error("failed to load knowledge file", "path", cfg.KnowledgeFile, "error", err)
			os.Exit(1)
		}
		kb = loaded
		slog.Info("knowledge file loaded", "path", cfg.KnowledgeFile, "classes", len(kb.Classes()))
	}

	// Explanation builder
	buildCfg := explain.DefaultConfig()
	buildCfg.NoiseFloor = cfg.NoiseFloor
	buildCfg.Recommend = kb.Recommend
	buildCfg.NoFinding = kb.IsNoFinding
	builder := explain.NewBuilder(buildCfg)

	sessions := session.NewRegistry(cfg.HistoryLimit)

	// Archive (optional - without it explanations are memory only)
	var arch *archive.Archive
	if cfg.DatabaseURL != "" {
		var err error
		arch, err = archive.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer arch.Close()
		slog.Info("database connected")
	} else {
		slog.Warn("database not configured - explanations are memory only")
	}

	// Event bus (optional - without it Lucid serves the HTTP API only)
	var bus *events.Client
	if cfg.NatsURL != "" {
		var err error
		bus, err = events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured - running API only")
	}

	m := metrics.New(sessions.Count)

	// Engine - the explanation pipeline
	eng := engine.New(sessions, builder, intent.DefaultRegistry(), answer.NewSynthesizer(kb), arch, bus, m, slog.Default())

	// Consume stored classifier results from the bus
	if bus != nil {
		if err := bus.Subscribe(events.SubjectResultStored, eng.HandleClassifierResult); err != nil {
			slog.Error("failed to subscribe to classifier results", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, eng, m.Handler(), slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("lucid ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("lucid stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
