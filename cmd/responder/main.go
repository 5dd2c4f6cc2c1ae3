// Responder server — ingests alerts over HTTP, runs the incident pipeline,
// and serves incident history, approvals, and the live event stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/adapter/github"
	"github.com/codeready-toolchain/responder/pkg/adapter/grafana"
	"github.com/codeready-toolchain/responder/pkg/adapter/kubernetes"
	"github.com/codeready-toolchain/responder/pkg/adapter/notion"
	"github.com/codeready-toolchain/responder/pkg/adapter/pagerduty"
	"github.com/codeready-toolchain/responder/pkg/api"
	"github.com/codeready-toolchain/responder/pkg/approval"
	"github.com/codeready-toolchain/responder/pkg/breaker"
	"github.com/codeready-toolchain/responder/pkg/bus"
	"github.com/codeready-toolchain/responder/pkg/cleanup"
	"github.com/codeready-toolchain/responder/pkg/config"
	"github.com/codeready-toolchain/responder/pkg/coordinator"
	"github.com/codeready-toolchain/responder/pkg/dispatch"
	"github.com/codeready-toolchain/responder/pkg/executor"
	"github.com/codeready-toolchain/responder/pkg/gate"
	"github.com/codeready-toolchain/responder/pkg/llm"
	"github.com/codeready-toolchain/responder/pkg/masking"
	"github.com/codeready-toolchain/responder/pkg/metrics"
	"github.com/codeready-toolchain/responder/pkg/models"
	"github.com/codeready-toolchain/responder/pkg/notify"
	"github.com/codeready-toolchain/responder/pkg/planner"
	"github.com/codeready-toolchain/responder/pkg/store"
	"github.com/codeready-toolchain/responder/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("RESPONDER_CONFIG", "./deploy/responder.yaml"),
		"Path to configuration file")
	flag.Parse()

	// Load .env before config so {{.VAR}} expansion sees the values.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting responder",
		"version", version.Full(),
		"config", *configPath)

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	mode, err := models.ParseOperatingMode(cfg.Pipeline.OperatingMode)
	if err != nil {
		slog.Error("Invalid operating mode", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"mode", mode,
		"destructive_enabled", cfg.Pipeline.DestructiveEnabled)

	// Persistence is optional: no database host means in-memory only.
	var st *store.Store
	if cfg.Database.Host != "" {
		st, err = store.Open(ctx, store.Config{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := st.Close(); err != nil {
				slog.Error("Error closing database", "error", err)
			}
		}()
		slog.Info("Connected to PostgreSQL")
	} else {
		slog.Warn("No database configured, incidents will not be persisted")
	}

	registry := buildRegistry(cfg)
	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	registry.ConnectAll(connectCtx)
	cancelConnect()
	defer registry.Shutdown()
	slog.Info("Backends registered", "backends", registry.Names())

	maskSvc := masking.NewService(nil)

	var analyst llm.Analyst
	if cfg.LLM.APIKey != "" {
		client, err := llm.New(llm.Config{
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: int64(cfg.LLM.MaxTokens),
		})
		if err != nil {
			slog.Error("Failed to initialize LLM client", "error", err)
			os.Exit(1)
		}
		analyst = masking.NewAnalyst(client, maskSvc)
		slog.Info("LLM client initialized", "model", cfg.LLM.Model)
	} else {
		slog.Warn("No LLM API key configured, analysis stage disabled")
	}

	eventBus := bus.New(bus.Options{
		QueueSize:  cfg.Bus.QueueSize,
		ReplaySize: cfg.Bus.ReplaySize,
	})
	defer eventBus.Close()

	brk := breaker.New(breaker.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		Cooldown:         cfg.Circuit.Recovery(),
	})

	approvals := approval.NewRegistry(approval.Config{})
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	approvals.StartSweeper(sweepCtx)
	defer cancelSweep()

	cmdGate := gate.New(gate.Config{
		DestructiveEnabled: cfg.Pipeline.DestructiveEnabled,
		ApprovalTimeout:    cfg.Pipeline.ApprovalTimeout(),
		ExtraForbidden:     cfg.Pipeline.ExtraForbidden,
	}, approvals)

	exec := executor.New(executor.Config{}, registry, cmdGate, brk, eventBus)
	plnr := planner.New(planner.Config{})

	notifier := notify.NewService(notify.ServiceConfig{
		Token:        cfg.Slack.Token,
		Channel:      cfg.Slack.Channel,
		DashboardURL: cfg.Server.DashboardURL,
	})
	if notifier == nil {
		slog.Info("Slack notifications disabled")
	}

	// A typed-nil store must not reach the coordinator as a non-nil interface.
	var coordStore coordinator.Store
	if st != nil {
		coordStore = st
	}
	var coordNotifier coordinator.Notifier
	if notifier != nil {
		coordNotifier = notifier
	}

	coord := coordinator.New(coordinator.Config{
		GatherDeadline: cfg.Pipeline.GatherDeadline(),
	}, registry, plnr, exec, analyst, eventBus, coordStore, coordNotifier)

	mtr := metrics.New()
	mtr.RegisterBreaker(brk)
	go mtr.ObserveBus(eventBus)

	dispatcher := dispatch.New(dispatch.Config{}, coord)
	dispatcher.Start(ctx)

	var retention *cleanup.Service
	if st != nil {
		retention = cleanup.NewService(cleanup.Config{
			MaxAge:        time.Duration(cfg.Retention.MaxAgeDays) * 24 * time.Hour,
			SweepInterval: time.Duration(cfg.Retention.SweepIntervalMinutes) * time.Minute,
		}, st)
		retention.Start(ctx)
	}

	server := api.NewServer(api.Options{
		Mode:             mode,
		Coordinator:      coord,
		Dispatcher:       dispatcher,
		Registry:         registry,
		Approvals:        approvals,
		Breaker:          brk,
		Bus:              eventBus,
		Store:            st,
		MetricsHandler:   mtr.Handler(),
		AllowedWSOrigins: cfg.Server.AllowedWSOrigins,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-serverErr:
		slog.Error("HTTP server failed", "error", err)
	}

	// Drain in order: stop accepting, finish live incidents, stop background
	// loops, then the deferred closes tear down the bus, registry and store.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	dispatcher.Stop()
	retention.Stop()

	slog.Info("Responder stopped")
}

// buildRegistry registers every configured backend. A backend missing its
// credentials is skipped, not stubbed.
func buildRegistry(cfg *config.Config) *adapter.Registry {
	registry := adapter.NewRegistry()

	if !cfg.Backends.Kubernetes.Disabled {
		registry.Register(kubernetes.New(kubernetes.Config{
			KubectlPath:         cfg.Backends.Kubernetes.KubectlPath,
			MCPCommand:          cfg.Backends.Kubernetes.MCPCommand,
			Namespace:           cfg.Backends.Kubernetes.Namespace,
			DestructiveDisabled: !cfg.Pipeline.DestructiveEnabled,
		}, nil))
	}
	if cfg.Backends.GitHub.Token != "" {
		registry.Register(github.New(github.Config{
			BaseURL:  cfg.Backends.GitHub.BaseURL,
			Token:    cfg.Backends.GitHub.Token,
			Owner:    cfg.Backends.GitHub.Owner,
			Repo:     cfg.Backends.GitHub.Repo,
			CacheDir: cfg.Backends.GitHub.CacheDir,
			CacheTTL: time.Duration(cfg.Backends.GitHub.CacheTTLHours) * time.Hour,
		}))
	}
	if cfg.Backends.Grafana.Token != "" {
		registry.Register(grafana.New(grafana.Config{
			BaseURL: cfg.Backends.Grafana.URL,
			Token:   cfg.Backends.Grafana.Token,
		}))
	}
	if cfg.Backends.Notion.Token != "" {
		registry.Register(notion.New(notion.Config{
			Token:        cfg.Backends.Notion.Token,
			ParentPageID: cfg.Backends.Notion.ParentPageID,
		}))
	}
	if cfg.Backends.PagerDuty.Token != "" {
		registry.Register(pagerduty.New(pagerduty.Config{
			Token:      cfg.Backends.PagerDuty.Token,
			RoutingKey: cfg.Backends.PagerDuty.RoutingKey,
			FromEmail:  cfg.Backends.PagerDuty.From,
		}))
	}
	return registry
}
