// Package app wires the gateway's dependency graph: configuration,
// credential store, auth manager, truncation cache, orchestrator, HTTP
// server and maintenance scheduler. Grounded on the teacher's
// internal/application.App dependency-injection container, generalised
// from the teacher's agent/LLM-router graph to this gateway's
// credential/orchestrator/httpapi graph.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/auth"
	"github.com/brgw/gateway/internal/config"
	"github.com/brgw/gateway/internal/credential"
	"github.com/brgw/gateway/internal/httpapi"
	"github.com/brgw/gateway/internal/maintenance"
	"github.com/brgw/gateway/internal/metrics"
	"github.com/brgw/gateway/internal/orchestrator"
	"github.com/brgw/gateway/internal/safego"
	"github.com/brgw/gateway/internal/truncation"
)

const defaultDesktopHostSuffix = "auth.desktop.kiro.dev"

// App is the assembled application: every long-lived component plus the
// HTTP server wrapping them.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	single *auth.SingleTokenManager
	multi  *auth.MultiTokenManager
	orch   *orchestrator.Orchestrator
	cache  *truncation.Cache

	watcher    *credential.Watcher
	scheduler  *maintenance.Scheduler
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the full dependency graph from cfg, but does not start any
// background goroutines or listeners; call Start for that.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, sqlBacked, err := buildStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build credential store: %w", err)
	}

	cache := truncation.New(cfg.Truncation.CacheTTL, cfg.Truncation.CacheMaxEntries)
	promReg := prometheus.NewRegistry()
	metricsReg := metrics.New(promReg)

	a := &App{cfg: cfg, logger: logger, cache: cache}

	refreshThreshold := cfg.Timing.RefreshThreshold
	bgInterval := cfg.Timing.BackgroundRefreshInterval

	switch {
	case len(cfg.Auth.RefreshTokens) > 1:
		refresher := buildRefresher(cfg, logger)
		a.multi = auth.NewMultiTokenManager(cfg.Auth.RefreshTokens, cfg.Auth.ClientID, cfg.Auth.ClientSecret, refresher, refreshThreshold, bgInterval, logger)
	default:
		refresher := buildRefresher(cfg, logger)
		a.single = auth.NewSingleTokenManager(store, refresher, sqlBacked, refreshThreshold, bgInterval, logger)

		if !sqlBacked {
			if jsonStore, ok := store.(*credential.JSONStore); ok {
				w, err := credential.NewWatcher(jsonStore, a.single.ApplyEnvelope, logger)
				if err != nil {
					logger.Warn("credential hot-reload watcher unavailable", zap.Error(err))
				} else {
					a.watcher = w
				}
			}
		}
	}

	var tokens orchestrator.TokenSource
	if a.multi != nil {
		tokens = a.multi
	} else {
		tokens = a.single
	}

	a.orch = orchestrator.New(orchestrator.Config{
		Tokens:                   tokens,
		Cache:                    cache,
		Metrics:                  metricsReg,
		Logger:                   logger,
		Region:                   cfg.Auth.Region,
		ProxyAPIKey:              cfg.Auth.ProxyAPIKey,
		ToolDescriptionMaxLength: cfg.Tool.DescriptionMaxLength,
		ThinkingEnabled:          cfg.Reasoning.FakeReasoningEnabled,
		ThinkingMaxLength:        cfg.Reasoning.FakeReasoningMaxTokens,
	})

	scheduler, err := maintenance.New(cache, a.multi, logger)
	if err != nil {
		return nil, fmt.Errorf("build maintenance scheduler: %w", err)
	}
	a.scheduler = scheduler

	router := httpapi.NewRouter(httpapi.Config{
		Orchestrator: a.orch,
		Single:       a.single,
		Multi:        a.multi,
		Metrics:      metricsReg,
		PromRegistry: promReg,
		Logger:       logger,
		ReleaseMode:  cfg.Server.Mode != "debug",
	})
	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	return a, nil
}

func buildStore(cfg *config.Config, logger *zap.Logger) (credential.Store, bool, error) {
	switch cfg.Store.Backend {
	case "sql":
		db, err := credential.OpenDB(cfg.Store.DBType, cfg.Store.DSN)
		if err != nil {
			return nil, false, err
		}
		return credential.NewSQLStore(db, logger), true, nil
	default:
		path := cfg.Store.Path
		if path == "" {
			path = "credentials.json"
		}
		return credential.NewJSONStore(path, logger), false, nil
	}
}

func buildRefresher(cfg *config.Config, logger *zap.Logger) auth.Refresher {
	if cfg.Auth.Type == config.AuthTypeOIDC {
		return auth.NewOIDCRefresher(cfg.Auth.EffectiveSSORegion())
	}
	return auth.NewDesktopRefresher(cfg.Auth.Region, defaultDesktopHostSuffix)
}

// Start launches the HTTP listener, maintenance scheduler, background
// token refresh loop and (if wired) the credential hot-reload watcher.
// Mirrors the teacher's App.Start: start, log, return immediately.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if a.single != nil {
		safego.Go(a.logger, "single-token-refresh", func() { a.single.BackgroundRefresh(a.ctx) })
	}
	if a.multi != nil {
		safego.Go(a.logger, "multi-token-refresh", func() { a.multi.BackgroundRefresh(a.ctx) })
	}
	if a.watcher != nil {
		safego.Go(a.logger, "credential-watcher", a.watcher.Run)
	}

	a.scheduler.Start()

	safego.Go(a.logger, "http-server", func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server error", zap.Error(err))
		}
	})

	a.logger.Info("gateway started", zap.String("address", a.httpServer.Addr))
	return nil
}

// Stop gracefully shuts down the HTTP server within ctx's deadline, then
// stops every background component.
func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		firstErr = err
	}

	a.scheduler.Stop()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.single != nil {
		a.single.Stop()
	}
	if a.multi != nil {
		a.multi.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}

	a.logger.Info("gateway stopped")
	return firstErr
}

// WaitIdle is a small helper for tests that want a deterministic point
// after Start before issuing requests (gin's ListenAndServe goroutine
// needs a moment to bind the listener).
func (a *App) WaitIdle() { time.Sleep(10 * time.Millisecond) }
