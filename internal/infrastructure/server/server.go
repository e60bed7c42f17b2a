// Package server wires the browser host together: the Chrome browser
// context, the domain components, and the HTTP/websocket surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/lumenbrowse/lumen/internal/api/http"
	"github.com/lumenbrowse/lumen/internal/api/middleware"
	"github.com/lumenbrowse/lumen/internal/api/ws"
	"github.com/lumenbrowse/lumen/internal/domain/history"
	"github.com/lumenbrowse/lumen/internal/domain/settings"
	"github.com/lumenbrowse/lumen/internal/domain/stream"
	"github.com/lumenbrowse/lumen/internal/domain/syscheck"
	"github.com/lumenbrowse/lumen/internal/domain/tabs"
	"github.com/lumenbrowse/lumen/internal/events"
	"github.com/lumenbrowse/lumen/internal/infrastructure/config"
	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/infrastructure/monitoring"
	"github.com/lumenbrowse/lumen/internal/infrastructure/resilience"
	"github.com/lumenbrowse/lumen/internal/shared/paths"
	"github.com/lumenbrowse/lumen/internal/webview/cdp"
)

// Server owns the full browser host.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	hub      *events.Hub
	registry *tabs.Registry
	proxy    *stream.Proxy
	settings *settings.Store
	checks   *syscheck.Cache
	httpSrv  *http.Server

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

// New builds the server: launches the browser context, wires the
// domain, and registers all routes.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}
	userData := paths.UserData(cfg.Browser.UserDataDir)
	if err := paths.EnsureUserData(userData); err != nil {
		return nil, fmt.Errorf("failed to prepare user-data dir: %w", err)
	}

	browserCtx, allocCancel, browserCancel, err := launchBrowser(cfg, userData)
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	hub := events.NewHub(logger, metrics)

	policy := cdp.NewSessionPolicy(browserCtx, logger)
	store := settings.NewStore(settings.StoreOptions{
		File:     paths.SettingsFile(userData),
		Policy:   policy,
		OnChange: hub.SettingsChanged,
		Logger:   logger,
	})

	probe := syscheck.NewHTTPProbe(cfg.Backend.BaseURL, userData, logger)
	checks := syscheck.NewCache(syscheck.CacheOptions{
		Probe:    probe,
		UserData: userData,
		Skip:     cfg.Browser.SkipSystemCheck,
		OnUpdate: hub.SystemCheckUpdated,
		Logger:   logger,
	})

	breaker := resilience.New("backend-chat", resilience.Settings{
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	proxy := stream.NewProxy(stream.Options{
		Endpoint:    cfg.ChatURL(),
		IdleTimeout: cfg.Stream.IdleTimeout,
		Sink:        hub,
		Breaker:     breaker,
		Logger:      logger,
		Metrics:     metrics,
	})

	registry := tabs.NewRegistry(tabs.Options{
		Factory:    cdp.NewFactory(browserCtx, logger),
		Host:       cdp.NewHost(logger),
		Broadcast:  hub,
		History:    history.NewRing(0),
		Favicons:   cdp.NewFaviconResolver(logger),
		Logger:     logger,
		Metrics:    metrics,
		DefaultURL: cfg.Browser.DefaultURL,
	})

	router := buildRouter(cfg, logger, metrics, registry, proxy, store, checks, hub)

	return &Server{
		cfg:      cfg,
		logger:   logger.Component("server"),
		metrics:  metrics,
		hub:      hub,
		registry: registry,
		proxy:    proxy,
		settings: store,
		checks:   checks,
		httpSrv: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
	}, nil
}

// launchBrowser starts Chrome with the profile under the user-data
// dir. Flags follow the usual embedded-browser set: no first-run
// chrome, popups surfaced as events instead of native windows.
func launchBrowser(cfg *config.Config, userData string) (context.Context, context.CancelFunc, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(filepath.Join(userData, "profile")),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
	)
	if cfg.Browser.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Materialize the browser before wiring anything to it.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return browserCtx, allocCancel, browserCancel, nil
}

func buildRouter(
	cfg *config.Config,
	logger *logging.Logger,
	metrics *monitoring.Metrics,
	registry *tabs.Registry,
	proxy *stream.Proxy,
	store *settings.Store,
	checks *syscheck.Cache,
	hub *events.Hub,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(registry, store, checks, hub)
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/tabs", handlers.Tabs)
	router.GET("/settings", handlers.Settings)
	router.GET("/history", handlers.History)
	router.GET("/system-check", handlers.SystemCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsHandler := ws.NewHandler(registry, proxy, store, checks, hub, logger, metrics)
	router.GET("/ws", wsHandler.HandleConnection)

	return router
}

// Run starts the host and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := s.settings.Watch(ctx); err != nil && err != context.Canceled {
			s.logger.Warn("settings watcher stopped", zap.Error(err))
		}
	}()
	go func() {
		if _, err := s.checks.EnsureInitialCheck(ctx); err != nil {
			s.logger.Warn("initial system check failed", zap.Error(err))
		}
	}()

	// The registry is never empty once running.
	if _, err := s.registry.CreateTab(ctx, s.cfg.Browser.DefaultURL, true); err != nil {
		return fmt.Errorf("failed to create initial tab: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("browser host listening",
			zap.String("addr", s.httpSrv.Addr),
			zap.String("backend", s.cfg.Backend.BaseURL),
			zap.Int("tabs", s.registry.Count()),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	err := s.httpSrv.Shutdown(shutdownCtx)
	s.browserCancel()
	s.allocCancel()
	return err
}
