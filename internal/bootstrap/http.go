package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conveyorhq/conveyor/config"
	httpx "github.com/conveyorhq/conveyor/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Auth:      cfg.Services.Auth,
		Keys:      cfg.Services.Keys,
		Jobs:      cfg.Services.Jobs,
		Schedules: cfg.Services.Schedules,
		Flows:     cfg.Services.Flows,
		Webhooks:  cfg.Services.Webhooks,
		Dashboard: cfg.Services.Dashboard,
		Registry:  cfg.Services.Registry,
		Hub:       cfg.Services.Hub,
		Logger:    logger,
	}

	handler := buildHTTPHandler(logger, services)

	return startServer(logger, handler, ":"+strconv.Itoa(appCfg.HTTP.Port))
}

// buildHTTPHandler wraps the router with middleware.
// Order: Recover -> Logging -> Router.
func buildHTTPHandler(logger *slog.Logger, services httpx.RouterServices) http.Handler {
	h := httpx.NewRouter(services)
	h = httpx.Logging(logger)(h)
	h = httpx.Recover(logger)(h)
	return h
}

func startServer(logger *slog.Logger, handler http.Handler, addr string) *http.Server {
	// Read/write timeouts stay unset: websocket connections on /ws are
	// long-lived and must not be cut by the server.
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
