package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/mbflow/internal/credential"
	"github.com/smilemakc/mbflow/internal/infrastructure/api/rest"
	"github.com/smilemakc/mbflow/internal/infrastructure/config"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/plugin"
	"github.com/smilemakc/mbflow/internal/plugin/builtin"
	"github.com/smilemakc/mbflow/internal/sink"
	"github.com/smilemakc/mbflow/internal/sink/postgres"
	"github.com/smilemakc/mbflow/internal/sink/wsobserver"
)

func main() {
	var (
		port       = flag.String("port", "", "Server port (overrides config)")
		wsPort     = flag.String("ws-port", "8081", "WebSocket observer port")
		noWatchers = flag.Bool("no-watchers", false, "Disable the WebSocket execution observer")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.Setup(cfg.LogLevel)
	log.Info().
		Str("version", "1.0.0").
		Str("port", cfg.Port).
		Msg("starting routine execution engine server")

	durableSink, closeSink := buildSink(cfg, log)
	defer closeSink()

	registry := plugin.NewRegistry()
	if err := builtin.RegisterAll(registry, nil); err != nil {
		log.Fatal().Err(err).Msg("failed to register builtin plugins")
	}
	log.Info().Int("count", len(registry.List())).Msg("builtin plugins registered")

	var credentials credential.Loader // nil: no credential store is wired here, so a node with credential mappings fails at dispatch

	execSink := durableSink
	var wsServer *http.Server
	if !*noWatchers {
		var hub *wsobserver.Hub
		wsServer, hub = buildWebSocketServer(cfg, *wsPort, log)
		execSink = sink.Multi{durableSink, wsobserver.NewObserver(hub)}
	}

	srv := rest.NewServer(registry, credentials, execSink, log, rest.Config{
		MaxConcurrency:   cfg.MaxConcurrency,
		MaxExecutionTime: cfg.MaxExecutionTime,
		APIKeys:          cfg.APIKeys,
		RateLimit:        cfg.RateLimit,
		RateLimitWindow:  cfg.RateLimitWindow,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("rest server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("rest server failed")
		}
	}()

	if wsServer != nil {
		go func() {
			log.Info().Str("address", wsServer.Addr).Msg("websocket observer listening")
			if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("websocket observer failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("rest server forced to shutdown")
	}
	if wsServer != nil {
		if err := wsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("websocket observer forced to shutdown")
		}
	}

	log.Info().Msg("server exited gracefully")
}

// buildSink constructs the durable sink from cfg.DatabaseDSN, falling
// back to sink.Noop when no DSN is configured (local development). The
// returned func is a no-op placeholder for future connection teardown.
func buildSink(cfg *config.Config, log zerolog.Logger) (sink.Sink, func()) {
	if cfg.DatabaseDSN == "" {
		log.Info().Msg("no DATABASE_DSN configured, using no-op sink (results are not persisted)")
		return sink.Noop{}, func() {}
	}

	pg := postgres.New(cfg.DatabaseDSN)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pg.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Str("dsn", maskDSN(cfg.DatabaseDSN)).Msg("failed to initialize postgres schema")
	}
	log.Info().Str("dsn", maskDSN(cfg.DatabaseDSN)).Msg("using postgres sink")
	return pg, func() {}
}

// buildWebSocketServer wires a Hub and a JWT- or no-auth-gated upgrade
// handler onto its own port, and returns the Hub so callers can wrap it
// in a wsobserver.Observer and fan execution events into it.
func buildWebSocketServer(cfg *config.Config, port string, log zerolog.Logger) (*http.Server, *wsobserver.Hub) {
	hub := wsobserver.NewHub(log)
	go hub.Run()

	var auth wsobserver.Authenticator = wsobserver.NoAuth{}
	if cfg.JWTSecret != "" {
		auth = wsobserver.NewJWTAuth(cfg.JWTSecret)
	}

	handler := wsobserver.NewHandler(hub, auth, log)
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}, hub
}

// maskDSN masks the password component of a postgres DSN for safe logging.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	start, end := -1, -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' && start == -1 && i+1 < len(dsn) && dsn[i+1] != '/' {
			start = i + 1
		}
		if dsn[i] == '@' && start != -1 {
			end = i
			break
		}
	}
	if start != -1 && end != -1 && end > start {
		return dsn[:start] + "***" + dsn[end:]
	}
	return dsn
}
