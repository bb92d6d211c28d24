package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/heyitswither/rwci/internal/config"
	"github.com/heyitswither/rwci/internal/core"
	"github.com/heyitswither/rwci/internal/metrics"
	"github.com/heyitswither/rwci/internal/transport/gobwas"
	"github.com/heyitswither/rwci/internal/transport/gorilla"
	transporthttp "github.com/heyitswither/rwci/internal/transport/http"
	"github.com/heyitswither/rwci/internal/transport/ws"
)

// App wires a chat client to its transport and the optional status server.
type App struct {
	client          *core.Client
	username        string
	password        string
	server          *stdhttp.Server
	registry        *prometheus.Registry
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client := core.NewClient(cfg.GatewayURL, NewDialer(cfg), core.Options{
		Logger:  logger,
		Metrics: metrics.New(registry),
	})

	a := &App{
		client:          client,
		username:        cfg.Username,
		password:        cfg.Password,
		registry:        registry,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}
	if cfg.StatusAddr != "" {
		a.server = transporthttp.NewServer(client, registry, cfg, logger)
	}
	return a, nil
}

// NewDialer returns the transport named by cfg.Transport.
func NewDialer(cfg config.Config) core.Dialer {
	switch strings.ToLower(cfg.Transport) {
	case config.TransportGobwas:
		return &gobwas.Dialer{
			Timeout:      cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
	case config.TransportGorilla:
		return &gorilla.Dialer{
			Timeout:      cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
			ReadLimit:    cfg.ReadLimit,
		}
	default:
		return &ws.Dialer{
			Timeout:      cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
			ReadLimit:    cfg.ReadLimit,
		}
	}
}

// Client exposes the chat client so callers can register handlers before Run.
func (a *App) Client() *core.Client { return a.client }

// Run starts the status server, if configured, and the chat session. It
// blocks until the session ends, ctx is cancelled, or the status server fails.
func (a *App) Run(ctx context.Context) error {
	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- a.client.Run(ctx, a.username, a.password)
	}()

	if a.server == nil {
		return <-sessionErr
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("status server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		_ = a.client.Close()
		<-sessionErr
		if err == nil {
			err = errors.New("status server stopped unexpectedly")
		}
		return fmt.Errorf("status server: %w", err)
	case err := <-sessionErr:
		a.shutdown()
		<-serverErr
		return err
	}
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.log.Info().Msg("shutting down status server")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("status server shutdown")
	}
}
