package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/config"
)

// App runs the light API and health servers over one store backend.
type App struct {
	cfg      *config.Config
	services *Services

	ctx    context.Context
	cancel context.CancelFunc
}

// New opens the configured store and builds the servers without starting them.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Services exposes the wired components.
func (a *App) Services() *Services {
	return a.services
}

// Start launches the servers. They run until ctx is cancelled or one of them fails
// to listen.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	stopOnFailure := func(err error) {
		log.Error().Err(err).Msg("Server failed, stopping sitelight")
		a.cancel()
	}

	if err := a.services.Start(a.ctx, stopOnFailure); err != nil {
		return err
	}

	log.Info().
		Str("backend", string(a.cfg.Backend)).
		Str("api_addr", a.cfg.HTTP.Addr()).
		Bool("healthcheck", a.cfg.Healthcheck.Enabled).
		Msg("sitelight is serving")
	return nil
}

// Stop cancels the servers, waits for in-flight requests and closes the store.
func (a *App) Stop() error {
	started := time.Now()
	if a.cancel != nil {
		a.cancel()
	}

	err := a.services.Stop()
	log.Info().Dur("took", time.Since(started)).Msg("sitelight stopped")
	return err
}

// Wait blocks until Start's context is cancelled. It returns at once if Start was
// never called.
func (a *App) Wait() {
	if a.ctx == nil {
		return
	}
	<-a.ctx.Done()
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		log.Warn().Msg("Shutdown signal received")
		stop()
	}()
	return ctx
}
