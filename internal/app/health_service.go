package app

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/config"
)

// HealthService provides HTTP health check endpoints.
type HealthService struct {
	cfg    *config.Config
	ready  func(context.Context) error
	server *http.Server
}

// NewHealthService creates a new HealthService. ready backs the /ready endpoint.
func NewHealthService(cfg *config.Config, ready func(context.Context) error) *HealthService {
	return &HealthService{
		cfg:   cfg,
		ready: ready,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler returns the health routes.
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check endpoint
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if s.ready != nil {
			if err := s.ready(r.Context()); err != nil {
				log.Warn().Err(err).Msg("Readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	return mux
}

func (s *HealthService) run(ctx context.Context) {
	addr := s.cfg.Healthcheck.Addr()

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}
