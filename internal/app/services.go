package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/api"
	"github.com/dokzlo13/sitelight/internal/config"
	"github.com/dokzlo13/sitelight/internal/db"
	"github.com/dokzlo13/sitelight/internal/docstore"
	"github.com/dokzlo13/sitelight/internal/light"
	"github.com/dokzlo13/sitelight/internal/metrics"
	"github.com/dokzlo13/sitelight/internal/repository/docrepo"
	"github.com/dokzlo13/sitelight/internal/repository/sqlrepo"
	"github.com/dokzlo13/sitelight/internal/service"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Exactly one backend is set
	DB   *db.DB
	Docs *docstore.Client

	Metrics    *metrics.Metrics
	Repository light.Repository
	Light      *service.LightService

	Health *HealthService
	API    *APIService
}

// NewServices creates all services for the configured backend.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	repo, err := s.openRepository()
	if err != nil {
		return nil, err
	}

	s.Metrics = metrics.New(string(cfg.Backend))
	s.Repository = s.Metrics.Wrap(repo)
	s.Light = service.New(s.Repository)

	s.Health = NewHealthService(cfg, s.ready)
	s.API = NewAPIService(cfg, api.NewHandler(s.Light, s.Metrics.Handler()))

	return s, nil
}

func (s *Services) openRepository() (light.Repository, error) {
	timeout := s.cfg.Store.Timeout.Duration()

	switch s.cfg.Backend {
	case config.BackendSQLite:
		database, err := db.Open(s.cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		log.Info().Str("backend", string(s.cfg.Backend)).Str("path", s.cfg.Database.Path).Msg("Using relational store")
		return sqlrepo.New(database.DB, timeout), nil

	case config.BackendRedis:
		s.Docs = docstore.Shared(s.cfg.Redis)
		log.Info().Str("backend", string(s.cfg.Backend)).Str("addr", s.cfg.Redis.Address).Msg("Using document store")
		return docrepo.New(s.Docs, timeout), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", s.cfg.Backend)
	}
}

// ready reports whether the configured store answers.
func (s *Services) ready(ctx context.Context) error {
	ctx, cancel := light.StoreContext(ctx, s.cfg.Store.Timeout.Duration())
	defer cancel()

	if s.DB != nil {
		return s.DB.PingContext(ctx)
	}
	if s.Docs != nil {
		return s.Docs.Ping(ctx)
	}
	return nil
}

// Start starts all background services.
// onFatalError is called when a service cannot keep running.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if s.Docs != nil {
		// The store may come up later; requests fail with a store error until it does.
		if err := s.ready(ctx); err != nil {
			log.Warn().Err(err).Msg("Document store not reachable at startup")
		}
	}

	s.Health.Start(ctx)
	s.API.Start(ctx, onFatalError)

	return nil
}

// Stop waits for the API server to drain, then releases the store. The context passed
// to Start must already be cancelled.
func (s *Services) Stop() error {
	s.API.Wait()
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Docs != nil {
		if err := s.Docs.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close document store client")
		}
	}
}
