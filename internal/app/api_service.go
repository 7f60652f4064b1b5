package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dokzlo13/sitelight/internal/api"
	"github.com/dokzlo13/sitelight/internal/config"
)

// APIService wraps the light API HTTP server.
type APIService struct {
	cfg    *config.Config
	server *api.Server
	done   chan struct{}
}

// NewAPIService creates a new APIService serving handler.
func NewAPIService(cfg *config.Config, handler http.Handler) *APIService {
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.HTTP.Addr(), handler),
	}
}

// Start runs the server in the background. A listen failure is fatal.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			onFatalError(fmt.Errorf("light API server: %w", err))
		}
	}()
}

// Wait blocks until a started server has finished shutting down.
func (s *APIService) Wait() {
	if s.done != nil {
		<-s.done
	}
}
