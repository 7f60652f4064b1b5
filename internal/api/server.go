package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Server is the HTTP server for the light API.
type Server struct {
	addr       string
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a server for handler listening on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
	}
}

// Run serves until ctx is cancelled, then shuts down within shutdownTimeout. It returns
// once in-flight requests have drained or the timeout has passed.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln, shutdownTimeout)
}

func (s *Server) serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", ln.Addr().String()).Msg("Starting light API server")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Light API server shutdown error")
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts; wait for the drain.
	<-stopped
	return nil
}
