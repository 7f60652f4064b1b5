// Package api exposes the light service over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/light"
	"github.com/dokzlo13/sitelight/internal/service"
)

// LightService is the set of operations the routes call.
type LightService interface {
	GetStatus(ctx context.Context, siteID int) (service.StatusView, error)
	Toggle(ctx context.Context, siteID int) (service.StatusView, error)
	SetSimpleSchedule(ctx context.Context, siteID int, scheduleOn, scheduleOff string) (service.StatusView, error)
	SetFullSchedule(ctx context.Context, siteID int, rules []light.Rule) (service.FullScheduleView, error)
	GetFullSchedule(ctx context.Context, siteID int) (service.FullScheduleView, error)
	GetHistory(ctx context.Context, siteID *int) ([]service.HistoryView, error)
}

var _ LightService = (*service.LightService)(nil)

// NewRouter builds the route table. metrics may be nil.
func NewRouter(svc LightService, metrics http.Handler) *mux.Router {
	h := &handler{svc: svc}
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	lights := r.PathPrefix("/lights").Subrouter()
	lights.HandleFunc("/status", h.getStatus).Methods(http.MethodGet)
	lights.HandleFunc("/toggle", h.toggle).Methods(http.MethodPost)
	lights.HandleFunc("/schedule", h.setSchedule).Methods(http.MethodPost)
	lights.HandleFunc("/schedule/full", h.getFullSchedule).Methods(http.MethodGet)
	lights.HandleFunc("/schedule/full", h.setFullSchedule).Methods(http.MethodPut)
	lights.HandleFunc("/history", h.getHistory).Methods(http.MethodGet)

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	return r
}

// NewHandler wraps the router with CORS for any origin and request logging.
func NewHandler(svc LightService, metrics http.Handler) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With"}),
	)
	return handlers.CustomLoggingHandler(io.Discard, cors(NewRouter(svc, metrics)), logRequest)
}

func logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	log.Debug().
		Str("method", p.Request.Method).
		Str("path", p.URL.Path).
		Int("status", p.StatusCode).
		Int("size", p.Size).
		Dur("duration", time.Since(p.TimeStamp)).
		Msg("HTTP request")
}
