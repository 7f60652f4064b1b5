package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/light"
	"github.com/dokzlo13/sitelight/internal/service"
)

type handler struct {
	svc LightService
}

type toggleRequest struct {
	RestaurantID *int   `json:"restaurantId"`
	Action       string `json:"action"`
}

type scheduleRequest struct {
	RestaurantID *int   `json:"restaurantId"`
	ScheduleOn   string `json:"scheduleOn"`
	ScheduleOff  string `json:"scheduleOff"`
}

type fullScheduleRequest struct {
	RestaurantID *int               `json:"restaurantId"`
	Rules        []service.RuleView `json:"rules"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getStatus(w http.ResponseWriter, r *http.Request) {
	siteID, err := requiredSiteID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, err := h.svc.GetStatus(r.Context(), siteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RestaurantID == nil {
		writeError(w, r, missingField("restaurantId"))
		return
	}
	if req.Action != "toggle" {
		writeError(w, r, &light.ValidationError{Field: "action", Value: req.Action, Reason: errors.New("action must be 'toggle'")})
		return
	}

	status, err := h.svc.Toggle(r.Context(), *req.RestaurantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) setSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RestaurantID == nil {
		writeError(w, r, missingField("restaurantId"))
		return
	}

	status, err := h.svc.SetSimpleSchedule(r.Context(), *req.RestaurantID, req.ScheduleOn, req.ScheduleOff)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) getFullSchedule(w http.ResponseWriter, r *http.Request) {
	siteID, err := requiredSiteID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sched, err := h.svc.GetFullSchedule(r.Context(), siteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *handler) setFullSchedule(w http.ResponseWriter, r *http.Request) {
	var req fullScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RestaurantID == nil {
		writeError(w, r, missingField("restaurantId"))
		return
	}

	sched, err := h.svc.SetFullSchedule(r.Context(), *req.RestaurantID, service.Rules(req.Rules))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	var siteID *int
	if raw := r.URL.Query().Get("restaurantId"); raw != "" {
		id, err := parseSiteID(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		siteID = &id
	}

	history, err := h.svc.GetHistory(r.Context(), siteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func requiredSiteID(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("restaurantId")
	if raw == "" {
		return 0, missingField("restaurantId")
	}
	return parseSiteID(raw)
}

func parseSiteID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &light.ValidationError{Field: "restaurantId", Value: raw, Reason: errors.New("must be an integer")}
	}
	return id, nil
}

func missingField(field string) error {
	return &light.ValidationError{Field: field, Value: nil, Reason: errors.New("field required")}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &light.ValidationError{Field: "body", Value: "", Reason: fmt.Errorf("invalid JSON: %w", err)}
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, light.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
	case errors.Is(err, light.ErrUnresolvedSite):
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: err.Error()})
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: http.StatusText(http.StatusInternalServerError)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
