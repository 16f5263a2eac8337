package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/forecast"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

const maxBodyBytes = 1 << 20

// forecastRequest is the body of POST /api/v1/forecast/jobs. Field names
// match the query parameters of GET /api/v1/forecast.
type forecastRequest struct {
	User         string `json:"user"`
	Type         string `json:"type"`
	NFuture      *int   `json:"n_future"`
	MonthsAmount int    `json:"months_amount"`
}

func (f forecastRequest) toRequest() services.Request {
	horizon := 1
	if f.NFuture != nil {
		horizon = *f.NFuture
	}
	return services.Request{
		UserID:       f.User,
		Model:        f.Type,
		Horizon:      horizon,
		MonthsAmount: f.MonthsAmount,
	}
}

// parseForecastQuery reads user, type, n_future (default 1) and
// months_amount (invalid values fall back to the default window).
func parseForecastQuery(r *http.Request) (services.Request, error) {
	q := r.URL.Query()
	req := services.Request{
		UserID:  strings.TrimSpace(q.Get("user")),
		Model:   strings.TrimSpace(q.Get("type")),
		Horizon: 1,
	}
	if v := strings.TrimSpace(q.Get("n_future")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: n_future must be an integer", services.ErrInvalidRequest)
		}
		req.Horizon = n
	}
	if v := strings.TrimSpace(q.Get("months_amount")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.MonthsAmount = n
		}
	}
	return req, nil
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	req, err := parseForecastQuery(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp, err := s.service.Forecast(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body forecastRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	run, err := s.service.Enqueue(r.Context(), body.toRequest())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/forecast/jobs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.service.ListRuns(r.Context(), r.URL.Query().Get("user"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*storage.ForecastRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.service.Models()})
}

// handleOverview summarises ?month=YYYY-MM, defaulting to the current month.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	month := core.MonthKey{Year: now.Year(), Month: now.Month()}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := core.ParseMonthKey(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "month must be formatted YYYY-MM")
			return
		}
		month = m
	}
	ov, err := s.service.Overview(r.Context(), r.URL.Query().Get("user"), month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, forecast.ErrInvalidModel):
		return http.StatusBadRequest
	case forecast.IsUserFacing(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrJobsDisabled), errors.Is(err, services.ErrHistoryDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		applog.FromContext(r.Context()).LogError(r.Context(), "Request failed", err, applog.OpForecast, applog.ErrorTypeInternal)
		msg = "internal error"
	case http.StatusGatewayTimeout:
		msg = "forecast timed out"
	case http.StatusNotFound:
		msg = "forecast run not found"
	}
	writeError(w, r, code, msg)
}
