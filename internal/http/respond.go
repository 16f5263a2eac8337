package http

import (
	"encoding/json"
	"net/http"

	applog "fintrack/internal/log"
	"fintrack/internal/middleware/trace"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromSlog(nil, applog.ComponentHTTP).Error("Failed to encode response", applog.FieldError, err.Error())
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}
