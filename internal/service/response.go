package service

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/tyuo/internal/engine"
	"github.com/roach88/tyuo/internal/store"
)

const (
	codeInvalidRequest   = "INVALID_REQUEST"
	codeInvalidContextID = "INVALID_CONTEXT_ID"
	codeContextDropped   = "CONTEXT_DROPPED"
	codeStoreUnavailable = "STORE_UNAVAILABLE"
	codeRateLimited      = "RATE_LIMITED"
	codeInternal         = "INTERNAL"
)

// errorBody is the error envelope.
type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorInfo{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(RequestIDHeader),
	}})
}

// classify maps an engine error to a status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidContextID):
		return http.StatusBadRequest, codeInvalidContextID
	case errors.Is(err, engine.ErrContextDropped):
		return http.StatusConflict, codeContextDropped
	case errors.Is(err, engine.ErrEngineClosed), store.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable, codeStoreUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
