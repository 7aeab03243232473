package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rostergate/internal/service"
	"rostergate/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(kind, message string) Response {
	return Response{
		Success: false,
		Error:   kind,
		Message: message,
	}
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		util.Error("Failed to encode response", zap.Error(err))
	}
}

// rateLimitedData is the payload attached to a 429.
type rateLimitedData struct {
	ResetTime time.Time `json:"reset_time"`
}

// writeServiceError maps the service error taxonomy onto HTTP statuses and
// machine-readable kinds. Infrastructure failures surface as a generic 500;
// the cause stays in the logs.
func writeServiceError(w http.ResponseWriter, err error) {
	if rle, ok := service.AsRateLimited(err); ok {
		resp := errorResponse("rate_limited", "Too many code requests. Try again later.")
		resp.Data = rateLimitedData{ResetTime: rle.ResetTime}
		writeJSON(w, http.StatusTooManyRequests, resp)
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	case errors.Is(err, service.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse("session_not_found", "No verification in progress for this phone number. Request a new code."))
	case errors.Is(err, service.ErrCodeAlreadyUsed):
		writeJSON(w, http.StatusConflict, errorResponse("code_already_used", "This code was already used. Request a new one."))
	case errors.Is(err, service.ErrCodeExpired):
		writeJSON(w, http.StatusGone, errorResponse("code_expired", "This code has expired. Request a new one."))
	case errors.Is(err, service.ErrCodeMismatch):
		writeJSON(w, http.StatusBadRequest, errorResponse("code_mismatch", "The code you entered is incorrect."))
	case errors.Is(err, service.ErrTooManyAttempts):
		writeJSON(w, http.StatusTooManyRequests, errorResponse("too_many_attempts", "Too many incorrect attempts. Request a new code."))
	case errors.Is(err, service.ErrGatewayFailure):
		writeJSON(w, http.StatusBadGateway, errorResponse("sms_failed", "We could not send the code. Try again shortly."))
	case errors.Is(err, service.ErrNotAuthorized):
		writeJSON(w, http.StatusNotFound, errorResponse("not_authorized", "This identifier is not on the authorized roster."))
	case errors.Is(err, service.ErrAlreadyRegistered):
		writeJSON(w, http.StatusConflict, errorResponse("already_registered", "An account already exists for this identifier. Sign in instead."))
	default:
		util.Error("Unhandled service error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal_error", "Something went wrong. Try again later."))
	}
}
