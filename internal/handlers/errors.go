package handlers

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error kinds surfaced in the envelope's type field.
const (
	errBadRequest          = "bad_request"
	errUnauthorized        = "unauthorized"
	errForbidden           = "forbidden"
	errVideoNotReady       = "video_not_ready"
	errProviderUnavailable = "provider_unavailable"
	errUpstream            = "upstream_error"
	errDeadlineExceeded    = "deadline_exceeded"
	errServerMisconfig     = "server_misconfig"
)

type apiError struct {
	Message  string `json:"message"`
	Type     string `json:"type"`
	Provider string `json:"provider,omitempty"`
	Details  string `json:"details,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func sendError(w http.ResponseWriter, status int, kind, message string) {
	sendErrorDetail(w, status, apiError{Message: message, Type: kind})
}

func sendErrorDetail(w http.ResponseWriter, status int, e apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: e})
}
