package web

// errors.go turns engine and request errors into JSON responses.
//
//  1. A handler hits an error and calls respondError with a fallback status.
//  2. core.MapError picks the user message and code.
//  3. The technical error is logged with the request and run IDs.
//  4. The client gets an ErrorResponse; the status follows the code when the
//     code implies one.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvcombine/internal/core"
	"github.com/JonMunkholm/csvcombine/internal/logging"
)

// errRateLimited maps to REQ004.
var errRateLimited = errors.New("rate limit exceeded")

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form.
func respondError(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	msg := core.MapError(err)
	status := statusFor(msg.Code, fallback)

	logging.FromContext(r.Context()).Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor derives the HTTP status from an error code.
func statusFor(code string, fallback int) int {
	switch {
	case code == "REQ003":
		return http.StatusRequestEntityTooLarge
	case code == "REQ004":
		return http.StatusTooManyRequests
	case code == "REQ002":
		return http.StatusGatewayTimeout
	case code == "REQ006":
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, "CFG"), strings.HasPrefix(code, "FILE"):
		// an uploaded file is client input, even when "not found"
		return http.StatusBadRequest
	default:
		return fallback
	}
}
