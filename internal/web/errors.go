package web

// errors.go turns handler errors into JSON responses.
//
// Every error is logged with its technical cause and the request ID, then
// mapped through core.MapError so clients see a message, an action and a code.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/nutriclean/internal/core"
	"github.com/JonMunkholm/nutriclean/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
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

// respondBadRequest reports a malformed request. These are client mistakes
// rather than pipeline errors, so detail is returned as is.
func respondBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	logging.FromContext(r.Context()).Warn("bad request", "path", r.URL.Path, "detail", detail)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   detail,
		Message: detail,
		Code:    "REQ001",
	})
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
