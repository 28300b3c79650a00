package server

import (
	"encoding/json"
	"errors"
	"net/http"

	cdperrors "cdpvault/core/errors"
)

type problem struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
}

// errBadRequest marks malformed input rejected before it reaches the engine.
var errBadRequest = errors.New("bad request")

// statusFor maps an engine error to an HTTP status. Transient rejections
// are 409, or 503 when no price is available.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, cdperrors.ErrUnrecognizedParam),
		errors.Is(err, cdperrors.ErrInvalidParam):
		return http.StatusBadRequest
	case errors.Is(err, cdperrors.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, cdperrors.ErrIlkNotInitialized),
		errors.Is(err, cdperrors.ErrNotRunning):
		return http.StatusNotFound
	case errors.Is(err, cdperrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	case cdperrors.IsTransient(err):
		return http.StatusConflict
	case cdperrors.Code(err) != "internal":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := cdperrors.Code(err)
	if errors.Is(err, errBadRequest) {
		code = "bad_request"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeProblem(w, r, status, code, msg, cdperrors.IsTransient(err))
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, msg string, retryable bool) {
	writeJSON(w, status, problem{Error: msg, Code: code, Retryable: retryable, RequestID: RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
