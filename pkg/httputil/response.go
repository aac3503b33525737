package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/platinummonkey/userdeck/pkg/apperr"
)

// ErrorDetail is the client-facing error body. The cause chain behind an
// apperr.Error never appears here.
type ErrorDetail struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// ErrorEnvelope wraps ErrorDetail under a single "error" key
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates err into the error envelope and writes it.
// Untyped errors are folded into a generic 500 so internals never leak.
func WriteError(w http.ResponseWriter, path string, err error) {
	appErr := apperr.Coerce(err)
	WriteJSON(w, appErr.Status, ErrorEnvelope{
		Error: ErrorDetail{
			Message:   appErr.Message,
			Code:      string(appErr.Code),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Path:      path,
		},
	})
}

// EncodeError builds the envelope without writing it, for callers that
// manage their own response writer (the middleware chain).
func EncodeError(path string, appErr *apperr.Error, now time.Time) ErrorEnvelope {
	return ErrorEnvelope{
		Error: ErrorDetail{
			Message:   appErr.Message,
			Code:      string(appErr.Code),
			Timestamp: now.UTC().Format(time.RFC3339),
			Path:      path,
		},
	}
}
