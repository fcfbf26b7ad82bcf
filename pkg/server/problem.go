package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/harrisonrobin/projectreg/pkg/lark"
	"github.com/harrisonrobin/projectreg/pkg/session"
	"github.com/harrisonrobin/projectreg/pkg/submit"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`

	// Result reports partial progress of a failed submission.
	Result *submit.Result `json:"result,omitempty"`
}

var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusBadRequest:          {"https://projectreg.dev/errors/bad-request", "Bad Request"},
	http.StatusUnauthorized:        {"https://projectreg.dev/errors/unauthorized", "Unauthorized"},
	http.StatusNotFound:            {"https://projectreg.dev/errors/not-found", "Not Found"},
	http.StatusConflict:            {"https://projectreg.dev/errors/declined", "Confirmation Required"},
	http.StatusUnprocessableEntity: {"https://projectreg.dev/errors/configuration", "Configuration Error"},
	http.StatusBadGateway:          {"https://projectreg.dev/errors/upstream", "Lark Error"},
	http.StatusGatewayTimeout:      {"https://projectreg.dev/errors/timeout", "Upstream Timeout"},
	http.StatusInternalServerError: {"https://projectreg.dev/errors/internal-error", "Internal Server Error"},
}

// WriteProblem writes a problem response for status.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblem(w, r, status, detail, nil)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string, result *submit.Result) {
	pt, ok := problemTypes[status]
	if !ok {
		pt.typeURI = "https://projectreg.dev/errors/unknown"
		pt.title = http.StatusText(status)
	}
	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Result:   result,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var (
		cfgErr  *submit.ConfigurationError
		authErr *lark.AuthError
		apiErr  *lark.APIError
	)
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, submit.ErrDeclined):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &authErr), errors.As(err, &apiErr), errors.Is(err, submit.ErrMissingIdentifier):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteError writes err as a problem. Internal errors are logged and not
// exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorResult(w, r, err, nil)
}

func writeErrorResult(w http.ResponseWriter, r *http.Request, err error, result *submit.Result) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		detail = "internal error"
	}
	writeProblem(w, r, status, detail, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
