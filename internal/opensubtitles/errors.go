package opensubtitles

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"subselect/internal/services"
)

// StatusError reports an HTTP error status from the API.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("opensubtitles: %s failed (%d %s)", e.Operation, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap exposes the services marker for the status so errors.Is works.
func (e *StatusError) Unwrap() error {
	return markerForStatus(e.StatusCode)
}

func markerForStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return services.ErrAuthRequired
	case http.StatusNotFound:
		return services.ErrNotFound
	default:
		return services.ErrUpstream
	}
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func transportError(op string, err error) error {
	return services.Wrap(services.ErrNetwork, "opensubtitles", op, "request failed", err)
}

func decodeError(op string, err error) error {
	return services.Wrap(services.ErrUpstream, "opensubtitles", op, "decode response", err)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
