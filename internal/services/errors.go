package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorage            = errors.New("storage error")
	ErrAuthRequired       = errors.New("authentication required")
	ErrNotFound           = errors.New("not found")
	ErrNetwork            = errors.New("network error")
	ErrUpstream           = errors.New("upstream error")
	ErrConfiguration      = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrUpstream
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// InvalidArgument is shorthand for a Wrap with ErrInvalidArgument and no cause.
func InvalidArgument(component, operation, message string) error {
	return Wrap(ErrInvalidArgument, component, operation, message, nil)
}

// HTTPStatus maps an error to the HTTP status the API should report.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short classification label suitable for logs and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrAuthRequired):
		return "auth_required"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
