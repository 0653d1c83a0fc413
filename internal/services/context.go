package services

import "context"

type contextKey string

const (
	subtitleIDKey contextKey = "subtitle_id"
	requestIDKey  contextKey = "request_id"
)

// WithSubtitleID annotates context with the subtitle file identifier.
func WithSubtitleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, subtitleIDKey, id)
}

// SubtitleIDFromContext returns the subtitle identifier if present.
func SubtitleIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(subtitleIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
