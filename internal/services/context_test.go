package services_test

import (
	"context"
	"testing"

	"subselect/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSubtitleID(ctx, "8123456")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SubtitleIDFromContext(ctx); !ok || id != "8123456" {
		t.Fatalf("unexpected subtitle id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSubtitleID(ctx, "")
	ctx = services.WithRequestID(ctx, "")
	if _, ok := services.SubtitleIDFromContext(ctx); ok {
		t.Fatal("expected no subtitle id")
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id")
	}
}
