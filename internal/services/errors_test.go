package services_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"subselect/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrStorage, "store", "put", "write failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"store", "put", "write failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutMarkerDefaultsToUpstream(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{services.InvalidArgument("cache", "lookup", "empty id"), http.StatusBadRequest},
		{services.Wrap(services.ErrAuthRequired, "gateway", "fetch", "", nil), http.StatusUnauthorized},
		{services.Wrap(services.ErrNotFound, "gateway", "fetch", "", nil), http.StatusNotFound},
		{services.Wrap(services.ErrNetwork, "gateway", "fetch", "", nil), http.StatusBadGateway},
		{services.Wrap(services.ErrUpstream, "gateway", "fetch", "", nil), http.StatusBadGateway},
		{services.Wrap(services.ErrStorageUnavailable, "store", "open", "", nil), http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := services.HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestKindLabels(t *testing.T) {
	if kind := services.Kind(services.Wrap(services.ErrAuthRequired, "a", "b", "c", nil)); kind != "auth_required" {
		t.Fatalf("unexpected kind %q", kind)
	}
	if kind := services.Kind(errors.New("x")); kind != "internal" {
		t.Fatalf("unexpected kind %q", kind)
	}
	if kind := services.Kind(nil); kind != "" {
		t.Fatalf("expected empty kind for nil, got %q", kind)
	}
}
