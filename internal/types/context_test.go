package types

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")

	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID = %q, want %q", got, "req-123")
	}
}

func TestGetRequestIDAbsent(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty context = %q, want empty", got)
	}
}

func TestRequestIDKeyIsPrivate(t *testing.T) {
	// A plain string key must not collide with the typed context key.
	ctx := context.WithValue(context.Background(), "request_id", "spoofed") //nolint:staticcheck

	if got := GetRequestID(ctx); got != "" {
		t.Errorf("string-keyed value leaked through: %q", got)
	}
}
