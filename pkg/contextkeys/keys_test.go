package contextkeys

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID() on empty context = %q", got)
	}

	ctx = WithRequestID(ctx, "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID() = %q, want req-1", got)
	}
}

func TestPassID(t *testing.T) {
	ctx := WithPassID(context.Background(), "pass-1")
	if got := GetPassID(ctx); got != "pass-1" {
		t.Errorf("GetPassID() = %q, want pass-1", got)
	}

	// Keys do not collide with plain strings
	ctx = context.WithValue(context.Background(), "pass_id", "other")
	if got := GetPassID(ctx); got != "" {
		t.Errorf("GetPassID() read a string-keyed value: %q", got)
	}
}
