package storage_test

import (
	"errors"
	"fmt"
	"testing"

	"pkt.systems/statevault/internal/storage"
)

func TestErrorStringIncludesCodeAndMessage(t *testing.T) {
	t.Parallel()

	err := storage.NewError(storage.CodeThrottled, "slow down %s", "please")
	if got, want := err.Error(), "backend error 429: slow down please"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestAsErrorUnwrapsThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := storage.NewError(storage.CodeUnavailable, "backend down")
	wrapped := fmt.Errorf("attempt 3: %w", inner)

	be, ok := storage.AsError(wrapped)
	if !ok {
		t.Fatal("expected wrapped backend error to unwrap")
	}
	if be.Code != storage.CodeUnavailable {
		t.Fatalf("unexpected code %d", be.Code)
	}
	if _, ok := storage.AsError(errors.New("plain")); ok {
		t.Fatal("plain error must not unwrap to *storage.Error")
	}
}

func TestIsTransientClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code      int
		transient bool
	}{
		{storage.CodeThrottled, true},
		{storage.CodeInternal, true},
		{storage.CodeUnavailable, true},
		{storage.CodeTimeout, true},
		{storage.CodeInvalid, false},
		{storage.CodeForbidden, false},
		{storage.CodeTooLarge, false},
	}
	for _, tc := range cases {
		if got := storage.IsTransient(storage.NewError(tc.code, "x")); got != tc.transient {
			t.Fatalf("IsTransient(code=%d) = %v, want %v", tc.code, got, tc.transient)
		}
	}
	if storage.IsTransient(errors.New("not a backend error")) {
		t.Fatal("non-backend errors are never transient")
	}
}
