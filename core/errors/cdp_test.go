package errors

import (
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrUnavailable, true},
		{fmt.Errorf("spot: poke: %w", ErrUnavailable), true},
		{fmt.Errorf("dog: bark: %w", ErrLiquidationLimit), true},
		{fmt.Errorf("clip: take: %w", ErrStale), true},
		{ErrUnsafe, false},
		{fmt.Errorf("vat: frob: %w", ErrNotAuthorized), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestCode(t *testing.T) {
	if got := Code(nil); got != "ok" {
		t.Fatalf("Code(nil) = %s", got)
	}
	if got := Code(fmt.Errorf("dog: bark: %w", ErrNotUnsafe)); got != "not_unsafe" {
		t.Fatalf("unexpected code %s", got)
	}
	if got := Code(fmt.Errorf("boom")); got != "internal" {
		t.Fatalf("unexpected code %s", got)
	}
	if len(codes) != 25 {
		t.Fatalf("every sentinel needs a code, have %d", len(codes))
	}
}
