package environment_test

import (
	"testing"
	"time"

	"github.com/bdobrica/Hikyaku/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if got := environment.StringOr("TEST_STRING", "default"); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := environment.StringOr("TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("expected %q, got %q", "default", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value")
	v, err := environment.RequiredString("TEST_REQUIRED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "value" {
		t.Errorf("expected %q, got %q", "value", v)
	}

	_, err = environment.RequiredString("TEST_REQUIRED_MISSING")
	if err == nil {
		t.Error("expected error for missing variable, got nil")
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !environment.BoolOr("TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("TEST_BOOL", "0")
	if environment.BoolOr("TEST_BOOL", true) {
		t.Error("expected false")
	}
	if !environment.BoolOr("TEST_BOOL_MISSING", true) {
		t.Error("expected default true")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := environment.IntOr("TEST_INT", 0); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := environment.IntOr("TEST_INT_MISSING", 99); got != 99 {
		t.Errorf("expected 99, got %d", got)
	}
	t.Setenv("TEST_INT_BAD", "notanint")
	if got := environment.IntOr("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("expected default 7 for bad value, got %d", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("TEST_DUR", "30s")
	if got := environment.DurationOr("TEST_DUR", time.Minute); got != 30*time.Second {
		t.Errorf("expected 30s, got %v", got)
	}
	if got := environment.DurationOr("TEST_DUR_MISSING", time.Minute); got != time.Minute {
		t.Errorf("expected 1m, got %v", got)
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b , c")
	got := environment.StringSliceOr("TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected result: %v", got)
	}
	fallback := []string{"x"}
	if got := environment.StringSliceOr("TEST_SLICE_MISSING", fallback); len(got) != 1 || got[0] != "x" {
		t.Errorf("expected fallback, got %v", got)
	}
}

func TestInt64SliceOr(t *testing.T) {
	t.Setenv("TEST_IDS", "123456789, 987654321")
	got, err := environment.Int64SliceOr("TEST_IDS", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != 123456789 || got[1] != 987654321 {
		t.Errorf("unexpected result: %v", got)
	}

	fallback := []int64{1}
	got, err = environment.Int64SliceOr("TEST_IDS_MISSING", fallback)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("expected fallback, got %v", got)
	}
}

func TestInt64SliceOr_Invalid(t *testing.T) {
	t.Setenv("TEST_IDS_BAD", "123,abc")
	if _, err := environment.Int64SliceOr("TEST_IDS_BAD", nil); err == nil {
		t.Error("expected error for non-numeric element, got nil")
	}
}

func TestPairsOr(t *testing.T) {
	t.Setenv("TEST_PAIRS", "123456789:alice, 987654321:bob")
	got, err := environment.PairsOr("TEST_PAIRS", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(got))
	}
	if got[123456789] != "alice" {
		t.Errorf("expected alice, got %q", got[123456789])
	}
	if got[987654321] != "bob" {
		t.Errorf("expected bob, got %q", got[987654321])
	}
}

func TestPairsOr_Invalid(t *testing.T) {
	for _, v := range []string{"noseparator", "notanumber:alice", "123:"} {
		t.Setenv("TEST_PAIRS_BAD", v)
		if _, err := environment.PairsOr("TEST_PAIRS_BAD", nil); err == nil {
			t.Errorf("expected error for %q, got nil", v)
		}
	}
}

func TestPairsOr_Missing(t *testing.T) {
	fallback := map[int64]string{42: "carol"}
	got, err := environment.PairsOr("TEST_PAIRS_MISSING", fallback)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[42] != "carol" {
		t.Errorf("expected fallback map, got %v", got)
	}
}
