package config

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("CS_TEST_INT", "42")
	if got := Int("CS_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("CS_TEST_INT", "-3")
	if got := Int("CS_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback for negative, got %d", got)
	}
	t.Setenv("CS_TEST_INT", "nope")
	if got := Int("CS_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback for garbage, got %d", got)
	}
}

func TestNonNegativeInt(t *testing.T) {
	t.Setenv("CS_TEST_NN", "0")
	if got := NonNegativeInt("CS_TEST_NN", 5); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestDurations(t *testing.T) {
	t.Setenv("CS_TEST_MS", "300")
	if got := Millis("CS_TEST_MS", time.Second); got != 300*time.Millisecond {
		t.Fatalf("expected 300ms, got %s", got)
	}
	if got := Seconds("CS_TEST_MISSING", 60*time.Second); got != time.Minute {
		t.Fatalf("expected fallback 1m, got %s", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("CS_TEST_PORT", "70000")
	if _, err := Port("CS_TEST_PORT", "8090"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
	t.Setenv("CS_TEST_PORT", "")
	p, err := Port("CS_TEST_PORT", "8090")
	if err != nil || p != "8090" {
		t.Fatalf("expected fallback port, got %q (%v)", p, err)
	}
}

func TestList(t *testing.T) {
	t.Setenv("CS_TEST_LIST", " a, ,b ,c")
	got := List("CS_TEST_LIST", "")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("CS_TEST_BOOL", "Yes")
	if !Bool("CS_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	if Bool("CS_TEST_BOOL_MISSING", false) {
		t.Fatalf("expected fallback false")
	}
}
