package config

import (
	"testing"
	"time"
)

func TestPortValidation(t *testing.T) {
	t.Setenv("TEST_PORT", "8080")
	if p, err := Port("TEST_PORT", "1"); err != nil || p != "8080" {
		t.Fatalf("expected 8080, got %q (%v)", p, err)
	}
	t.Setenv("TEST_PORT", "99999")
	if _, err := Port("TEST_PORT", "1"); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "")
	if _, err := RequiredString("TEST_REQUIRED"); err == nil {
		t.Fatal("expected error for missing value")
	}
}

func TestDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("TEST_DURATION", "90")
	if d := Duration("TEST_DURATION", time.Second); d != 90*time.Second {
		t.Fatalf("expected 90s, got %s", d)
	}
	t.Setenv("TEST_DURATION", "2m")
	if d := Duration("TEST_DURATION", time.Second); d != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", d)
	}
	t.Setenv("TEST_DURATION", "soon")
	if d := Duration("TEST_DURATION", time.Second); d != time.Second {
		t.Fatalf("expected fallback, got %s", d)
	}
}

func TestListAndBool(t *testing.T) {
	t.Setenv("TEST_LIST", " a@example.com, ,b@example.com ")
	got := List("TEST_LIST")
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Fatalf("unexpected list %v", got)
	}
	t.Setenv("TEST_BOOL", "yes")
	if !Bool("TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("TEST_BOOL", "maybe")
	if Bool("TEST_BOOL", false) {
		t.Fatal("expected fallback false")
	}
}
