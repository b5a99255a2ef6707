package config

import (
	"testing"
	"time"
)

func TestGetEnvDefault(t *testing.T) {
	if got := GetEnv("WATCHTOWER_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("WATCHTOWER_TEST_SET", "value")
	if got := GetEnv("WATCHTOWER_TEST_SET", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("WATCHTOWER_TEST_INT", "42")
	if got := GetEnvInt("WATCHTOWER_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("WATCHTOWER_TEST_INT", "not-a-number")
	if got := GetEnvInt("WATCHTOWER_TEST_INT", 7); got != 7 {
		t.Fatalf("expected default on parse failure, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("WATCHTOWER_TEST_BOOL", "true")
	if !GetEnvBool("WATCHTOWER_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	if GetEnvBool("WATCHTOWER_TEST_BOOL_UNSET", false) {
		t.Fatal("expected default false")
	}
}

func TestGetEnvMillis(t *testing.T) {
	t.Setenv("WATCHTOWER_TEST_MS", "250")
	if got := GetEnvMillis("WATCHTOWER_TEST_MS", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
	if got := GetEnvMillis("WATCHTOWER_TEST_MS_UNSET", time.Second); got != time.Second {
		t.Fatalf("expected default 1s, got %v", got)
	}
	t.Setenv("WATCHTOWER_TEST_MS", "-5")
	if got := GetEnvMillis("WATCHTOWER_TEST_MS", time.Second); got != time.Second {
		t.Fatalf("expected default on negative value, got %v", got)
	}
}
