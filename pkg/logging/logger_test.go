package logging

import "testing"

func TestNewLoggerWithService(t *testing.T) {
	logger := NewLoggerWithService("watchtower")
	if logger == nil {
		t.Fatal("expected logger to be created")
	}
}

func TestWithComponent(t *testing.T) {
	entry := WithComponent(NewLogger(), "bus")
	if entry.Data["component"] != "bus" {
		t.Fatalf("expected component field, got %v", entry.Data)
	}
}
