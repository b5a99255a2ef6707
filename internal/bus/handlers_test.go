package bus

import (
	"math"
	"testing"
	"time"
)

func TestDirectionHandlerValidate(t *testing.T) {
	h := NewDirectionHandler()

	cases := []struct {
		name    string
		payload Payload
		valid   bool
	}{
		{"forward", Payload{"command": "forward"}, true},
		{"uppercase command", Payload{"command": "TURN_LEFT"}, true},
		{"padded command", Payload{"command": "  backward  "}, true},
		{"with intensities", Payload{"command": "forward", "intensity": 0.5, "angular_intensity": 0.1}, true},
		{"unknown command", Payload{"command": "levitate"}, false},
		{"missing command", Payload{}, false},
		{"negative intensity", Payload{"command": "forward", "intensity": -0.1}, false},
		{"bad timestamp", Payload{"command": "forward", "timestamp": "yesterday"}, false},
		{"good timestamp", Payload{"command": "forward", "timestamp": "2026-08-24T10:00:00Z"}, true},
		{"command wrong type", Payload{"command": 42}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := h.Validate(tc.payload)
			if result.Valid != tc.valid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", result.Valid, tc.valid, result.Errors)
			}
			if !tc.valid && len(result.Errors) == 0 {
				t.Fatal("invalid result carries no error messages")
			}
		})
	}
}

func TestDirectionHandlerNonFiniteIntensityWarns(t *testing.T) {
	h := NewDirectionHandler()

	result := h.Validate(Payload{"command": "forward", "intensity": math.NaN()})
	// NaN cannot survive the JSON round-trip, so decode itself fails.
	if result.Valid {
		t.Fatal("NaN intensity should not validate")
	}
}

func TestDirectionHandlerProcess(t *testing.T) {
	h := NewDirectionHandler()

	out, err := h.Process(Payload{"command": " FORWARD ", "intensity": 0.8})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out["command"] != "forward" {
		t.Errorf("command = %v, want forward", out["command"])
	}
	if out["intensity"] != 0.8 {
		t.Errorf("intensity = %v, want 0.8", out["intensity"])
	}
	if _, ok := out["angular_intensity"]; ok {
		t.Error("angular_intensity should be absent when not supplied")
	}

	ts, ok := out["timestamp"].(string)
	if !ok {
		t.Fatal("timestamp not filled in")
	}
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Errorf("filled timestamp %q not RFC3339: %v", ts, err)
	}
}

func TestDirectionHandlerDefaultsIntensityToZero(t *testing.T) {
	h := NewDirectionHandler()

	out, err := h.Process(Payload{"command": "stationary"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out["intensity"] != 0.0 {
		t.Errorf("intensity = %v, want 0", out["intensity"])
	}
}

func TestAngleHandlerValidate(t *testing.T) {
	h := NewAngleHandler()

	cases := []struct {
		name    string
		payload Payload
		valid   bool
	}{
		{"zero", Payload{"angle": 0.0}, true},
		{"positive", Payload{"angle": 350.0}, true},
		{"negative in range", Payload{"angle": -10.0}, true},
		{"lower boundary", Payload{"angle": -180.0}, true},
		{"upper boundary", Payload{"angle": 360.0}, true},
		{"below range", Payload{"angle": -180.01}, false},
		{"above range", Payload{"angle": 360.01}, false},
		{"missing angle", Payload{}, false},
		{"angle wrong type", Payload{"angle": "north"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := h.Validate(tc.payload)
			if result.Valid != tc.valid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", result.Valid, tc.valid, result.Errors)
			}
		})
	}
}

func TestAngleHandlerProcessKeepsRawAngle(t *testing.T) {
	h := NewAngleHandler()

	out, err := h.Process(Payload{"angle": -10.0, "timestamp": "2026-08-24T10:00:00Z"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	// Wrapping is the resolver's job; the handler passes the value through.
	if out["angle"] != -10.0 {
		t.Errorf("angle = %v, want -10", out["angle"])
	}
	if out["timestamp"] != "2026-08-24T10:00:00Z" {
		t.Errorf("supplied timestamp replaced: %v", out["timestamp"])
	}
}

func TestAIAlertHandlerValidate(t *testing.T) {
	h := NewAIAlertHandler()

	cases := []struct {
		name    string
		payload Payload
		valid   bool
	}{
		{"minimal", Payload{"alert_type": "person_detected", "severity": "high"}, true},
		{"uppercase severity", Payload{"alert_type": "intrusion", "severity": "CRITICAL"}, true},
		{"with metadata", Payload{"alert_type": "person", "severity": "low", "metadata": map[string]interface{}{"confidence": 0.93}}, true},
		{"unknown severity", Payload{"alert_type": "person", "severity": "urgent"}, false},
		{"missing alert type", Payload{"severity": "low"}, false},
		{"missing severity", Payload{"alert_type": "person"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := h.Validate(tc.payload)
			if result.Valid != tc.valid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", result.Valid, tc.valid, result.Errors)
			}
		})
	}
}

func TestAIAlertHandlerProcess(t *testing.T) {
	h := NewAIAlertHandler()

	out, err := h.Process(Payload{
		"alert_type": " intrusion ",
		"severity":   "HIGH",
		"metadata":   map[string]interface{}{"zone": "gate"},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out["alert_type"] != "intrusion" {
		t.Errorf("alert_type = %v, want intrusion", out["alert_type"])
	}
	if out["severity"] != "high" {
		t.Errorf("severity = %v, want high", out["severity"])
	}
	meta, ok := out["metadata"].(map[string]interface{})
	if !ok || meta["zone"] != "gate" {
		t.Errorf("metadata not passed through: %v", out["metadata"])
	}
}
