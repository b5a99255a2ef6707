package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Movement commands accepted by the direction handler.
const (
	CommandForward    = "forward"
	CommandBackward   = "backward"
	CommandTurnLeft   = "turn_left"
	CommandTurnRight  = "turn_right"
	CommandStationary = "stationary"
)

// Alert severities accepted by the AI alert handler.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// decodePayload round-trips an opaque payload into a typed struct so struct
// tags drive validation, mirroring JSON wire semantics.
func decodePayload(payload Payload, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payload is not JSON-compatible: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("payload shape mismatch: %w", err)
	}
	return nil
}

func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("field %s failed rule %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return msgs
	}
	return []string{err.Error()}
}

func checkTimestamp(result *ValidationResult, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		result.AddError(fmt.Sprintf("timestamp %q is not ISO8601", value))
	}
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// clampIntensity forces non-finite values to zero and leaves the rest alone.
func clampIntensity(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ---------------------------------------------------------------------------
// direction_result
// ---------------------------------------------------------------------------

type directionPayload struct {
	Command          string   `json:"command" validate:"required,oneof=forward backward turn_left turn_right stationary"`
	Intensity        *float64 `json:"intensity,omitempty" validate:"omitempty,gte=0"`
	AngularIntensity *float64 `json:"angular_intensity,omitempty" validate:"omitempty,gte=0"`
	Timestamp        string   `json:"timestamp,omitempty"`
}

// DirectionHandler validates and normalizes motion-direction commands coming
// from the IMU classifier.
type DirectionHandler struct {
	validate *validator.Validate
}

// NewDirectionHandler creates the handler for direction_result messages.
func NewDirectionHandler() *DirectionHandler {
	return &DirectionHandler{validate: validator.New()}
}

func (h *DirectionHandler) TypeName() MessageType { return TypeDirectionResult }

func (h *DirectionHandler) Validate(payload Payload) ValidationResult {
	result := ValidationResult{Valid: true}

	var p directionPayload
	if err := decodePayload(payload, &p); err != nil {
		result.AddError(err.Error())
		return result
	}

	// Commands are matched case-insensitively; canonicalization happens in
	// Process.
	p.Command = strings.ToLower(strings.TrimSpace(p.Command))

	if err := h.validate.Struct(&p); err != nil {
		for _, msg := range validationMessages(err) {
			result.AddError(msg)
		}
	}
	if p.Intensity != nil && (math.IsNaN(*p.Intensity) || math.IsInf(*p.Intensity, 0)) {
		result.AddWarning("intensity is not finite; it will be clamped to 0")
	}
	checkTimestamp(&result, p.Timestamp)

	return result
}

func (h *DirectionHandler) Process(payload Payload) (Payload, error) {
	var p directionPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}

	out := Payload{
		"command": strings.ToLower(strings.TrimSpace(p.Command)),
	}

	intensity := 0.0
	if p.Intensity != nil {
		intensity = clampIntensity(*p.Intensity)
	}
	out["intensity"] = intensity

	if p.AngularIntensity != nil {
		out["angular_intensity"] = clampIntensity(*p.AngularIntensity)
	}

	if p.Timestamp != "" {
		out["timestamp"] = p.Timestamp
	} else {
		out["timestamp"] = nowTimestamp()
	}

	return out, nil
}

// ---------------------------------------------------------------------------
// angle_value
// ---------------------------------------------------------------------------

type anglePayload struct {
	Angle     *float64 `json:"angle" validate:"required"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Sensor angles arrive in [-180, 360]; wrapping to [0, 360) is the
// resolver's job, not the handler's.
const (
	minSensorAngle = -180.0
	maxSensorAngle = 360.0
)

// AngleHandler validates sensor angle readings.
type AngleHandler struct {
	validate *validator.Validate
}

// NewAngleHandler creates the handler for angle_value messages.
func NewAngleHandler() *AngleHandler {
	return &AngleHandler{validate: validator.New()}
}

func (h *AngleHandler) TypeName() MessageType { return TypeAngleValue }

func (h *AngleHandler) Validate(payload Payload) ValidationResult {
	result := ValidationResult{Valid: true}

	var p anglePayload
	if err := decodePayload(payload, &p); err != nil {
		result.AddError(err.Error())
		return result
	}

	if err := h.validate.Struct(&p); err != nil {
		for _, msg := range validationMessages(err) {
			result.AddError(msg)
		}
		return result
	}

	angle := *p.Angle
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		result.AddError("angle is not a finite number")
	} else if angle < minSensorAngle || angle > maxSensorAngle {
		result.AddError(fmt.Sprintf("angle %.2f out of range [%.1f, %.1f]", angle, minSensorAngle, maxSensorAngle))
	}
	checkTimestamp(&result, p.Timestamp)

	return result
}

func (h *AngleHandler) Process(payload Payload) (Payload, error) {
	var p anglePayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Angle == nil {
		return nil, fmt.Errorf("angle is required")
	}

	out := Payload{"angle": *p.Angle}
	if p.Timestamp != "" {
		out["timestamp"] = p.Timestamp
	} else {
		out["timestamp"] = nowTimestamp()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// ai_alert
// ---------------------------------------------------------------------------

type aiAlertPayload struct {
	AlertType string                 `json:"alert_type" validate:"required"`
	Severity  string                 `json:"severity" validate:"required,oneof=low medium high critical"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AIAlertHandler validates alerts produced by the vision model.
type AIAlertHandler struct {
	validate *validator.Validate
}

// NewAIAlertHandler creates the handler for ai_alert messages.
func NewAIAlertHandler() *AIAlertHandler {
	return &AIAlertHandler{validate: validator.New()}
}

func (h *AIAlertHandler) TypeName() MessageType { return TypeAIAlert }

func (h *AIAlertHandler) Validate(payload Payload) ValidationResult {
	result := ValidationResult{Valid: true}

	var p aiAlertPayload
	if err := decodePayload(payload, &p); err != nil {
		result.AddError(err.Error())
		return result
	}

	p.AlertType = strings.TrimSpace(p.AlertType)
	p.Severity = strings.ToLower(strings.TrimSpace(p.Severity))

	if err := h.validate.Struct(&p); err != nil {
		for _, msg := range validationMessages(err) {
			result.AddError(msg)
		}
	}
	checkTimestamp(&result, p.Timestamp)

	return result
}

func (h *AIAlertHandler) Process(payload Payload) (Payload, error) {
	var p aiAlertPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}

	out := Payload{
		"alert_type": strings.TrimSpace(p.AlertType),
		"severity":   strings.ToLower(strings.TrimSpace(p.Severity)),
	}
	if p.Metadata != nil {
		out["metadata"] = p.Metadata
	}
	if p.Timestamp != "" {
		out["timestamp"] = p.Timestamp
	} else {
		out["timestamp"] = nowTimestamp()
	}
	return out, nil
}
