package bus

import (
	"time"

	"watchtower/pkg/models"
)

// MessageType identifies a family of events flowing through the broker.
type MessageType string

// Built-in message types registered at broker construction.
const (
	TypeDirectionResult MessageType = "direction_result"
	TypeAngleValue      MessageType = "angle_value"
	TypeAIAlert         MessageType = "ai_alert"
)

// Payload is an opaque JSON-compatible document. Handlers impose schema; the
// broker never inspects it.
type Payload map[string]interface{}

// ValidationResult reports the outcome of handler validation. Any entry in
// Errors forces Valid to false.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// AddError records a validation error and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// AddWarning records a non-fatal validation note.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// MessageData is the normalized in-flight message. It is created once the
// handler pipeline accepts a payload and is immutable afterwards.
type MessageData struct {
	MessageID    string      `json:"message_id"`
	Type         MessageType `json:"type"`
	Data         Payload     `json:"data"`
	Timestamp    time.Time   `json:"timestamp"`
	ProducerHint string      `json:"producer_hint,omitempty"`
}

// ProcessedMessage is the validated, camera-resolved event delivered to
// subscribers.
type ProcessedMessage struct {
	Original         *MessageData    `json:"original"`
	Validated        bool            `json:"validated"`
	Cameras          []models.Camera `json:"cameras"`
	ProcessingTimeMs float64         `json:"processing_time_ms"`
	Errors           []string        `json:"errors,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// Callback receives a processed message during fan-out.
type Callback func(*ProcessedMessage)

// SubscriptionInfo records one subscriber for one message type. The broker
// owns the record; callers keep the id for unsubscribing.
type SubscriptionInfo struct {
	SubscriptionID string      `json:"subscription_id"`
	Type           MessageType `json:"type"`
	Callback       Callback    `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
}

// PublishResult summarizes one publish call. Success reflects validation and
// processing; subscriber failures are counted but do not flip it.
type PublishResult struct {
	Success             bool     `json:"success"`
	MessageID           string   `json:"message_id"`
	SubscribersNotified int      `json:"subscribers_notified"`
	SubscribersFailed   int      `json:"subscribers_failed"`
	Errors              []string `json:"errors,omitempty"`
	DurationMs          float64  `json:"duration_ms"`
}
