package stream

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"watchtower/internal/bus"
	"watchtower/internal/repository"
	"watchtower/internal/resolver"
	"watchtower/pkg/logging"
	"watchtower/pkg/models"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newRecordingSink() *recordingSink {
	return &recordingSink{payloads: make(map[string][][]byte)}
}

func (s *recordingSink) Broadcast(channel string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[channel] = append(s.payloads[channel], payload)
}

func (s *recordingSink) received(channel string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[channel]
}

type emptyRepo struct{}

func (emptyRepo) ListCamerasByDirection(ctx context.Context, direction string) ([]models.Camera, error) {
	return []models.Camera{}, nil
}
func (emptyRepo) ListEnabledAngleRanges(ctx context.Context) ([]models.AngleRange, error) {
	return []models.AngleRange{}, nil
}
func (emptyRepo) GetCameraByID(ctx context.Context, id string) (*models.Camera, error) {
	return nil, repository.ErrNotFound
}

func quietLogger() logging.Logger {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)
	return logger
}

func processedMsg(t bus.MessageType, data bus.Payload, cameras []models.Camera) *bus.ProcessedMessage {
	return &bus.ProcessedMessage{
		Original: &bus.MessageData{
			MessageID: "msg-1",
			Type:      t,
			Data:      data,
			Timestamp: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		},
		Validated: true,
		Cameras:   cameras,
	}
}

func TestForwardEmitsEnvelopeOnTypeChannel(t *testing.T) {
	sink := newRecordingSink()
	adapter := New(sink, nil, quietLogger())

	cams := []models.Camera{{ID: "cam-1", Name: "atrium"}}
	adapter.forward(processedMsg(bus.TypeDirectionResult, bus.Payload{"command": "forward", "intensity": 0.5}, cams))

	got := sink.received("direction_result")
	if len(got) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(got))
	}

	var env Envelope
	if err := json.Unmarshal(got[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != "direction_result" || env.MessageID != "msg-1" {
		t.Errorf("envelope header = %+v", env)
	}
	if env.Data["command"] != "forward" {
		t.Errorf("data = %v", env.Data)
	}
	if len(env.Cameras) != 1 || env.Cameras[0].ID != "cam-1" {
		t.Errorf("cameras = %v", env.Cameras)
	}
	if env.Priority != priorityDirection {
		t.Errorf("priority = %d, want %d", env.Priority, priorityDirection)
	}
	if env.RemainingTime != defaultWindowSecs {
		t.Errorf("remaining_time = %d, want %d", env.RemainingTime, defaultWindowSecs)
	}
}

func TestEnvelopePriorities(t *testing.T) {
	cases := []struct {
		name          string
		msgType       bus.MessageType
		data          bus.Payload
		wantPriority  int
		wantRemaining int
	}{
		{"angle", bus.TypeAngleValue, bus.Payload{"angle": 90.0}, priorityAngle, defaultWindowSecs},
		{"direction", bus.TypeDirectionResult, bus.Payload{"command": "forward"}, priorityDirection, defaultWindowSecs},
		{"low alert", bus.TypeAIAlert, bus.Payload{"severity": "low"}, 1, defaultWindowSecs},
		{"high alert", bus.TypeAIAlert, bus.Payload{"severity": "high"}, 3, defaultWindowSecs},
		{"critical alert", bus.TypeAIAlert, bus.Payload{"severity": "critical"}, 4, criticalWindowSecs},
		{"unknown severity", bus.TypeAIAlert, bus.Payload{}, 2, defaultWindowSecs},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := buildEnvelope(processedMsg(tc.msgType, tc.data, nil))
			if env.Priority != tc.wantPriority {
				t.Errorf("priority = %d, want %d", env.Priority, tc.wantPriority)
			}
			if env.RemainingTime != tc.wantRemaining {
				t.Errorf("remaining_time = %d, want %d", env.RemainingTime, tc.wantRemaining)
			}
		})
	}
}

func TestEnvelopeNilCamerasBecomeEmptyList(t *testing.T) {
	env := buildEnvelope(processedMsg(bus.TypeAngleValue, bus.Payload{"angle": 1.0}, nil))
	if env.Cameras == nil {
		t.Fatal("cameras should be an empty slice, not nil")
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc["cameras"].([]interface{}); !ok {
		t.Errorf("cameras serialized as %T, want JSON array", doc["cameras"])
	}
}

func TestPublishStateEmitsSnapshot(t *testing.T) {
	sink := newRecordingSink()
	res := resolver.New(emptyRepo{}, quietLogger(), resolver.DefaultOptions())
	adapter := New(sink, res, quietLogger())

	adapter.PublishState(context.Background())

	got := sink.received("current_state")
	if len(got) != 1 {
		t.Fatalf("got %d state envelopes, want 1", len(got))
	}

	var env StateEnvelope
	if err := json.Unmarshal(got[0], &env); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if env.Type != "current_state" {
		t.Errorf("type = %s", env.Type)
	}
	if len(env.Data.Directions) != len(models.DirectionFamilies) {
		t.Errorf("directions = %v", env.Data.Directions)
	}
	if env.Data.AngleRanges == nil {
		t.Error("angle_ranges missing")
	}
}

func TestStartSubscribesToEveryTypeAndStopDetaches(t *testing.T) {
	broker, err := bus.Init(bus.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("broker init: %v", err)
	}

	sink := newRecordingSink()
	adapter := New(sink, nil, quietLogger())

	if err := adapter.Start(context.Background(), broker); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := broker.SubscriberCount(); got != 3 {
		t.Fatalf("subscriber count = %d, want 3", got)
	}

	result := broker.Publish(context.Background(), bus.TypeAngleValue, bus.Payload{"angle": 45.0})
	if !result.Success {
		t.Fatalf("publish failed: %v", result.Errors)
	}
	if got := sink.received("angle_value"); len(got) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(got))
	}

	adapter.Stop(broker)
	if got := broker.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count after stop = %d, want 0", got)
	}
}
