package stream

import (
	"context"
	"encoding/json"
	"time"

	"watchtower/internal/bus"
	"watchtower/internal/resolver"
	"watchtower/pkg/logging"
	"watchtower/pkg/models"
)

// Sink receives preserialized envelopes keyed by channel name. The hub
// implements it; tests substitute a recorder.
type Sink interface {
	Broadcast(channel string, payload []byte)
}

// Envelope is the wire document pushed to streaming clients for every
// delivered event.
type Envelope struct {
	Type          string          `json:"type"`
	MessageID     string          `json:"message_id"`
	Timestamp     string          `json:"timestamp"`
	Data          bus.Payload     `json:"data"`
	Cameras       []models.Camera `json:"cameras"`
	Priority      int             `json:"priority"`
	RemainingTime int             `json:"remaining_time"`
}

// StateEnvelope is the routing snapshot document sent on channel
// "current_state" when the adapter starts or an admin forces a refresh.
type StateEnvelope struct {
	Type      string                `json:"type"`
	Timestamp string                `json:"timestamp"`
	Data      resolver.CurrentState `json:"data"`
}

// Display priorities and activation windows in seconds. Alerts outrank
// motion events; angle updates are the most frequent and least urgent.
const (
	priorityAngle     = 1
	priorityDirection = 2

	defaultWindowSecs  = 30
	criticalWindowSecs = 60
)

var severityPriorities = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

// Adapter subscribes to every broker message type and republishes delivered
// events to the sink as JSON envelopes. It is itself an ordinary subscriber;
// a marshalling failure affects nobody else.
type Adapter struct {
	sink          Sink
	snapshotter   *resolver.Resolver
	logger        logging.Entry
	subscriptions map[bus.MessageType]string
}

// New builds an adapter over the given sink. The resolver is optional; when
// present the adapter publishes a current_state snapshot on Start.
func New(sink Sink, snap *resolver.Resolver, logger logging.Logger) *Adapter {
	return &Adapter{
		sink:          sink,
		snapshotter:   snap,
		logger:        logging.WithComponent(logger, "stream"),
		subscriptions: make(map[bus.MessageType]string),
	}
}

// Start subscribes the adapter to every registered message type and pushes
// the initial routing snapshot.
func (a *Adapter) Start(ctx context.Context, broker *bus.Broker) error {
	for _, t := range broker.ListTypes() {
		id, err := broker.Subscribe(t, a.forward)
		if err != nil {
			a.Stop(broker)
			return err
		}
		a.subscriptions[t] = id
	}
	a.logger.WithField("types", len(a.subscriptions)).Info("Stream adapter attached")

	a.PublishState(ctx)
	return nil
}

// Stop detaches the adapter from the broker.
func (a *Adapter) Stop(broker *bus.Broker) {
	for t, id := range a.subscriptions {
		broker.Unsubscribe(t, id)
		delete(a.subscriptions, t)
	}
}

// PublishState pushes a fresh routing snapshot to the current_state channel.
func (a *Adapter) PublishState(ctx context.Context) {
	if a.snapshotter == nil {
		return
	}
	env := StateEnvelope{
		Type:      "current_state",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Data:      a.snapshotter.Snapshot(ctx),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		a.logger.WithError(err).Error("Failed to marshal routing snapshot")
		return
	}
	a.sink.Broadcast("current_state", payload)
}

// forward is the broker callback: one delivered event becomes one envelope.
func (a *Adapter) forward(msg *bus.ProcessedMessage) {
	env := buildEnvelope(msg)
	payload, err := json.Marshal(env)
	if err != nil {
		a.logger.WithFields(logging.Fields{
			"message_id": msg.Original.MessageID,
			"type":       string(msg.Original.Type),
		}).WithError(err).Error("Failed to marshal envelope")
		return
	}
	a.sink.Broadcast(env.Type, payload)
}

func buildEnvelope(msg *bus.ProcessedMessage) Envelope {
	env := Envelope{
		Type:          string(msg.Original.Type),
		MessageID:     msg.Original.MessageID,
		Timestamp:     msg.Original.Timestamp.Format(time.RFC3339Nano),
		Data:          msg.Original.Data,
		Cameras:       msg.Cameras,
		Priority:      priorityAngle,
		RemainingTime: defaultWindowSecs,
	}
	if env.Cameras == nil {
		env.Cameras = []models.Camera{}
	}

	switch msg.Original.Type {
	case bus.TypeDirectionResult:
		env.Priority = priorityDirection
	case bus.TypeAIAlert:
		severity, _ := msg.Original.Data["severity"].(string)
		if p, ok := severityPriorities[severity]; ok {
			env.Priority = p
		} else {
			env.Priority = severityPriorities["medium"]
		}
		if severity == "critical" {
			env.RemainingTime = criticalWindowSecs
		}
	}
	return env
}
