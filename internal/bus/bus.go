package bus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"watchtower/pkg/logging"
	"watchtower/pkg/models"
)

// CameraResolver maps a normalized message to the cameras it should
// activate. Implementations degrade internally (retry, cached fallback) and
// never return an error to the broker.
type CameraResolver interface {
	Resolve(ctx context.Context, msg *MessageData) []models.Camera
}

// Hooks let the host process observe broker activity, typically to drive
// Prometheus counters. All hooks are optional.
type Hooks struct {
	OnPublish           func(msgType string, success bool, duration time.Duration)
	OnResolve           func(msgType string, cameras int)
	OnSubscriberFailure func(msgType string)
}

// Options configures a broker at construction.
type Options struct {
	Logger logging.Logger
	// AllowHandlerOverride makes every Register call permit overrides; the
	// per-call flag still applies when this is false.
	AllowHandlerOverride bool
	Resolver             CameraResolver
	Hooks                Hooks
}

// Broker is the process facade over the type registry, subscription
// registry, handler pipeline, resolver and statistics. Locks are acquired in
// a fixed order (type registry, then subscriptions) and callbacks always run
// outside broker locks.
type Broker struct {
	logger        logging.Entry
	types         *typeRegistry
	subs          *subscriptionRegistry
	stats         *stats
	hooks         Hooks
	allowOverride bool

	resolverMu sync.RWMutex
	resolver   CameraResolver

	terminated atomic.Bool
}

var (
	defaultMu     sync.Mutex
	defaultBroker *Broker
)

// Init builds the process-wide broker. It may be called once; later calls
// return the existing instance and an error. Built-in types are registered
// here; if that fails the broker refuses to become ready.
func Init(opts Options) (*Broker, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBroker != nil {
		return defaultBroker, fmt.Errorf("broker already initialized")
	}
	b, err := newBroker(opts)
	if err != nil {
		return nil, err
	}
	defaultBroker = b
	return b, nil
}

// Default returns the process broker, initializing it with defaults on first
// use. Construction outside this package goes through Init or Default only.
func Default() *Broker {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBroker == nil {
		b, err := newBroker(Options{Logger: logging.NewLoggerWithService("watchtower")})
		if err != nil {
			// Built-in handler registration cannot fail with a fresh
			// registry; treat it as a programming error.
			panic(err)
		}
		defaultBroker = b
	}
	return defaultBroker
}

func newBroker(opts Options) (*Broker, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	b := &Broker{
		logger:        logging.WithComponent(logger, "bus"),
		types:         newTypeRegistry(),
		subs:          newSubscriptionRegistry(),
		stats:         &stats{},
		hooks:         opts.Hooks,
		allowOverride: opts.AllowHandlerOverride,
		resolver:      opts.Resolver,
	}

	builtins := []Handler{
		NewDirectionHandler(),
		NewAngleHandler(),
		NewAIAlertHandler(),
	}
	for _, h := range builtins {
		if err := b.types.Register(h.TypeName(), h, false); err != nil {
			return nil, fmt.Errorf("bootstrap handler %s: %w", h.TypeName(), err)
		}
	}

	return b, nil
}

// RegisterMessageType binds a handler to a message type. Overriding an
// existing handler requires allowOverride (or the broker-wide option) and
// keeps the type's subscriber list verbatim.
func (b *Broker) RegisterMessageType(t MessageType, handler Handler, allowOverride bool) error {
	if b.terminated.Load() {
		return ErrBrokerShutDown
	}
	err := b.types.Register(t, handler, allowOverride || b.allowOverride)
	if err == nil {
		b.logger.WithField("type", string(t)).Info("Message type registered")
	}
	return err
}

// UnregisterMessageType removes the handler for a type. Existing subscribers
// are retained so re-registration restores routing, but publishes and new
// subscriptions fail until then.
func (b *Broker) UnregisterMessageType(t MessageType) bool {
	if b.terminated.Load() {
		return false
	}
	removed := b.types.Unregister(t)
	if removed {
		b.logger.WithField("type", string(t)).Info("Message type unregistered")
	}
	return removed
}

// Subscribe appends a callback to the type's subscriber list and returns the
// subscription id.
func (b *Broker) Subscribe(t MessageType, cb Callback) (string, error) {
	if b.terminated.Load() {
		return "", ErrBrokerShutDown
	}
	if !b.types.IsRegistered(t) {
		return "", fmt.Errorf("%w: %s", ErrTypeNotRegistered, t)
	}
	id, err := b.subs.Add(t, cb)
	if err != nil {
		return "", err
	}
	b.logger.WithFields(logging.Fields{
		"type":            string(t),
		"subscription_id": id,
	}).Debug("Subscriber added")
	return id, nil
}

// Unsubscribe removes a subscription by id. Safe to call twice; the second
// call returns false.
func (b *Broker) Unsubscribe(t MessageType, id string) bool {
	return b.subs.Remove(t, id)
}

// Publish runs the full pipeline for one message: validate, normalize,
// resolve cameras, fan out. It never panics and never returns an error;
// every outcome is expressed in the PublishResult.
func (b *Broker) Publish(ctx context.Context, t MessageType, payload Payload) PublishResult {
	start := time.Now()
	result := PublishResult{MessageID: uuid.New().String()}

	defer func() {
		result.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
		if b.hooks.OnPublish != nil {
			b.hooks.OnPublish(string(t), result.Success, time.Since(start))
		}
	}()

	if b.terminated.Load() {
		result.Errors = append(result.Errors, ErrBrokerShutDown.Error())
		return result
	}

	handler, ok := b.types.Get(t)
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", ErrTypeNotRegistered.Error(), t))
		b.stats.recordPublish(false)
		return result
	}

	validation := handler.Validate(payload)
	if !validation.Valid {
		result.Errors = append(result.Errors, validation.Errors...)
		b.stats.recordPublish(false)
		b.logger.WithFields(logging.Fields{
			"message_id": result.MessageID,
			"type":       string(t),
			"errors":     validation.Errors,
		}).Error("Message validation failed")
		return result
	}

	normalized, err := handler.Process(payload)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("processing failed: %v", err))
		b.stats.recordPublish(false)
		b.logger.WithFields(logging.Fields{
			"message_id": result.MessageID,
			"type":       string(t),
		}).WithError(err).Error("Message processing failed")
		return result
	}

	msg := &MessageData{
		MessageID: result.MessageID,
		Type:      t,
		Data:      normalized,
		Timestamp: time.Now().UTC(),
	}

	cameras := b.resolveCameras(ctx, msg)
	if b.hooks.OnResolve != nil {
		b.hooks.OnResolve(string(t), len(cameras))
	}

	processed := &ProcessedMessage{
		Original:         msg,
		Validated:        true,
		Cameras:          cameras,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if len(validation.Warnings) > 0 {
		processed.Warnings = append(processed.Warnings, validation.Warnings...)
	}

	// Snapshot under the subscription lock, then fan out with no locks held.
	snapshot := b.subs.Snapshot(t)
	for _, sub := range snapshot {
		if b.invoke(sub, processed) {
			result.SubscribersNotified++
		} else {
			result.SubscribersFailed++
		}
	}

	result.Success = true
	b.stats.recordPublish(true)
	return result
}

// invoke runs one subscriber callback, isolating panics so one failing
// subscriber cannot affect the rest of the fan-out.
func (b *Broker) invoke(sub *SubscriptionInfo, msg *ProcessedMessage) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if b.hooks.OnSubscriberFailure != nil {
				b.hooks.OnSubscriberFailure(string(sub.Type))
			}
			b.logger.WithFields(logging.Fields{
				"subscription_id": sub.SubscriptionID,
				"message_id":      msg.Original.MessageID,
				"type":            string(sub.Type),
				"panic":           fmt.Sprint(r),
				"stack":           string(debug.Stack()),
			}).Error("Subscriber callback failed")
		}
	}()

	sub.Callback(msg)
	return true
}

func (b *Broker) resolveCameras(ctx context.Context, msg *MessageData) []models.Camera {
	b.resolverMu.RLock()
	resolver := b.resolver
	b.resolverMu.RUnlock()

	if resolver == nil {
		return []models.Camera{}
	}
	cameras := resolver.Resolve(ctx, msg)
	if cameras == nil {
		cameras = []models.Camera{}
	}
	return cameras
}

// SetResolver swaps the camera resolver used for subsequent publishes.
func (b *Broker) SetResolver(r CameraResolver) {
	b.resolverMu.Lock()
	b.resolver = r
	b.resolverMu.Unlock()
}

// IsTypeRegistered reports whether a handler is bound to the type.
func (b *Broker) IsTypeRegistered(t MessageType) bool {
	return b.types.IsRegistered(t)
}

// ListTypes returns the registered types in sorted order.
func (b *Broker) ListTypes() []MessageType {
	return b.types.List()
}

// SubscriberCount returns the total subscriber count.
func (b *Broker) SubscriberCount() int {
	return b.subs.Count()
}

// SubscriberCountForType returns the subscriber count for one type.
func (b *Broker) SubscriberCountForType(t MessageType) int {
	return b.subs.CountForType(t)
}

// Stats returns a snapshot of the broker counters and subscriber counts.
func (b *Broker) Stats() StatsSnapshot {
	types := b.types.List()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return StatsSnapshot{
		MessagesPublished: b.stats.published.Load(),
		MessagesSucceeded: b.stats.succeeded.Load(),
		MessagesFailed:    b.stats.failed.Load(),
		Subscribers:       b.subs.PerTypeCounts(),
		RegisteredTypes:   names,
	}
}

// Shutdown clears subscribers, releases the resolver and marks the broker
// terminated. Further publishes fail. Callable at most once per lifetime.
func (b *Broker) Shutdown() error {
	if !b.terminated.CompareAndSwap(false, true) {
		return ErrBrokerShutDown
	}
	b.subs.Clear()
	b.SetResolver(nil)
	b.logger.Info("Broker shut down")
	return nil
}
