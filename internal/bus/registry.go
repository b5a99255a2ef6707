package bus

import (
	"fmt"
	"sort"
	"sync"
)

// Handler validates and normalizes payloads for one message type.
// Implementations are stateless per message but may carry configuration.
type Handler interface {
	TypeName() MessageType
	Validate(payload Payload) ValidationResult
	Process(payload Payload) (Payload, error)
}

// typeRegistry holds the set of registered message types and their handlers.
// A single lock guards it; reads copy out the handler reference.
type typeRegistry struct {
	mu       sync.Mutex
	handlers map[MessageType]Handler
}

func newTypeRegistry() *typeRegistry {
	return &typeRegistry{handlers: make(map[MessageType]Handler)}
}

// Register binds a handler to a message type. With allowOverride false a
// second registration for the same type fails. Overriding never touches the
// subscriber list for the type.
func (r *typeRegistry) Register(t MessageType, handler Handler, allowOverride bool) error {
	if err := validateTypeName(t); err != nil {
		return err
	}
	if handler == nil {
		return ErrHandlerInterface
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[t]; exists && !allowOverride {
		return fmt.Errorf("%w: %s", ErrTypeAlreadyRegistered, t)
	}
	r.handlers[t] = handler
	return nil
}

// Unregister removes the handler for a type. Returns false when the type was
// not registered. Subscriber lists are kept elsewhere and survive this.
func (r *typeRegistry) Unregister(t MessageType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[t]; !exists {
		return false
	}
	delete(r.handlers, t)
	return true
}

// Get returns the handler for a type, if registered.
func (r *typeRegistry) Get(t MessageType) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[t]
	return h, ok
}

// IsRegistered reports whether a handler is bound to the type.
func (r *typeRegistry) IsRegistered(t MessageType) bool {
	_, ok := r.Get(t)
	return ok
}

// List returns the registered types in sorted order.
func (r *typeRegistry) List() []MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]MessageType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
