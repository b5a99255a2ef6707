package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriptionRegistry keeps, per message type, the ordered list of
// subscribers. Insertion order is fan-out order. A single lock guards all
// state; fan-out takes a snapshot and never invokes callbacks under the lock.
type subscriptionRegistry struct {
	mu   sync.Mutex
	subs map[MessageType][]*SubscriptionInfo
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{subs: make(map[MessageType][]*SubscriptionInfo)}
}

// Add appends a subscriber and returns its id.
func (r *subscriptionRegistry) Add(t MessageType, cb Callback) (string, error) {
	if cb == nil {
		return "", ErrCallbackInvalid
	}

	info := &SubscriptionInfo{
		SubscriptionID: uuid.New().String(),
		Type:           t,
		Callback:       cb,
		CreatedAt:      time.Now().UTC(),
	}

	r.mu.Lock()
	r.subs[t] = append(r.subs[t], info)
	r.mu.Unlock()

	return info.SubscriptionID, nil
}

// Remove deletes a subscriber by id. Idempotent: removing an unknown id
// returns false.
func (r *subscriptionRegistry) Remove(t MessageType, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[t]
	for i, info := range list {
		if info.SubscriptionID == id {
			r.subs[t] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a shallow copy of the subscriber list for fan-out.
// Mutations after the snapshot do not affect an in-flight publish.
func (r *subscriptionRegistry) Snapshot(t MessageType) []*SubscriptionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[t]
	out := make([]*SubscriptionInfo, len(list))
	copy(out, list)
	return out
}

// Count returns the total number of subscribers across all types.
func (r *subscriptionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, list := range r.subs {
		total += len(list)
	}
	return total
}

// CountForType returns the number of subscribers for one type.
func (r *subscriptionRegistry) CountForType(t MessageType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[t])
}

// PerTypeCounts returns subscriber counts keyed by type name.
func (r *subscriptionRegistry) PerTypeCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.subs))
	for t, list := range r.subs {
		if len(list) > 0 {
			out[string(t)] = len(list)
		}
	}
	return out
}

// Clear drops every subscriber. Used on broker shutdown.
func (r *subscriptionRegistry) Clear() {
	r.mu.Lock()
	r.subs = make(map[MessageType][]*SubscriptionInfo)
	r.mu.Unlock()
}
