package bus

import "sync/atomic"

// stats holds lock-free counters for publish outcomes.
type stats struct {
	published atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// StatsSnapshot is a point-in-time view of broker statistics.
type StatsSnapshot struct {
	MessagesPublished int64          `json:"messages_published"`
	MessagesSucceeded int64          `json:"messages_succeeded"`
	MessagesFailed    int64          `json:"messages_failed"`
	Subscribers       map[string]int `json:"subscribers"`
	RegisteredTypes   []string       `json:"registered_types"`
}

func (s *stats) recordPublish(success bool) {
	s.published.Add(1)
	if success {
		s.succeeded.Add(1)
	} else {
		s.failed.Add(1)
	}
}
