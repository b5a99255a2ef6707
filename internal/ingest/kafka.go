package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"watchtower/internal/bus"
	"watchtower/pkg/logging"
)

// Publisher is the slice of the broker the consumer needs.
type Publisher interface {
	Publish(ctx context.Context, t bus.MessageType, payload bus.Payload) bus.PublishResult
}

// Config holds Kafka connection settings for alert ingest.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
}

// AlertConsumer pulls AI detection alerts off Kafka and publishes them into
// the broker as ai_alert messages. Offsets are committed manually: a record
// whose publish fails blocks its partition's commit so the alert is redelivered.
type AlertConsumer struct {
	client *kgo.Client
	broker Publisher
	topic  string
	logger logging.Entry
}

// NewAlertConsumer connects to the cluster and subscribes to the alert topic.
func NewAlertConsumer(cfg Config, broker Publisher, logger logging.Logger) (*AlertConsumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &AlertConsumer{
		client: client,
		broker: broker,
		topic:  cfg.Topic,
		logger: logging.WithComponent(logger, "ingest"),
	}, nil
}

// Client exposes the underlying client for health checks.
func (c *AlertConsumer) Client() *kgo.Client {
	return c.client
}

// Close shuts down the Kafka client.
func (c *AlertConsumer) Close() {
	c.client.Close()
}

// Run polls until the context is canceled.
func (c *AlertConsumer) Run(ctx context.Context) error {
	c.logger.WithField("topic", c.topic).Info("Alert ingest started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fetches := c.client.PollFetches(ctx)
			if errs := fetches.Errors(); len(errs) > 0 {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				for _, fe := range errs {
					c.logger.WithFields(logging.Fields{
						"topic":     fe.Topic,
						"partition": fe.Partition,
					}).WithError(fe.Err).Error("Kafka fetch error")
				}
				continue
			}

			iter := fetches.RecordIter()
			records := make([]*kgo.Record, 0)
			for !iter.Done() {
				records = append(records, iter.Next())
			}

			commit := c.process(ctx, records)
			if len(commit) > 0 {
				if err := c.client.CommitRecords(ctx, commit...); err != nil {
					c.logger.WithError(err).Error("Failed to commit offsets")
				}
			}
		}
	}
}

// process publishes each record into the broker. A failed record blocks its
// partition: records behind it are not committed, preserving order on retry.
func (c *AlertConsumer) process(ctx context.Context, records []*kgo.Record) []*kgo.Record {
	blocked := make(map[int32]bool)
	lastOK := make(map[int32]*kgo.Record)

	for _, record := range records {
		if blocked[record.Partition] {
			continue
		}
		if err := c.ingest(ctx, record); err != nil {
			blocked[record.Partition] = true
			c.logger.WithFields(logging.Fields{
				"partition": record.Partition,
				"offset":    record.Offset,
			}).WithError(err).Error("Alert ingest failed, blocking partition")
			continue
		}
		lastOK[record.Partition] = record
	}

	commit := make([]*kgo.Record, 0, len(lastOK))
	for _, record := range lastOK {
		commit = append(commit, record)
	}
	return commit
}

func (c *AlertConsumer) ingest(ctx context.Context, record *kgo.Record) error {
	var payload bus.Payload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		// Malformed JSON never becomes valid on redelivery; log and skip.
		c.logger.WithFields(logging.Fields{
			"partition": record.Partition,
			"offset":    record.Offset,
		}).WithError(err).Warn("Dropping malformed alert record")
		return nil
	}
	if _, ok := payload["timestamp"]; !ok && !record.Timestamp.IsZero() {
		payload["timestamp"] = record.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	result := c.broker.Publish(ctx, bus.TypeAIAlert, payload)
	if !result.Success {
		// Validation failures are permanent; only infrastructure-level
		// failures are worth redelivering.
		for _, msg := range result.Errors {
			if msg == bus.ErrBrokerShutDown.Error() {
				return fmt.Errorf("broker unavailable")
			}
		}
		c.logger.WithFields(logging.Fields{
			"offset": record.Offset,
			"errors": result.Errors,
		}).Warn("Dropping invalid alert record")
	}
	return nil
}
