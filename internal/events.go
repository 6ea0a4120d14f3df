package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/survey"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventType names a domain event emitted after a committed change.
type EventType string

const (
	EventFormPublished     EventType = "form.published"
	EventDraftReverted     EventType = "form.draft_reverted"
	EventSubmissionBound   EventType = "submission.bound"
	eventHeaderType                  = "event-type"
	defaultEventBatchDelay           = 10 * time.Millisecond
)

// Event is the JSON envelope written to the topic. Unused attributes are omitted.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	FormID        uuid.UUID `json:"formId"`
	Version       int       `json:"version,omitempty"`
	TargetVersion int       `json:"targetVersion,omitempty"`
	IsReverted    bool      `json:"isReverted,omitempty"`
	SubmissionID  string    `json:"submissionId,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// EventPublisher delivers domain events. Implementations must be safe for
// concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NoopEventPublisher is used when no broker is configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, Event) error { return nil }
func (NoopEventPublisher) Close() error                         { return nil }

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher writes events keyed by form id, so all events of a form
// land on the same partition in commit order.
type KafkaEventPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaEventPublisher builds a producer for cfg.Topic on cfg.Brokers.
func NewKafkaEventPublisher(cfg survey.EventsConfig) (*KafkaEventPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events: topic is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           defaultEventBatchDelay,
	}
	if cfg.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}
	zap.S().Infow("kafka event publisher initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &KafkaEventPublisher{writer: writer, topic: cfg.Topic}, nil
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.Must(uuid.NewV7()).String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(evt.FormID.String()),
		Value:   payload,
		Headers: []kafka.Header{{Key: eventHeaderType, Value: []byte(evt.Type)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// emitEvent publishes evt after a commit. The commit already happened, so a
// delivery failure is only logged.
func emitEvent(ctx context.Context, events EventPublisher, evt Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, evt); err != nil {
		zap.S().Warnw("failed to publish domain event", "type", evt.Type, "formId", evt.FormID, "error", err)
	}
}
