// Package events publishes business lifecycle events to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/invoicely/invoicely/internal/metrics"
	"github.com/invoicely/invoicely/internal/model"
)

const (
	// StreamKey is the Redis stream for business events.
	StreamKey = "stream:business_events"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 500 * time.Millisecond
)

// EventType names a business lifecycle transition.
type EventType string

// Business event types.
const (
	BusinessCreated EventType = "business.created"
	BusinessUpdated EventType = "business.updated"
	BusinessDeleted EventType = "business.deleted"
)

// ErrInvalidPayload is returned when a stream entry cannot be decoded.
var ErrInvalidPayload = errors.New("invalid event payload")

// BusinessEvent is the payload written to the stream.
type BusinessEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	BusinessID string    `json:"business_id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name,omitempty"`
	OccurredAt int64     `json:"t"` // Unix milliseconds
}

// NewBusinessEvent builds an event for business with a fresh sortable id.
func NewBusinessEvent(eventType EventType, business *model.Business) BusinessEvent {
	now := time.Now().UTC()
	event := BusinessEvent{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:       eventType,
		OccurredAt: now.UnixMilli(),
	}
	if business != nil {
		event.BusinessID = business.ID
		event.UserID = business.UserID
		event.Name = business.Name
	}
	return event
}

// Decode parses the values of a stream entry.
func Decode(values map[string]interface{}) (BusinessEvent, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return BusinessEvent{}, ErrInvalidPayload
	}
	var event BusinessEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return BusinessEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.Type == "" || event.BusinessID == "" {
		return BusinessEvent{}, ErrInvalidPayload
	}
	return event, nil
}

// StreamWriter is the subset of the Redis client used for publishing.
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher enqueues business events to a Redis stream.
type Publisher struct {
	redis   StreamWriter
	logger  *slog.Logger
	metrics metrics.Recorder
	wg      sync.WaitGroup
}

// NewPublisher creates a new business event publisher.
func NewPublisher(client StreamWriter, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event BusinessEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"type":    string(event.Type),
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned.
func (p *Publisher) PublishAsync(event BusinessEvent) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish business event",
				"type", event.Type,
				"business_id", event.BusinessID,
				"error", err,
			)
			p.metrics.IncEventPublished("dropped")
			return
		}

		p.logger.Debug("business event published",
			"type", event.Type,
			"business_id", event.BusinessID,
			"stream_id", streamID,
		)
		p.metrics.IncEventPublished("success")
	}()
}

// Close waits for in-flight publishes or until ctx is done.
func (p *Publisher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
