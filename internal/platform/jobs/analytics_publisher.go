package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/textutil"
	"github.com/hanko-field/storefront/internal/services"
)

// AnalyticsMessage is the JSON payload written to the analytics topic.
type AnalyticsMessage struct {
	EventID    string         `json:"eventId"`
	Name       string         `json:"name"`
	UserID     string         `json:"userId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Params     map[string]any `json:"params,omitempty"`
}

// PubSubAnalyticsPublisher forwards storefront events to a Pub/Sub topic.
// Publish does not wait for the server acknowledgement; failures are logged.
type PubSubAnalyticsPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	logger  *zap.Logger
	attrs   map[string]string

	wg sync.WaitGroup
}

// AnalyticsOption customises the publisher.
type AnalyticsOption func(*PubSubAnalyticsPublisher)

// WithAnalyticsLogger sets the logger used for publish failures.
func WithAnalyticsLogger(logger *zap.Logger) AnalyticsOption {
	return func(p *PubSubAnalyticsPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStaticAttributes adds attributes to every message, e.g. the environment name.
func WithStaticAttributes(attrs map[string]string) AnalyticsOption {
	return func(p *PubSubAnalyticsPublisher) {
		p.attrs = textutil.Merge(p.attrs, attrs)
	}
}

var _ services.AnalyticsPublisher = (*PubSubAnalyticsPublisher)(nil)

// NewPubSubAnalyticsPublisher constructs a Pub/Sub backed analytics publisher.
func NewPubSubAnalyticsPublisher(topic *pubsub.Topic, opts ...AnalyticsOption) (*PubSubAnalyticsPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub analytics publisher: topic is required")
	}
	p := &PubSubAnalyticsPublisher{
		topic:   topic,
		marshal: json.Marshal,
		logger:  zap.NewNop(),
		attrs:   map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Publish enqueues the event. Only encoding errors are returned.
func (p *PubSubAnalyticsPublisher) Publish(ctx context.Context, event services.AnalyticsEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub analytics publisher: not initialised")
	}
	if event.Name == "" {
		return errors.New("pubsub analytics publisher: event name is required")
	}

	data, err := p.marshal(AnalyticsMessage{
		EventID:    event.ID,
		Name:       event.Name,
		UserID:     event.UserID,
		OccurredAt: event.OccurredAt.UTC(),
		Params:     event.Params,
	})
	if err != nil {
		return fmt.Errorf("marshal analytics event: %w", err)
	}

	attrs := textutil.Merge(textutil.Pairs(
		"event", event.Name,
		"eventId", event.ID,
		"userId", event.UserID,
	), p.attrs)

	// The request context may be cancelled before the broker acknowledges.
	result := p.topic.Publish(context.WithoutCancel(ctx), &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := result.Get(waitCtx); err != nil {
			p.logger.Warn("analytics publish failed",
				zap.String("event", event.Name),
				zap.String("eventId", event.ID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Flush waits for outstanding publishes and stops the topic's background
// goroutines. The publisher must not be used afterwards.
func (p *PubSubAnalyticsPublisher) Flush() {
	if p == nil || p.topic == nil {
		return
	}
	p.topic.Stop()
	p.wg.Wait()
}
