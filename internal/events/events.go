// Package events publishes site lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	SiteCreated = "site.created"
	SiteDeleted = "site.deleted"
)

// DefaultTopic is the topic every event is published on.
const DefaultTopic = "rocketctl.sites"

// Event is a site lifecycle notification.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SiteID     string    `json:"site_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(typ, siteID string, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		SiteID:     siteID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// WatermillPublisher publishes events as JSON watermill messages.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	owned     io.Closer
}

// NewWatermillPublisher wraps a watermill publisher.
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{publisher: publisher, topic: topic}
}

// Publish publishes e.
func (p *WatermillPublisher) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set("type", e.Type)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the underlying publisher and any client it owns.
func (p *WatermillPublisher) Close() error {
	err := p.publisher.Close()
	if p.owned != nil {
		err = errors.Join(err, p.owned.Close())
	}
	return err
}

// Bus is an in-process publisher whose events can also be subscribed to.
// Events published by one-shot commands end with the process; `serve`
// subscribes and logs them.
type Bus struct {
	*WatermillPublisher
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return &Bus{WatermillPublisher: NewWatermillPublisher(ps, DefaultTopic), pubsub: ps}
}

// Log writes every event published on the bus to logger until ctx is done.
func (b *Bus) Log(ctx context.Context, logger *slog.Logger) error {
	sub, err := b.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	go func() {
		for e := range sub {
			logger.Info("site event", "type", e.Type, "site_id", e.SiteID, "event_id", e.ID)
		}
	}()
	return nil
}

// Subscribe returns decoded events published after the call.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	msgs, err := b.pubsub.Subscribe(ctx, DefaultTopic)
	if err != nil {
		return nil, err
	}
	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range msgs {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err == nil {
				select {
				case out <- e:
				case <-ctx.Done():
				}
			}
			msg.Ack()
		}
	}()
	return out, nil
}

// NewRedisPublisher publishes to a Redis stream.
func NewRedisPublisher(client redis.UniversalClient, logger watermill.LoggerAdapter) (*WatermillPublisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}
	return NewWatermillPublisher(pub, DefaultTopic), nil
}

// Options selects a backend.
type Options struct {
	Backend  string // none, memory, redis
	RedisURL string
	Debug    bool
}

// Open returns the configured publisher.
func Open(opts Options) (Publisher, error) {
	var logger watermill.LoggerAdapter = watermill.NopLogger{}
	if opts.Debug {
		logger = watermill.NewStdLogger(true, false)
	}

	switch opts.Backend {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewBus(logger), nil
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis events require redis_url")
		}
		ropts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(ropts)
		pub, err := NewRedisPublisher(client, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		pub.owned = client
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", opts.Backend)
	}
}
