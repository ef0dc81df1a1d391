package events

import (
	"context"
	"fmt"

	"hrassist/internal/platform/config"
)

// Publisher pushes committed domain events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
	Close() error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }
func (noopPublisher) Close() error                               { return nil }

func Noop() Publisher {
	return noopPublisher{}
}

// New picks the publisher named by EVENTS_BACKEND.
func New(cfg config.Config) (Publisher, error) {
	switch cfg.EventsBackend {
	case "", "none":
		return Noop(), nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "rabbitmq":
		return NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
	}
}
