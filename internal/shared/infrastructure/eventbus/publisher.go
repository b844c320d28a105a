package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	// Publish sends a message to the event bus.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}

// Driver selects the broker implementation.
type Driver string

const (
	DriverNoop     Driver = "noop"
	DriverRabbitMQ Driver = "rabbitmq"
	DriverKafka    Driver = "kafka"
)

// Config selects and configures a publisher.
type Config struct {
	Driver       Driver
	RabbitMQURL  string
	Exchange     string
	KafkaBrokers []string
	KafkaTopic   string

	// Breaker settings wrap broker publishers; a zero threshold disables the breaker.
	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration
}

// New builds the publisher described by cfg. Broker-backed publishers are
// wrapped in a circuit breaker so an unavailable broker fails fast.
func New(cfg Config, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		pub Publisher
		err error
	)
	switch cfg.Driver {
	case "", DriverNoop:
		return NewNoopPublisher(logger), nil
	case DriverRabbitMQ:
		pub, err = NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.Exchange, logger)
	case DriverKafka:
		pub, err = NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	default:
		return nil, fmt.Errorf("unsupported event bus driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.BreakerFailureThreshold == 0 {
		return pub, nil
	}
	return NewBreakerPublisher(pub, string(cfg.Driver), BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Timeout:          cfg.BreakerTimeout,
	}, logger), nil
}

// NoopPublisher is a no-op publisher for testing/development.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs the message but doesn't actually publish.
func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("noop publish",
		"routing_key", routingKey,
		"size", len(payload),
	)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}
