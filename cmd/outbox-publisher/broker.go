package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/kafka"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
	"github.com/angelmondragon/bazaar-backend/pkg/pubsub"
)

// brokerMessage is the broker-neutral shape of one outbox row.
type brokerMessage struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

type broker interface {
	Name() string
	Ping(ctx context.Context) error
	Publish(ctx context.Context, topic string, msg brokerMessage) error
	Close() error
}

func newBroker(ctx context.Context, cfg *config.Config, logg *logger.Logger) (broker, error) {
	switch cfg.Eventing.BrokerName() {
	case config.BrokerKafka:
		writer, err := kafka.NewWriter(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return &kafkaBroker{writer: writer}, nil
	case config.BrokerPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, err
		}
		return newPubSubBroker(client, func(topic string) publisher {
			return newGCPPubPublisher(client.Publisher(topic))
		}), nil
	default:
		return nil, fmt.Errorf("unsupported broker %q", cfg.Eventing.Broker)
	}
}

type kafkaWriter interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Ping(ctx context.Context) error
	Close() error
}

type kafkaBroker struct {
	writer kafkaWriter
}

func (b *kafkaBroker) Name() string { return config.BrokerKafka }

func (b *kafkaBroker) Ping(ctx context.Context) error { return b.writer.Ping(ctx) }

func (b *kafkaBroker) Publish(ctx context.Context, topic string, msg brokerMessage) error {
	return b.writer.Publish(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: msg.Attributes,
	})
}

func (b *kafkaBroker) Close() error { return b.writer.Close() }

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

type pubsubClient interface {
	Ping(context.Context) error
	Close() error
}

// pubsubBroker keeps one publisher per topic so batching settings apply
// across calls.
type pubsubBroker struct {
	client  pubsubClient
	factory publisherFactory

	mu         sync.Mutex
	publishers map[string]publisher
}

func newPubSubBroker(client pubsubClient, factory publisherFactory) *pubsubBroker {
	return &pubsubBroker{client: client, factory: factory, publishers: map[string]publisher{}}
}

func (b *pubsubBroker) Name() string { return config.BrokerPubSub }

func (b *pubsubBroker) Ping(ctx context.Context) error { return b.client.Ping(ctx) }

func (b *pubsubBroker) publisherFor(topic string) publisher {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pub, ok := b.publishers[topic]; ok {
		return pub
	}
	pub := b.factory(topic)
	if pub != nil {
		b.publishers[topic] = pub
	}
	return pub
}

func (b *pubsubBroker) Publish(ctx context.Context, topic string, msg brokerMessage) error {
	pub := b.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

func (b *pubsubBroker) Close() error {
	b.mu.Lock()
	for topic, pub := range b.publishers {
		if gp, ok := pub.(*gcpPublisher); ok && gp.Publisher != nil {
			gp.Publisher.Stop()
		}
		delete(b.publishers, topic)
	}
	b.mu.Unlock()
	return b.client.Close()
}

func newGCPPubPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
