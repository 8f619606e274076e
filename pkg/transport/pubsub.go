// Package transport carries server messages into a session and effects out of
// it over watermill, either in-process (gochannel) or over Redis Streams.
package transport

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/config"
)

// PubSub bundles a publisher and subscriber sharing one backend.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

// Close releases the subscriber, the publisher and any client they share.
func (p *PubSub) Close() error {
	if p == nil {
		return nil
	}
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// NewMemoryPubSub returns an in-process pubsub. Messages published before the
// first subscription are kept and replayed to it.
func NewMemoryPubSub() *PubSub {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
		Persistent:          true,
	}, NewWatermillLogger(log.Logger))
	return &PubSub{
		Publisher:  ch,
		Subscriber: ch,
		closers:    []func() error{ch.Close},
	}
}

// NewRedisPubSub connects to Redis Streams. The consumer group for
// inboundTopic is created at the stream tail so a fresh group does not replay
// the whole stream.
func NewRedisPubSub(ctx context.Context, s config.RedisConfig, inboundTopic string) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.Logger)

	if err := EnsureGroupAtTail(ctx, client, inboundTopic, s.Group); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "transport: ensure consumer group")
	}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "transport: redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "transport: redis subscriber")
	}

	return &PubSub{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

// New builds the pubsub selected by cfg.Driver.
func New(ctx context.Context, cfg config.TransportConfig) (*PubSub, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemoryPubSub(), nil
	case config.DriverRedis:
		return NewRedisPubSub(ctx, cfg.Redis, cfg.InboundTopic)
	default:
		return nil, errors.Errorf("transport: unknown driver %q", cfg.Driver)
	}
}

// EnsureGroupAtTail creates the consumer group for stream at the tail ($) if
// it doesn't exist.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("component", "transport").Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
