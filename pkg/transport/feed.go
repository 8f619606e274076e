package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/persistence/messagestore"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// Enqueuer receives new or updated server messages for live handling.
type Enqueuer interface {
	Push(msg servermsg.ServerMessage) error
}

// Feed owns the subscriber that delivers server messages. Each payload is
// decoded, stored, and enqueued when it is new or carries a change. Redelivered
// payloads are stored once and enqueued once.
type Feed struct {
	topic      string
	subscriber message.Subscriber
	store      messagestore.Store
	queue      Enqueuer
}

func NewFeed(subscriber message.Subscriber, topic string, store messagestore.Store, queue Enqueuer) *Feed {
	return &Feed{
		topic:      topic,
		subscriber: subscriber,
		store:      store,
		queue:      queue,
	}
}

// Ingest stores one payload and enqueues it if it changed anything.
func (f *Feed) Ingest(ctx context.Context, payload []byte) (messagestore.Outcome, error) {
	if f == nil || f.store == nil {
		return messagestore.Unchanged, errors.New("feed: nil store")
	}
	msg, err := servermsg.Decode(payload)
	if err != nil {
		return messagestore.Unchanged, err
	}
	outcome, err := f.store.Upsert(ctx, msg)
	if err != nil {
		return outcome, errors.Wrapf(err, "feed: store %s", msg.ClientID)
	}
	if outcome.Changed() && f.queue != nil {
		if err := f.queue.Push(msg); err != nil {
			return outcome, errors.Wrapf(err, "feed: enqueue %s", msg.ClientID)
		}
	}
	log.Debug().
		Str("component", "transport").
		Str("client_id", msg.ClientID).
		Int64("client_version", msg.ClientVersion).
		Str("outcome", outcome.String()).
		Msg("ingested server message")
	return outcome, nil
}

// Run subscribes and consumes until ctx is done or the subscription closes.
func (f *Feed) Run(ctx context.Context) error {
	if f == nil || f.subscriber == nil {
		return errors.New("feed: nil subscriber")
	}
	ch, err := f.subscriber.Subscribe(ctx, f.topic)
	if err != nil {
		return errors.Wrapf(err, "feed: subscribe %s", f.topic)
	}
	log.Info().Str("component", "transport").Str("topic", f.topic).Msg("feed: started")
	defer log.Info().Str("component", "transport").Str("topic", f.topic).Msg("feed: stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.consume(ctx, msg)
		}
	}
}

func (f *Feed) consume(ctx context.Context, msg *message.Message) {
	_, err := f.Ingest(ctx, msg.Payload)
	switch {
	case err == nil:
	case servermsg.IsParseError(err):
		log.Error().
			Str("component", "transport").
			Str("message_uuid", msg.UUID).
			Err(err).
			Msg("feed: dropping malformed server message")
	default:
		log.Error().
			Str("component", "transport").
			Str("message_uuid", msg.UUID).
			Err(err).
			Msg("feed: failed to ingest server message")
	}
	msg.Ack()
}
