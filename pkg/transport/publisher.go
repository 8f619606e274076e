package transport

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/sem"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// MetadataEffectType names the effect carried by an outbound message.
const MetadataEffectType = "effect_type"

// Outbound publishes effects addressed to the backend: read receipts,
// executed commands and web view variable values. Other effects are ignored.
type Outbound struct {
	publisher message.Publisher
	topic     string
}

func NewOutbound(publisher message.Publisher, topic string) *Outbound {
	return &Outbound{publisher: publisher, topic: topic}
}

func (o *Outbound) Emit(ctx context.Context, e effects.Effect) error {
	if o == nil || o.publisher == nil {
		return errors.New("outbound: nil publisher")
	}
	switch e.(type) {
	case effects.MarkRead, effects.ExecuteCommand, effects.VariableValue:
	default:
		return nil
	}
	for _, frame := range sem.Frames(e) {
		msg := message.NewMessage(uuid.NewString(), frame)
		msg.Metadata.Set(MetadataEffectType, string(e.EffectType()))
		msg.SetContext(ctx)
		if err := o.publisher.Publish(o.topic, msg); err != nil {
			return errors.Wrapf(err, "outbound: publish %s", e.EffectType())
		}
		log.Debug().
			Str("component", "transport").
			Str("topic", o.topic).
			Str("effect_type", string(e.EffectType())).
			Msg("published outbound effect")
	}
	return nil
}

// PublishServerMessage encodes msg and publishes it on topic, the way a
// backend would feed a session.
func PublishServerMessage(publisher message.Publisher, topic string, msg servermsg.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "transport: encode %s", msg.ClientID)
	}
	return PublishRaw(publisher, topic, payload)
}

// PublishRaw publishes an already encoded payload on topic.
func PublishRaw(publisher message.Publisher, topic string, payload []byte) error {
	if publisher == nil {
		return errors.New("transport: nil publisher")
	}
	return errors.Wrapf(publisher.Publish(topic, message.NewMessage(uuid.NewString(), payload)), "transport: publish %s", topic)
}
