// Package sem encodes engine effects as SEM frames: JSON envelopes of the form
// {"sem":true,"event":{"type":..,"id":..,"data":{..}}} pushed to UI clients
// and to the outbound stream.
package sem

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/go-go-golems/coachchat/pkg/effects"
	semregistry "github.com/go-go-golems/coachchat/pkg/sem/registry"
)

// Event is the decoded form of a SEM frame.
type Event struct {
	Type effects.Type   `json:"type"`
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type envelope struct {
	Sem   bool            `json:"sem"`
	Event json.RawMessage `json:"event"`
}

func init() {
	RegisterDefaultHandlers()
}

// Frames encodes an effect. Effects without a registered mapping are dropped.
func Frames(e effects.Effect) [][]byte {
	if e == nil {
		return nil
	}
	frames, found, err := semregistry.Handle(e)
	if !found {
		log.Debug().
			Str("component", "sem").
			Str("effect_type", string(e.EffectType())).
			Msg("no semantic mapping for effect; dropping")
		return nil
	}
	if err != nil {
		log.Warn().
			Str("component", "sem").
			Str("effect_type", string(e.EffectType())).
			Err(err).
			Msg("registry handler returned error; dropping effect")
		return nil
	}
	return frames
}

// Decode parses a SEM frame back into its event.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, errors.Wrap(err, "sem: decode envelope")
	}
	if !env.Sem {
		return Event{}, errors.New("sem: frame is not a SEM envelope")
	}
	var ev Event
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		return Event{}, errors.Wrap(err, "sem: decode event")
	}
	return ev, nil
}

// Control encodes a transport-level frame such as ws.hello that no effect
// stands behind.
func Control(t string, data map[string]any) ([]byte, error) {
	frames, err := frame(effects.Type(t), "", data)
	if err != nil {
		return nil, err
	}
	return frames[0], nil
}

func frame(t effects.Type, id string, data map[string]any) ([][]byte, error) {
	if id == "" {
		id = string(t) + "-" + uuid.NewString()
	}
	st, err := structpb.NewStruct(data)
	if err != nil {
		return nil, errors.Wrapf(err, "sem: %s payload", t)
	}
	raw, err := protojson.MarshalOptions{
		EmitUnpopulated: true,
		UseProtoNames:   false,
	}.Marshal(st)
	if err != nil {
		return nil, errors.Wrapf(err, "sem: %s payload", t)
	}
	ev, err := json.Marshal(map[string]any{"type": t, "id": id, "data": json.RawMessage(raw)})
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(envelope{Sem: true, Event: ev})
	if err != nil {
		return nil, err
	}
	return [][]byte{b}, nil
}

func optionalInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// RegisterDefaultHandlers installs the mappings for every engine effect.
func RegisterDefaultHandlers() {
	semregistry.Register(func(e effects.AddMessage) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{
			"message":    e.Message.Map(),
			"addToStart": e.AddToStart,
		})
	})
	semregistry.Register(func(e effects.UpdateMessage) ([][]byte, error) {
		msgs := make([]any, 0, len(e.Messages))
		for _, m := range e.Messages {
			msgs = append(msgs, m.Map())
		}
		return frame(e.EffectType(), "", map[string]any{
			"clientId": e.ClientID,
			"messages": msgs,
		})
	})
	semregistry.Register(func(e effects.Typing) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{"on": e.On})
	})
	semregistry.Register(func(e effects.LoadEarlier) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{"visible": e.Visible})
	})
	semregistry.Register(func(e effects.FurtherExpected) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{"expected": e.Expected})
	})
	semregistry.Register(func(e effects.ExecuteCommand) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{"messageId": e.MessageID})
	})
	semregistry.Register(func(e effects.BackpackInfoAdded) ([][]byte, error) {
		return frame(e.EffectType(), e.Info.ID, map[string]any{
			"id":        e.Info.ID,
			"content":   e.Info.Content,
			"component": e.Info.Component,
			"title":     e.Info.Title,
			"subtitle":  e.Info.Subtitle,
			"time":      e.Info.Time,
		})
	})
	semregistry.Register(func(e effects.MarkRead) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{
			"clientId":      e.ClientID,
			"fakeTimestamp": optionalInt(e.FakeTimestamp),
		})
	})
	semregistry.Register(func(e effects.VariableValue) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{
			"variable": e.Variable,
			"value":    e.Value,
		})
	})
	semregistry.Register(func(e effects.Initialized) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{})
	})
	semregistry.Register(func(e effects.CloseComponent) ([][]byte, error) {
		return frame(e.EffectType(), "", map[string]any{"completed": e.Completed})
	})
}
