// Package webview translates events posted by an embedded web page into
// effects. A page posts either a bare keyword or a JSON variable assignment:
//
//	close
//	complete
//	{"variable":"$result","value":20}
package webview

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

const (
	EventClose    = "close"
	EventComplete = "complete"
)

type assignment struct {
	Variable string          `json:"variable"`
	Value    json.RawMessage `json:"value"`
}

// Parse converts one posted event into its effect. Malformed payloads return
// a *servermsg.ParseError.
func Parse(data string) (effects.Effect, error) {
	switch data {
	case EventClose:
		return effects.CloseComponent{Completed: false}, nil
	case EventComplete:
		return effects.CloseComponent{Completed: true}, nil
	}

	var a assignment
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, &servermsg.ParseError{Op: "webview event", Reason: "payload is not a variable assignment", Err: err}
	}
	if strings.TrimSpace(a.Variable) == "" {
		return nil, &servermsg.ParseError{Op: "webview event", Reason: "variable name is missing"}
	}
	return effects.VariableValue{Variable: a.Variable, Value: rawValue(a.Value)}, nil
}

// rawValue keeps strings unquoted and passes numbers and booleans through
// as their literal text. Values are always sent to the server as strings.
func rawValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// HandleEvent parses data and emits the resulting effect. Parse errors are
// logged and returned; nothing is emitted for them.
func HandleEvent(ctx context.Context, data string, sink effects.Sink) error {
	e, err := Parse(data)
	if err != nil {
		log.Warn().
			Str("component", "webview").
			Str("data", data).
			Err(err).
			Msg("dropping malformed web view event")
		return err
	}
	log.Debug().
		Str("component", "webview").
		Str("effect", string(e.EffectType())).
		Msg("web view event")
	if sink == nil {
		return nil
	}
	return sink.Emit(ctx, e)
}
