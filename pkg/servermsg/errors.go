package servermsg

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParseError reports malformed inbound data: an undecodable JSON payload, a
// command without required markup, or a record missing mandatory fields.
// The offending message is dropped; the session continues.
type ParseError struct {
	Op       string
	ClientID string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.ClientID != "" {
		msg += fmt.Sprintf(" (client-id %s)", e.ClientID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
