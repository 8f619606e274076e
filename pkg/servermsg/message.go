// Package servermsg models the messages pushed by the conversation backend and
// decodes them from the Deepstream JSON records the backend publishes.
package servermsg

import (
	"strings"
)

// Author identifies who wrote a server message.
type Author string

const (
	AuthorServer Author = "SERVER"
	AuthorUser   Author = "USER"
)

// Type is the server-side message type.
type Type string

const (
	TypeVariable  Type = "VARIABLE"
	TypeIntention Type = "INTENTION"
	TypePlain     Type = "PLAIN"
	TypeCommand   Type = "COMMAND"
)

// ClientStatus tracks the answer state of a message on the client.
type ClientStatus string

const (
	StatusUnanswered                      ClientStatus = "UNANSWERED"
	StatusAnsweredOnClient                ClientStatus = "ANSWERED_ON_CLIENT"
	StatusAnsweredAndProcessedByServer    ClientStatus = "ANSWERED_AND_PROCESSED_BY_SERVER"
	StatusNotAnsweredAndProcessedByServer ClientStatus = "NOT_ANSWERED_AND_PROCESSED_BY_SERVER"
)

// Settled reports whether the status is one of the answered/processed states.
// Interactive elements of settled messages are never rendered again.
func (s ClientStatus) Settled() bool {
	switch s {
	case StatusAnsweredOnClient, StatusAnsweredAndProcessedByServer, StatusNotAnsweredAndProcessedByServer:
		return true
	case StatusUnanswered:
		return false
	}
	return false
}

// Placeholder markers inserted into message text for linked objects.
const (
	MediaPlaceholder  = "####LINKED_MEDIA_OBJECT####"
	SurveyPlaceholder = "####LINKED_SURVEY####"
)

// BubbleSeparator splits a PLAIN message into several chat bubbles.
const BubbleSeparator = "\n---\n"

// AnswerFormat describes the input widget expected for an answer.
type AnswerFormat struct {
	Kind    string  `json:"type"`
	Options Options `json:"options"`
}

// ServerMessage is the canonical message record pushed by the backend.
// A new version of the same ClientID replaces the previous one.
type ServerMessage struct {
	ClientID       string        `json:"client-id"`
	ClientVersion  int64         `json:"client-version"`
	ClientStatus   ClientStatus  `json:"client-status"`
	ClientRead     bool          `json:"client-read"`
	Author         Author        `json:"author"`
	Type           Type          `json:"type"`
	ServerText     string        `json:"server-message"`
	UserText       string        `json:"user-message"`
	Timestamp      Millis        `json:"message-timestamp"`
	UserTimestamp  Millis        `json:"user-timestamp,omitempty"`
	FakeTimestamp  *Millis       `json:"fake-timestamp,omitempty"`
	ContainsMedia  bool          `json:"contains-media"`
	ContainsSurvey bool          `json:"contains-survey"`
	Sticky         bool          `json:"sticky"`
	Disabled       bool          `json:"disabled"`
	ExpectsAnswer  bool          `json:"expects-answer"`
	AnswerFormat   *AnswerFormat `json:"answer-format,omitempty"`
	Content        string        `json:"content,omitempty"`
}

// Text returns the text written by the message author.
func (m *ServerMessage) Text() string {
	if m.Author == AuthorUser {
		return m.UserText
	}
	return m.ServerText
}

// Command splits a COMMAND message's server text into command type and the
// optional command value. The value is the second space-separated token.
func (m *ServerMessage) Command() (string, *string) {
	parts := strings.Split(m.ServerText, " ")
	if len(parts) > 1 {
		v := parts[1]
		return parts[0], &v
	}
	return parts[0], nil
}

// Validate checks the fields every component relies on.
func (m *ServerMessage) Validate() error {
	if strings.TrimSpace(m.ClientID) == "" {
		return &ParseError{Op: "validate", Reason: "client-id is empty"}
	}
	return nil
}
