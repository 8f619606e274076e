// Package chatmsg defines the UI-ready chat records derived from server
// messages: text bubbles, interactive answer widgets, component openers and
// hidden protocol commands.
package chatmsg

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the chat record type understood by the chat renderer.
type Kind string

const (
	KindText            Kind = "text"
	KindIntention       Kind = "intention"
	KindOpenComponent   Kind = "open-component"
	KindHiddenCommand   Kind = "hidden-command"
	KindSelectOneButton Kind = "select-one-button"
	KindSelectMany      Kind = "select-many"
	KindLikert          Kind = "likert"
	KindLikertSlider    Kind = "likert-slider"
	KindFreeText        Kind = "free-text"
	KindFreeNumbers     Kind = "free-numbers"
	KindDateInput       Kind = "date-input"
	// KindUnknown marks a server message of a type the client does not know.
	// It is shown as a plain bubble.
	KindUnknown         Kind = "unknown"
)

// Interactive reports whether the kind is an answer-input widget.
func (k Kind) Interactive() bool {
	switch k {
	case KindSelectOneButton, KindSelectMany, KindLikert, KindLikertSlider,
		KindFreeText, KindFreeNumbers, KindDateInput:
		return true
	case KindText, KindIntention, KindOpenComponent, KindHiddenCommand, KindUnknown:
		return false
	}
	return false
}

// AuthorID is the renderer's user id for a bubble.
type AuthorID int

const (
	AuthorUser  AuthorID = 1
	AuthorCoach AuthorID = 2
)

// IntentionAnswerToServer marks answer widgets whose reply is sent back to the server.
const IntentionAnswerToServer = "answer-to-server-visible"

// Components opened by open-component records.
const (
	ComponentRichText = "rich-text"
	ComponentWeb      = "web"
	ComponentTour     = "tour"
	ComponentBackpack = "backpack"
	ComponentDiary    = "diary"
	ComponentPyramid  = "pyramid"
)

// AnswerOption is one selectable answer.
type AnswerOption struct {
	Label string
	Value string
}

// SliderBound is one end of a likert slider.
type SliderBound struct {
	Label string
	Value float64
}

// Custom carries the renderer-specific fields of a chat record. Which of the
// type-specific fields are meaningful depends on the record Kind.
type Custom struct {
	ClientVersion int64
	ClientStatus  string
	LinkedMedia   bool
	LinkedSurvey  bool
	Sticky        bool
	Disabled      bool
	Visible       bool
	ShouldAnimate bool

	// open-component
	Component   string
	Content     string
	ButtonTitle string
	InfoID      *string

	// answer widgets
	Intention   string
	Options     []AnswerOption
	Selected    *string
	Multiline   bool
	OnlyNumbers bool
	Placeholder string
	TextBefore  string
	TextAfter   string

	// date-input
	Mode    string
	DateMin *string
	DateMax *string

	// likert-slider
	SliderMin SliderBound
	SliderMax SliderBound
}

// Message is a single chat bubble or widget.
type Message struct {
	ID        string
	Kind      Kind
	Text      string
	Author    AuthorID
	CreatedAt int64
	Custom    Custom
}

// ID builds the chat record id for the sub-th record of a server message.
func ID(clientID string, sub int) string {
	return clientID + "-" + strconv.Itoa(sub)
}

// FirstID is the id every expansion of clientID starts with.
func FirstID(clientID string) string {
	return ID(clientID, 0)
}

// ClientIDOf recovers the server client-id from a chat record id.
func ClientIDOf(id string) string {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return id
	}
	return id[:i]
}

// SubIndex returns the expansion index encoded in a chat record id.
func SubIndex(id string) (int, bool) {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	c := m
	if m.Custom.InfoID != nil {
		v := *m.Custom.InfoID
		c.Custom.InfoID = &v
	}
	if m.Custom.Selected != nil {
		v := *m.Custom.Selected
		c.Custom.Selected = &v
	}
	if m.Custom.DateMin != nil {
		v := *m.Custom.DateMin
		c.Custom.DateMin = &v
	}
	if m.Custom.DateMax != nil {
		v := *m.Custom.DateMax
		c.Custom.DateMax = &v
	}
	if m.Custom.Options != nil {
		c.Custom.Options = append([]AnswerOption(nil), m.Custom.Options...)
	}
	return c
}

func (m Message) String() string {
	return fmt.Sprintf("%s[%s]", m.ID, m.Kind)
}
