// Package classifier expands a server message into the chat records shown by
// the chat renderer. Classification is a pure function of its input: the only
// secondary output is the backpack info record of show-backpack-info commands,
// returned alongside the messages.
package classifier

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// ErrUnsupportedAnswer signals a message that expects an answer the client
// cannot render an input for (no answer format, or an unknown one).
var ErrUnsupportedAnswer = errors.New("classifier: unsupported answer input")

// BackpackInfo is an info page remembered in the user's backpack.
type BackpackInfo struct {
	ID        string
	Content   string
	Component string
	Title     string
	Subtitle  string
	Time      int64
}

// Result is the expansion of one server message.
type Result struct {
	Messages     []chatmsg.Message
	BackpackInfo *BackpackInfo
	// Unsupported wraps ErrUnsupportedAnswer when an expected answer has no
	// input widget. The remaining messages are still valid.
	Unsupported error
}

// Classify converts a server message into chat records. fakeTimestamp, when
// non-nil, overrides the creation time of server-authored records.
//
// A returned error is always a *servermsg.ParseError; the message should be
// dropped and the session continued.
func Classify(msg servermsg.ServerMessage, fakeTimestamp *int64) (Result, error) {
	if msg.Type == servermsg.TypeVariable {
		return Result{}, nil
	}

	base := baseMessage(msg, fakeTimestamp)
	var res Result
	sub := 1

	switch msg.Type {
	case servermsg.TypeIntention:
		base.Kind = chatmsg.KindIntention
		res.Messages = append(res.Messages, base)

	case servermsg.TypePlain:
		bubbles := []string{base.Text}
		if base.Text != "" {
			bubbles = strings.Split(base.Text, servermsg.BubbleSeparator)
		}
		for i, text := range bubbles {
			m := base.Clone()
			m.ID = chatmsg.ID(msg.ClientID, i)
			m.Kind = chatmsg.KindText
			m.Text = text
			res.Messages = append(res.Messages, m)
		}
		sub = len(bubbles)

	case servermsg.TypeCommand:
		m, info, err := classifyCommand(msg, base)
		if err != nil {
			return Result{}, err
		}
		res.Messages = append(res.Messages, m)
		res.BackpackInfo = info

	default:
		log.Warn().
			Str("component", "classifier").
			Str("client_id", msg.ClientID).
			Str("type", string(msg.Type)).
			Msg("received message of unknown type, passing it through unclassified")
		base.Kind = chatmsg.KindUnknown
		res.Messages = append(res.Messages, base)
	}

	if msg.ExpectsAnswer {
		input, err := answerInput(msg, chatmsg.ID(msg.ClientID, sub), base.CreatedAt)
		if err != nil {
			res.Unsupported = err
			log.Debug().
				Str("component", "classifier").
				Str("client_id", msg.ClientID).
				Err(err).
				Msg("no answer input rendered")
		} else {
			res.Messages = append(res.Messages, input)
		}
	}

	for i := range res.Messages {
		applyVisibility(&res.Messages[i], msg.ClientStatus)
	}
	return res, nil
}

func baseMessage(msg servermsg.ServerMessage, fakeTimestamp *int64) chatmsg.Message {
	m := chatmsg.Message{
		ID: chatmsg.FirstID(msg.ClientID),
		Custom: chatmsg.Custom{
			ClientVersion: msg.ClientVersion,
			ClientStatus:  string(msg.ClientStatus),
			LinkedMedia:   msg.ContainsMedia,
			LinkedSurvey:  msg.ContainsSurvey,
			Sticky:        msg.Sticky,
			Disabled:      msg.Disabled,
			Visible:       true,
		},
	}

	switch msg.Author {
	case servermsg.AuthorUser:
		m.Text = msg.UserText
		m.Author = chatmsg.AuthorUser
		m.CreatedAt = int64(msg.UserTimestamp)
		if m.CreatedAt == 0 {
			m.CreatedAt = int64(msg.Timestamp)
		}
	case servermsg.AuthorServer:
		fallthrough
	default:
		m.Text = msg.ServerText
		m.Author = chatmsg.AuthorCoach
		switch {
		case fakeTimestamp != nil:
			m.CreatedAt = *fakeTimestamp
		case msg.FakeTimestamp != nil:
			m.CreatedAt = int64(*msg.FakeTimestamp)
		default:
			m.CreatedAt = int64(msg.Timestamp)
		}
	}

	if msg.ContainsMedia {
		m.Text = withPlaceholder(m.Text, servermsg.MediaPlaceholder)
	}
	if msg.ContainsSurvey {
		m.Text = withPlaceholder(m.Text, servermsg.SurveyPlaceholder)
	}
	return m
}

// withPlaceholder makes sure a linked object shows up as its own bubble.
func withPlaceholder(text, marker string) string {
	if strings.Contains(text, marker) {
		return text
	}
	if text == "" {
		return marker
	}
	return text + servermsg.BubbleSeparator + marker
}

func applyVisibility(m *chatmsg.Message, status servermsg.ClientStatus) {
	switch m.Kind {
	case chatmsg.KindText, chatmsg.KindIntention, chatmsg.KindUnknown:
		if m.Text == "" {
			m.Custom.Visible = false
		}
	case chatmsg.KindHiddenCommand:
		m.Custom.Visible = false
	case chatmsg.KindOpenComponent, chatmsg.KindSelectOneButton, chatmsg.KindSelectMany,
		chatmsg.KindLikert, chatmsg.KindLikertSlider, chatmsg.KindFreeText,
		chatmsg.KindFreeNumbers, chatmsg.KindDateInput:
	}
	if m.Kind != chatmsg.KindText && status.Settled() {
		m.Custom.Visible = false
	}
}
