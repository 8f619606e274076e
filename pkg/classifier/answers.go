package classifier

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// Answer format kinds sent by the backend.
const (
	FormatSelectOne         = "select-one"
	FormatSelectMany        = "select-many"
	FormatLikert            = "likert"
	FormatLikertSlider      = "likert-slider"
	FormatFreeText          = "free-text"
	FormatFreeTextMultiline = "free-text-multiline"
	FormatFreeNumbers       = "free-numbers"
	FormatDate              = "date"
	FormatTime              = "time"
	FormatDateAndTime       = "date-and-time"
)

var (
	defaultSliderMin = chatmsg.SliderBound{Label: "Min", Value: 0}
	defaultSliderMax = chatmsg.SliderBound{Label: "Max", Value: 10}
)

// answerInput builds the user-side input widget for a message expecting an answer.
func answerInput(msg servermsg.ServerMessage, id string, createdAt int64) (chatmsg.Message, error) {
	if msg.AnswerFormat == nil {
		// free-form replies without a format have no widget yet
		return chatmsg.Message{}, ErrUnsupportedAnswer
	}
	format := msg.AnswerFormat
	opts := format.Options

	m := chatmsg.Message{
		ID:        id,
		Author:    chatmsg.AuthorUser,
		CreatedAt: createdAt,
		Custom: chatmsg.Custom{
			ClientVersion: msg.ClientVersion,
			ClientStatus:  string(msg.ClientStatus),
			Sticky:        msg.Sticky,
			Visible:       true,
			Intention:     chatmsg.IntentionAnswerToServer,
		},
	}

	switch format.Kind {
	case FormatSelectOne:
		m.Kind = chatmsg.KindSelectOneButton
		m.Custom.Options = answerOptions(opts)

	case FormatSelectMany:
		m.Kind = chatmsg.KindSelectMany
		m.Custom.Options = answerOptions(opts)

	case FormatLikert:
		m.Kind = chatmsg.KindLikert
		m.Custom.Options = answerOptions(opts)

	case FormatFreeText, FormatFreeTextMultiline, FormatFreeNumbers:
		m.Kind = chatmsg.KindFreeText
		switch format.Kind {
		case FormatFreeTextMultiline:
			m.Custom.Multiline = true
		case FormatFreeNumbers:
			m.Kind = chatmsg.KindFreeNumbers
			m.Custom.OnlyNumbers = true
		}
		placeholder := opts.Text
		if strings.Contains(placeholder, "_") {
			parts := strings.Split(placeholder, "_")
			m.Custom.TextBefore = parts[0]
			m.Custom.TextAfter = parts[1]
		} else {
			m.Custom.Placeholder = placeholder
		}

	case FormatDate, FormatTime, FormatDateAndTime:
		m.Kind = chatmsg.KindDateInput
		m.Custom.Mode = "datetime"
		switch format.Kind {
		case FormatDate:
			m.Custom.Mode = "date"
		case FormatTime:
			m.Custom.Mode = "time"
		}
		if len(opts.Pairs) > 0 {
			m.Custom.Placeholder = opts.Pairs[0].Label
		}
		for _, p := range opts.Pairs {
			v := p.Value
			switch p.Label {
			case "min":
				m.Custom.DateMin = &v
			case "max":
				m.Custom.DateMax = &v
			}
		}

	case FormatLikertSlider:
		m.Kind = chatmsg.KindLikertSlider
		m.Custom.SliderMin = defaultSliderMin
		m.Custom.SliderMax = defaultSliderMax
		if len(opts.Pairs) > 0 {
			m.Custom.SliderMin = sliderBound(msg.ClientID, opts.Pairs[0], defaultSliderMin)
		}
		if len(opts.Pairs) > 1 {
			m.Custom.SliderMax = sliderBound(msg.ClientID, opts.Pairs[1], defaultSliderMax)
		}

	default:
		log.Warn().
			Str("component", "classifier").
			Str("client_id", msg.ClientID).
			Str("answer_format", format.Kind).
			Msg("unknown answer format")
		return chatmsg.Message{}, errors.Wrapf(ErrUnsupportedAnswer, "answer format %q", format.Kind)
	}
	return m, nil
}

func answerOptions(opts servermsg.Options) []chatmsg.AnswerOption {
	out := make([]chatmsg.AnswerOption, 0, len(opts.Pairs))
	for _, p := range opts.Pairs {
		out = append(out, chatmsg.AnswerOption{Label: p.Label, Value: p.Value})
	}
	return out
}

func sliderBound(clientID string, opt servermsg.Option, fallback chatmsg.SliderBound) chatmsg.SliderBound {
	v, err := strconv.ParseFloat(strings.TrimSpace(opt.Value), 64)
	if err != nil {
		log.Warn().
			Str("component", "classifier").
			Str("client_id", clientID).
			Str("value", opt.Value).
			Msg("likert-slider bound is not numeric, keeping default")
		return chatmsg.SliderBound{Label: opt.Label, Value: fallback.Value}
	}
	return chatmsg.SliderBound{Label: opt.Label, Value: v}
}
