package classifier

import (
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/markup"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

type command int

const (
	commandHidden command = iota
	commandShowInfo
	commandShowBackpackInfo
	commandShowWeb
	commandShowTour
	commandShowBackpack
	commandShowDiary
	commandShowPyramid
)

var commandsByName = map[string]command{
	"show-info":          commandShowInfo,
	"show-backpack-info": commandShowBackpackInfo,
	"show-web":           commandShowWeb,
	"show-tour":          commandShowTour,
	"show-backpack":      commandShowBackpack,
	"show-diary":         commandShowDiary,
	"show-pyramid":       commandShowPyramid,
}

func parseCommand(name string) command {
	if c, ok := commandsByName[name]; ok {
		return c
	}
	return commandHidden
}

// classifyCommand turns a COMMAND message into a component opener or a hidden
// command. Commands are never typed by the coach, so they carry the user id.
func classifyCommand(msg servermsg.ServerMessage, base chatmsg.Message) (chatmsg.Message, *BackpackInfo, error) {
	name, value := msg.Command()
	m := base
	m.Author = chatmsg.AuthorUser

	var info *BackpackInfo
	switch c := parseCommand(name); c {
	case commandShowInfo, commandShowBackpackInfo:
		title, content := markup.SplitButton(msg.Content)
		m.Kind = chatmsg.KindOpenComponent
		m.Custom.Component = chatmsg.ComponentRichText
		m.Custom.Content = content
		m.Custom.ButtonTitle = title
		m.Custom.InfoID = value
		if c == commandShowBackpackInfo {
			if value == nil {
				log.Warn().
					Str("component", "classifier").
					Str("client_id", msg.ClientID).
					Str("command", msg.ServerText).
					Msg("received show-backpack-info without id")
			} else {
				info = backpackInfo(msg, *value)
			}
		}

	case commandShowWeb:
		title, _ := markup.SplitButton(msg.Content)
		m.Kind = chatmsg.KindOpenComponent
		m.Custom.Component = chatmsg.ComponentWeb
		m.Custom.ButtonTitle = title
		m.Custom.InfoID = value
		if value != nil {
			m.Custom.Content = *value
		}

	case commandShowTour, commandShowBackpack, commandShowDiary, commandShowPyramid:
		title, err := markup.ButtonTitle(msg.Content)
		if err != nil {
			return chatmsg.Message{}, nil, &servermsg.ParseError{
				Op:       "classify command",
				ClientID: msg.ClientID,
				Reason:   name + " requires a <button> caption",
				Err:      err,
			}
		}
		m.Kind = chatmsg.KindOpenComponent
		m.Custom.Component = componentFor(c)
		m.Custom.ButtonTitle = title

	case commandHidden:
		m.Kind = chatmsg.KindHiddenCommand
	}
	return m, info, nil
}

func componentFor(c command) string {
	switch c {
	case commandShowTour:
		return chatmsg.ComponentTour
	case commandShowBackpack:
		return chatmsg.ComponentBackpack
	case commandShowDiary:
		return chatmsg.ComponentDiary
	case commandShowPyramid:
		return chatmsg.ComponentPyramid
	case commandHidden, commandShowInfo, commandShowBackpackInfo:
		return chatmsg.ComponentRichText
	case commandShowWeb:
		return chatmsg.ComponentWeb
	}
	return ""
}

func backpackInfo(msg servermsg.ServerMessage, id string) *BackpackInfo {
	meta, _ := markup.ParseMeta(msg.Content)
	_, content := markup.SplitButton(msg.Content)
	return &BackpackInfo{
		ID:        id,
		Content:   content,
		Component: chatmsg.ComponentRichText,
		Title:     meta.Title,
		Subtitle:  meta.Subtitle,
		Time:      int64(msg.Timestamp),
	}
}
