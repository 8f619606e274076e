package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
)

var (
	coachStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("212")).Padding(0, 1)
	componentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#25A065")).Padding(0, 1)
	widgetStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	stickyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// renderTranscript draws the visible chat: coach bubbles on the left, user
// bubbles and widgets on the right.
func renderTranscript(msgs []chatmsg.Message, width int) string {
	if width <= 20 {
		width = 80
	}
	bubbleWidth := width * 3 / 4

	var b strings.Builder
	for _, m := range msgs {
		if !m.Custom.Visible {
			continue
		}
		body := bubbleBody(m)
		if m.Custom.Sticky {
			body = stickyStyle.Render("* ") + body
		}
		if m.Author == chatmsg.AuthorCoach {
			b.WriteString(coachStyle.MaxWidth(bubbleWidth).Render(body))
		} else {
			bubble := userStyle.MaxWidth(bubbleWidth).Render(body)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func bubbleBody(m chatmsg.Message) string {
	switch m.Kind {
	case chatmsg.KindOpenComponent:
		return componentStyle.Render(fmt.Sprintf("%s ▸ %s", m.Custom.ButtonTitle, m.Custom.Component))
	case chatmsg.KindSelectOneButton, chatmsg.KindSelectMany, chatmsg.KindLikert:
		labels := make([]string, 0, len(m.Custom.Options))
		for _, o := range m.Custom.Options {
			labels = append(labels, "( "+o.Label+" )")
		}
		return widgetStyle.Render(string(m.Kind)+": ") + strings.Join(labels, " ")
	case chatmsg.KindLikertSlider:
		return widgetStyle.Render(fmt.Sprintf("%s: %s %g ──── %g %s", m.Kind,
			m.Custom.SliderMin.Label, m.Custom.SliderMin.Value, m.Custom.SliderMax.Value, m.Custom.SliderMax.Label))
	case chatmsg.KindFreeText, chatmsg.KindFreeNumbers:
		field := m.Custom.Placeholder
		if field == "" {
			field = "…"
		}
		return widgetStyle.Render(string(m.Kind)+": ") + m.Custom.TextBefore + "[" + field + "]" + m.Custom.TextAfter
	case chatmsg.KindDateInput:
		return widgetStyle.Render(fmt.Sprintf("%s (%s): [%s]", m.Kind, m.Custom.Mode, m.Custom.Placeholder))
	case chatmsg.KindText, chatmsg.KindIntention, chatmsg.KindHiddenCommand, chatmsg.KindUnknown:
	}
	return m.Text
}
