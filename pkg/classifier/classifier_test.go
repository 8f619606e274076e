package classifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

func coachMessage(id string, text string) servermsg.ServerMessage {
	return servermsg.ServerMessage{
		ClientID:      id,
		ClientVersion: 1,
		ClientStatus:  servermsg.StatusUnanswered,
		Author:        servermsg.AuthorServer,
		Type:          servermsg.TypePlain,
		ServerText:    text,
		Timestamp:     1_700_000_000_000,
	}
}

func ids(msgs []chatmsg.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestClassify_VariableExpandsToNothing(t *testing.T) {
	msg := coachMessage("v1", "name")
	msg.Type = servermsg.TypeVariable
	msg.ExpectsAnswer = true
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.Empty(t, res.Messages)
	require.Nil(t, res.BackpackInfo)
	require.NoError(t, res.Unsupported)
}

func TestClassify_PlainSplitsIntoBubbles(t *testing.T) {
	res, err := Classify(coachMessage("c1", "a\n---\nb\n---\nc"), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"c1-0", "c1-1", "c1-2"}, ids(res.Messages))
	for i, text := range []string{"a", "b", "c"} {
		m := res.Messages[i]
		require.Equal(t, chatmsg.KindText, m.Kind)
		require.Equal(t, text, m.Text)
		require.Equal(t, chatmsg.AuthorCoach, m.Author)
		require.True(t, m.Custom.Visible)
		require.Equal(t, int64(1_700_000_000_000), m.CreatedAt)
	}
}

func TestClassify_InputFollowsBubbles(t *testing.T) {
	msg := coachMessage("c2", "first\n---\nsecond")
	msg.ExpectsAnswer = true
	msg.AnswerFormat = &servermsg.AnswerFormat{
		Kind: FormatSelectOne,
		Options: servermsg.Options{Pairs: []servermsg.Option{
			{Label: "Yes", Value: "y"},
			{Label: "No", Value: "n"},
		}},
	}
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"c2-0", "c2-1", "c2-2"}, ids(res.Messages))

	input := res.Messages[2]
	require.Equal(t, chatmsg.KindSelectOneButton, input.Kind)
	require.Equal(t, chatmsg.AuthorUser, input.Author)
	require.Equal(t, chatmsg.IntentionAnswerToServer, input.Custom.Intention)
	require.Equal(t, []chatmsg.AnswerOption{{Label: "Yes", Value: "y"}, {Label: "No", Value: "n"}}, input.Custom.Options)
	require.True(t, input.Custom.Visible)
}

func TestClassify_IDsUniqueAndIncreasing(t *testing.T) {
	msg := coachMessage("c3", "x\n---\ny\n---\nz\n---\nw")
	msg.ContainsMedia = true
	msg.ExpectsAnswer = true
	msg.AnswerFormat = &servermsg.AnswerFormat{Kind: FormatFreeText}
	res, err := Classify(msg, nil)
	require.NoError(t, err)

	seen := map[string]struct{}{}
	prev := -1
	for _, m := range res.Messages {
		_, dup := seen[m.ID]
		require.False(t, dup, "duplicate id %s", m.ID)
		seen[m.ID] = struct{}{}
		require.Equal(t, "c3", chatmsg.ClientIDOf(m.ID))
		sub, ok := chatmsg.SubIndex(m.ID)
		require.True(t, ok)
		require.Greater(t, sub, prev)
		prev = sub
	}
	require.Len(t, res.Messages, 6)
}

func TestClassify_Idempotent(t *testing.T) {
	msg := coachMessage("c4", "hello\n---\nworld")
	msg.ContainsSurvey = true
	msg.ExpectsAnswer = true
	msg.AnswerFormat = &servermsg.AnswerFormat{
		Kind:    FormatDate,
		Options: servermsg.Options{Pairs: []servermsg.Option{{Label: "Pick a day", Value: ""}, {Label: "min", Value: "2024-01-01"}}},
	}
	fake := int64(42)
	first, err := Classify(msg, &fake)
	require.NoError(t, err)
	second, err := Classify(msg, &fake)
	require.NoError(t, err)
	if diff := cmp.Diff(first.Messages, second.Messages); diff != "" {
		t.Fatalf("classification not idempotent (-first +second):\n%s", diff)
	}
}

func TestClassify_MediaPlaceholder(t *testing.T) {
	msg := coachMessage("m1", "")
	msg.ContainsMedia = true
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	require.Equal(t, servermsg.MediaPlaceholder, res.Messages[0].Text)
	require.True(t, res.Messages[0].Custom.Visible)
	require.True(t, res.Messages[0].Custom.LinkedMedia)

	msg = coachMessage("m2", "look")
	msg.ContainsMedia = true
	msg.ContainsSurvey = true
	res, err = Classify(msg, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"look", servermsg.MediaPlaceholder, servermsg.SurveyPlaceholder},
		[]string{res.Messages[0].Text, res.Messages[1].Text, res.Messages[2].Text})

	msg = coachMessage("m3", "already "+servermsg.MediaPlaceholder)
	msg.ContainsMedia = true
	res, err = Classify(msg, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
}

func TestClassify_ShowTour(t *testing.T) {
	msg := coachMessage("t1", "show-tour some-ignored-token")
	msg.Type = servermsg.TypeCommand
	msg.Content = "<button>Start</button>"
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	m := res.Messages[0]
	require.Equal(t, "t1-0", m.ID)
	require.Equal(t, chatmsg.KindOpenComponent, m.Kind)
	require.Equal(t, chatmsg.ComponentTour, m.Custom.Component)
	require.Equal(t, "Start", m.Custom.ButtonTitle)
	require.Equal(t, chatmsg.AuthorUser, m.Author)
	require.True(t, m.Custom.Visible)
}

func TestClassify_ComponentWithoutButtonIsParseError(t *testing.T) {
	for _, cmd := range []string{"show-tour", "show-backpack", "show-diary", "show-pyramid"} {
		msg := coachMessage("t2", cmd)
		msg.Type = servermsg.TypeCommand
		msg.Content = "<p>no caption</p>"
		_, err := Classify(msg, nil)
		require.Error(t, err, cmd)
		require.True(t, servermsg.IsParseError(err), cmd)
	}
}

func TestClassify_ShowBackpackInfo(t *testing.T) {
	msg := coachMessage("b1", "show-backpack-info info-7")
	msg.Type = servermsg.TypeCommand
	msg.Content = `<meta title="Sleep\nbasics" subtitle="Week 1"><button>Read more</button><p>Body</p>`
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	m := res.Messages[0]
	require.Equal(t, chatmsg.KindOpenComponent, m.Kind)
	require.Equal(t, chatmsg.ComponentRichText, m.Custom.Component)
	require.Equal(t, "Read more", m.Custom.ButtonTitle)
	require.Equal(t, `<meta title="Sleep\nbasics" subtitle="Week 1"><p>Body</p>`, m.Custom.Content)
	require.NotNil(t, m.Custom.InfoID)
	require.Equal(t, "info-7", *m.Custom.InfoID)

	require.NotNil(t, res.BackpackInfo)
	require.Equal(t, BackpackInfo{
		ID:        "info-7",
		Content:   `<meta title="Sleep\nbasics" subtitle="Week 1"><p>Body</p>`,
		Component: chatmsg.ComponentRichText,
		Title:     "Sleep\nbasics",
		Subtitle:  "Week 1",
		Time:      1_700_000_000_000,
	}, *res.BackpackInfo)
}

func TestClassify_ShowWeb(t *testing.T) {
	msg := coachMessage("w1", "show-web https://example.org/page")
	msg.Type = servermsg.TypeCommand
	msg.Content = "<button>Open</button>"
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	m := res.Messages[0]
	require.Equal(t, chatmsg.ComponentWeb, m.Custom.Component)
	require.Equal(t, "Open", m.Custom.ButtonTitle)
	require.Equal(t, "https://example.org/page", m.Custom.Content)
}

func TestClassify_HiddenCommand(t *testing.T) {
	msg := coachMessage("h1", "reload-settings now")
	msg.Type = servermsg.TypeCommand
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	require.Equal(t, chatmsg.KindHiddenCommand, res.Messages[0].Kind)
	require.False(t, res.Messages[0].Custom.Visible)
}

func TestClassify_UnknownTypePassesThrough(t *testing.T) {
	msg := coachMessage("q1", "a\n---\nb")
	msg.Type = servermsg.Type("QUESTION")
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	m := res.Messages[0]
	require.Equal(t, "q1-0", m.ID)
	require.Equal(t, chatmsg.KindUnknown, m.Kind)
	require.Equal(t, "a\n---\nb", m.Text)
	require.Equal(t, chatmsg.AuthorCoach, m.Author)
	require.True(t, m.Custom.Visible)
	require.False(t, m.Kind.Interactive())

	msg.ServerText = ""
	res, err = Classify(msg, nil)
	require.NoError(t, err)
	require.False(t, res.Messages[0].Custom.Visible)
}

func TestClassify_Visibility(t *testing.T) {
	intention := coachMessage("i1", "")
	intention.Type = servermsg.TypeIntention
	res, err := Classify(intention, nil)
	require.NoError(t, err)
	require.False(t, res.Messages[0].Custom.Visible)

	intention.ServerText = "intent"
	res, err = Classify(intention, nil)
	require.NoError(t, err)
	require.True(t, res.Messages[0].Custom.Visible)

	answered := coachMessage("a1", "question")
	answered.ClientStatus = servermsg.StatusAnsweredAndProcessedByServer
	answered.ExpectsAnswer = true
	answered.AnswerFormat = &servermsg.AnswerFormat{Kind: FormatLikert}
	res, err = Classify(answered, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	require.True(t, res.Messages[0].Custom.Visible, "settled text stays visible")
	require.False(t, res.Messages[1].Custom.Visible, "settled input is hidden")

	opener := coachMessage("o1", "show-diary")
	opener.Type = servermsg.TypeCommand
	opener.Content = "<button>Diary</button>"
	opener.ClientStatus = servermsg.StatusAnsweredOnClient
	res, err = Classify(opener, nil)
	require.NoError(t, err)
	require.False(t, res.Messages[0].Custom.Visible)
}

func TestClassify_UnsupportedAnswer(t *testing.T) {
	msg := coachMessage("u1", "what now?")
	msg.ExpectsAnswer = true
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.ErrorIs(t, res.Unsupported, ErrUnsupportedAnswer)
	require.Len(t, res.Messages, 1)

	msg.AnswerFormat = &servermsg.AnswerFormat{Kind: "emoji-picker"}
	res, err = Classify(msg, nil)
	require.NoError(t, err)
	require.ErrorIs(t, res.Unsupported, ErrUnsupportedAnswer)
	require.Len(t, res.Messages, 1)
}

func TestClassify_Timestamps(t *testing.T) {
	msg := coachMessage("ts", "hi")
	fake := servermsg.Millis(5)
	msg.FakeTimestamp = &fake
	res, err := Classify(msg, nil)
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Messages[0].CreatedAt)

	override := int64(9)
	res, err = Classify(msg, &override)
	require.NoError(t, err)
	require.Equal(t, int64(9), res.Messages[0].CreatedAt)

	user := coachMessage("us", "")
	user.Author = servermsg.AuthorUser
	user.UserText = "my answer"
	user.UserTimestamp = 77
	res, err = Classify(user, &override)
	require.NoError(t, err)
	require.Equal(t, "my answer", res.Messages[0].Text)
	require.Equal(t, chatmsg.AuthorUser, res.Messages[0].Author)
	require.Equal(t, int64(77), res.Messages[0].CreatedAt)
}

func TestAnswerInput_FreeText(t *testing.T) {
	msg := coachMessage("f1", "")
	msg.AnswerFormat = &servermsg.AnswerFormat{Kind: FormatFreeNumbers, Options: servermsg.Options{Text: "I sleep _ hours"}}
	m, err := answerInput(msg, "f1-1", 0)
	require.NoError(t, err)
	require.Equal(t, chatmsg.KindFreeNumbers, m.Kind)
	require.True(t, m.Custom.OnlyNumbers)
	require.Equal(t, "I sleep ", m.Custom.TextBefore)
	require.Equal(t, " hours", m.Custom.TextAfter)
	require.Empty(t, m.Custom.Placeholder)

	msg.AnswerFormat = &servermsg.AnswerFormat{Kind: FormatFreeTextMultiline, Options: servermsg.Options{Text: "Tell me more"}}
	m, err = answerInput(msg, "f1-1", 0)
	require.NoError(t, err)
	require.Equal(t, chatmsg.KindFreeText, m.Kind)
	require.True(t, m.Custom.Multiline)
	require.Equal(t, "Tell me more", m.Custom.Placeholder)
}

func TestAnswerInput_Date(t *testing.T) {
	msg := coachMessage("d1", "")
	msg.AnswerFormat = &servermsg.AnswerFormat{
		Kind: FormatDateAndTime,
		Options: servermsg.Options{Pairs: []servermsg.Option{
			{Label: "When?", Value: ""},
			{Label: "min", Value: "2024-01-01"},
			{Label: "max", Value: "2024-12-31"},
		}},
	}
	m, err := answerInput(msg, "d1-1", 0)
	require.NoError(t, err)
	require.Equal(t, chatmsg.KindDateInput, m.Kind)
	require.Equal(t, "datetime", m.Custom.Mode)
	require.Equal(t, "When?", m.Custom.Placeholder)
	require.Equal(t, "2024-01-01", *m.Custom.DateMin)
	require.Equal(t, "2024-12-31", *m.Custom.DateMax)

	msg.AnswerFormat = &servermsg.AnswerFormat{Kind: FormatTime}
	m, err = answerInput(msg, "d1-1", 0)
	require.NoError(t, err)
	require.Equal(t, "time", m.Custom.Mode)
	require.Nil(t, m.Custom.DateMin)
}

func TestAnswerInput_Slider(t *testing.T) {
	msg := coachMessage("s1", "")
	msg.AnswerFormat = &servermsg.AnswerFormat{Kind: FormatLikertSlider}
	m, err := answerInput(msg, "s1-1", 0)
	require.NoError(t, err)
	require.Equal(t, chatmsg.SliderBound{Label: "Min", Value: 0}, m.Custom.SliderMin)
	require.Equal(t, chatmsg.SliderBound{Label: "Max", Value: 10}, m.Custom.SliderMax)

	msg.AnswerFormat.Options = servermsg.Options{Pairs: []servermsg.Option{
		{Label: "Never", Value: "1"},
		{Label: "Always", Value: "lots"},
	}}
	m, err = answerInput(msg, "s1-1", 0)
	require.NoError(t, err)
	require.Equal(t, chatmsg.SliderBound{Label: "Never", Value: 1}, m.Custom.SliderMin)
	require.Equal(t, chatmsg.SliderBound{Label: "Always", Value: 10}, m.Custom.SliderMax)
}
