package chatmsg

import "encoding/json"

// Map renders the message in the renderer's wire shape. Only values that
// google.protobuf.Struct can hold are used (nil, bool, int64, float64,
// string, []any, map[string]any).
func (m Message) Map() map[string]any {
	return map[string]any{
		"_id":       m.ID,
		"type":      string(m.Kind),
		"text":      m.Text,
		"createdAt": m.CreatedAt,
		"user":      map[string]any{"_id": int64(m.Author)},
		"custom":    m.customMap(),
	}
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

func (m Message) customMap() map[string]any {
	c := m.Custom
	out := map[string]any{
		"clientVersion": c.ClientVersion,
		"clientStatus":  c.ClientStatus,
		"sticky":        c.Sticky,
		"visible":       c.Visible,
	}
	if !m.Kind.Interactive() {
		out["disabled"] = c.Disabled
		out["linkedMedia"] = c.LinkedMedia
		out["linkedSurvey"] = c.LinkedSurvey
	}
	if c.ShouldAnimate {
		out["shouldAnimate"] = true
	}
	if c.Intention != "" {
		out["intention"] = c.Intention
	}

	switch m.Kind {
	case KindOpenComponent:
		out["component"] = c.Component
		out["buttonTitle"] = c.ButtonTitle
		if c.Content != "" {
			out["content"] = c.Content
		}
		if c.InfoID != nil {
			out["infoId"] = *c.InfoID
		}
	case KindSelectOneButton:
		out["options"] = optionList(c.Options, "button")
		out["selected"] = optionalString(c.Selected)
	case KindSelectMany, KindLikert:
		out["options"] = optionList(c.Options, "label")
	case KindFreeText, KindFreeNumbers:
		out["multiline"] = c.Multiline
		out["onlyNumbers"] = c.OnlyNumbers
		out["placeholder"] = emptyAsNil(c.Placeholder)
		out["textBefore"] = emptyAsNil(c.TextBefore)
		out["textAfter"] = emptyAsNil(c.TextAfter)
	case KindDateInput:
		out["mode"] = c.Mode
		out["placeholder"] = c.Placeholder
		out["min"] = optionalString(c.DateMin)
		out["max"] = optionalString(c.DateMax)
	case KindLikertSlider:
		out["min"] = map[string]any{"label": c.SliderMin.Label, "value": c.SliderMin.Value}
		out["max"] = map[string]any{"label": c.SliderMax.Label, "value": c.SliderMax.Value}
	case KindText, KindIntention, KindHiddenCommand, KindUnknown:
	}
	return out
}

func optionList(opts []AnswerOption, labelKey string) []any {
	out := make([]any, 0, len(opts))
	for _, o := range opts {
		out = append(out, map[string]any{labelKey: o.Label, "value": o.Value})
	}
	return out
}

func optionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func emptyAsNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
