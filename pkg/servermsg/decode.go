package servermsg

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Millis is a millisecond unix timestamp. The backend sends it either as a
// JSON number or as a numeric string.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*m = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Wrapf(err, "timestamp %q", s)
		}
		*m = Millis(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*m = Millis(f)
	return nil
}

// Option is one (label, value) pair of an answer format.
type Option struct {
	Label string
	Value string
}

// Options holds answer-format options. Most formats carry ordered pairs; the
// free-text formats carry a single placeholder string instead.
type Options struct {
	Pairs []Option
	Text  string
}

// Empty reports whether no options were supplied at all.
func (o Options) Empty() bool {
	return len(o.Pairs) == 0 && o.Text == ""
}

func (o *Options) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*o = Options{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &o.Text)
	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(data, &rows); err != nil {
			return err
		}
		for _, row := range rows {
			var cells []json.RawMessage
			if err := json.Unmarshal(row, &cells); err != nil {
				// a flat list of labels is tolerated
				label, lerr := scalarString(row)
				if lerr != nil {
					return errors.Wrap(err, "answer option")
				}
				o.Pairs = append(o.Pairs, Option{Label: label})
				continue
			}
			var opt Option
			if len(cells) > 0 {
				s, err := scalarString(cells[0])
				if err != nil {
					return err
				}
				opt.Label = s
			}
			if len(cells) > 1 {
				s, err := scalarString(cells[1])
				if err != nil {
					return err
				}
				opt.Value = s
			}
			o.Pairs = append(o.Pairs, opt)
		}
		return nil
	}
	return errors.Errorf("unsupported answer options %s", string(data))
}

func (o Options) MarshalJSON() ([]byte, error) {
	if o.Text != "" {
		return json.Marshal(o.Text)
	}
	if o.Pairs == nil {
		return []byte("null"), nil
	}
	rows := make([][]string, 0, len(o.Pairs))
	for _, p := range o.Pairs {
		rows = append(rows, []string{p.Label, p.Value})
	}
	return json.Marshal(rows)
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.Wrap(err, "option value")
	}
	return n.String(), nil
}

// Decode parses a single Deepstream message record.
func Decode(data []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ServerMessage{}, &ParseError{Op: "decode", Err: err}
	}
	if err := m.Validate(); err != nil {
		return ServerMessage{}, err
	}
	return m, nil
}

// DecodeList parses a JSON array of message records, in arrival order.
func DecodeList(data []byte) ([]ServerMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Op: "decode list", Err: err}
	}
	out := make([]ServerMessage, 0, len(raw))
	for _, r := range raw {
		m, err := Decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
