package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

// fixture is a scripted conversation for replay. JSON fixtures are accepted
// too, being valid YAML.
type fixture struct {
	// Now is the replay clock start in unix milliseconds; zero means the
	// current time.
	Now           int64            `yaml:"now"`
	Hydrated      []map[string]any `yaml:"hydrated"`
	Live          []map[string]any `yaml:"live"`
	// LiveGap is how far the replay clock moves before each live message.
	LiveGap       time.Duration    `yaml:"live-gap"`
	LoadEarlier   int              `yaml:"load-earlier"`
	WebViewEvents []string         `yaml:"webview-events"`
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture %s", path)
	}
	return parseFixture(data)
}

func parseFixture(data []byte) (*fixture, error) {
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse fixture")
	}
	if f.LiveGap < 0 {
		return nil, errors.New("fixture: live-gap must not be negative")
	}
	if f.LoadEarlier < 0 {
		return nil, errors.New("fixture: load-earlier must not be negative")
	}
	return &f, nil
}

func decodeMessages(raw []map[string]any) ([]servermsg.ServerMessage, error) {
	if raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "fixture messages")
	}
	msgs, err := servermsg.DecodeList(b)
	if err != nil {
		return nil, errors.Wrap(err, "fixture messages")
	}
	return msgs, nil
}
