// Package config provides YAML-based configuration loading for coachchat.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/coachchat/pkg/delivery"
	"github.com/go-go-golems/coachchat/pkg/history"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the top-level configuration, loaded from config.yaml.
type Config struct {
	Messages        MessagesConfig        `yaml:"messages"`
	TypingIndicator TypingIndicatorConfig `yaml:"typing-indicator"`
	Store           StoreConfig           `yaml:"store"`
	Transport       TransportConfig       `yaml:"transport"`
	Server          ServerConfig          `yaml:"server"`
}

// MessagesConfig sizes history pages, in visible chat records.
type MessagesConfig struct {
	InitialMinimalShown int `yaml:"initial-minimal-shown"`
	IncrementShownBy    int `yaml:"increment-shown-by"`
}

// TypingIndicatorConfig drives the simulated coach typing.
type TypingIndicatorConfig struct {
	CoachTypingSpeed          int           `yaml:"coach-typing-speed"`
	MaxTypingDelay            time.Duration `yaml:"max-typing-delay"`
	InteractiveElementDelay   time.Duration `yaml:"interactive-element-delay"`
	FastMode                  bool          `yaml:"fast-mode"`
	FastModeDelay             time.Duration `yaml:"fast-mode-delay"`
	DelayedPresentationWindow time.Duration `yaml:"delayed-presentation-window"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite-path"`
}

type TransportConfig struct {
	Driver        string      `yaml:"driver"`
	InboundTopic  string      `yaml:"inbound-topic"`
	OutboundTopic string      `yaml:"outbound-topic"`
	Redis         RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the Redis Streams transport.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Messages.InitialMinimalShown == 0 {
		c.Messages.InitialMinimalShown = 10
	}
	if c.Messages.IncrementShownBy == 0 {
		c.Messages.IncrementShownBy = 10
	}
	t := &c.TypingIndicator
	if t.CoachTypingSpeed == 0 {
		t.CoachTypingSpeed = 700
	}
	if t.MaxTypingDelay == 0 {
		t.MaxTypingDelay = 1500 * time.Millisecond
	}
	if t.InteractiveElementDelay == 0 {
		t.InteractiveElementDelay = 500 * time.Millisecond
	}
	if t.FastModeDelay == 0 {
		t.FastModeDelay = 50 * time.Millisecond
	}
	if t.DelayedPresentationWindow == 0 {
		t.DelayedPresentationWindow = 5 * time.Minute
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "coachchat.db"
	}
	if c.Transport.Driver == "" {
		c.Transport.Driver = DriverMemory
	}
	if c.Transport.InboundTopic == "" {
		c.Transport.InboundTopic = "coach.messages"
	}
	if c.Transport.OutboundTopic == "" {
		c.Transport.OutboundTopic = "coach.outbound"
	}
	if c.Transport.Redis.Addr == "" {
		c.Transport.Redis.Addr = "localhost:6379"
	}
	if c.Transport.Redis.Group == "" {
		c.Transport.Redis.Group = "coach-ui"
	}
	if c.Transport.Redis.Consumer == "" {
		c.Transport.Redis.Consumer = "ui-1"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Messages.InitialMinimalShown < 0 {
		errs = append(errs, "messages.initial-minimal-shown must not be negative")
	}
	if c.Messages.IncrementShownBy < 0 {
		errs = append(errs, "messages.increment-shown-by must not be negative")
	}
	t := c.TypingIndicator
	if t.CoachTypingSpeed < 0 {
		errs = append(errs, "typing-indicator.coach-typing-speed must be positive")
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"max-typing-delay", t.MaxTypingDelay},
		{"interactive-element-delay", t.InteractiveElementDelay},
		{"fast-mode-delay", t.FastModeDelay},
		{"delayed-presentation-window", t.DelayedPresentationWindow},
	}
	for _, d := range durations {
		if d.d < 0 {
			errs = append(errs, fmt.Sprintf("typing-indicator.%s must not be negative", d.name))
		}
	}
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, sqlite", c.Store.Driver))
	}
	switch c.Transport.Driver {
	case DriverMemory, DriverRedis:
	default:
		errs = append(errs, fmt.Sprintf("transport.driver %q is not one of memory, redis", c.Transport.Driver))
	}
	if c.Transport.InboundTopic == c.Transport.OutboundTopic {
		errs = append(errs, "transport.inbound-topic and transport.outbound-topic must differ")
	}
	if len(errs) > 0 {
		return errors.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DeliveryOptions maps the typing indicator settings.
func (c *Config) DeliveryOptions() delivery.Options {
	t := c.TypingIndicator
	return delivery.Options{
		CoachTypingSpeed:        t.CoachTypingSpeed,
		MaxTypingDelay:          t.MaxTypingDelay,
		InteractiveElementDelay: t.InteractiveElementDelay,
		FastMode:                t.FastMode,
		FastModeDelay:           t.FastModeDelay,
	}
}

// HistoryOptions maps the message page sizes.
func (c *Config) HistoryOptions() history.Options {
	return history.Options{
		InitialMinimum: c.Messages.InitialMinimalShown,
		Increment:      c.Messages.IncrementShownBy,
	}
}
