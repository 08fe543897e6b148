// Package config loads the YAML configuration of the eventapi command.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yoggys/eventapi"
)

// Config is the file layout read by the eventapi command.
type Config struct {
	Host          string               `yaml:"host"`
	Log           LogConfig            `yaml:"log"`
	MetricsAddr   string               `yaml:"metrics_addr"`
	Reconnect     ReconnectConfig      `yaml:"reconnect"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// ReconnectConfig controls automatic reconnection. MaxAttempts 0 retries forever.
type ReconnectConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// SubscriptionConfig is one subscription; an empty condition matches everything.
type SubscriptionConfig struct {
	Type      string            `yaml:"type"`
	Condition map[string]string `yaml:"condition"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Host: "wss://events.7tv.io/v3",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Reconnect: ReconnectConfig{
			Enabled:        true,
			MaxAttempts:    10,
			BackoffInitial: time.Second,
			BackoffMax:     30 * time.Second,
		},
	}
}

// Load reads the YAML file at path over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if _, err := eventapi.ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	for i, s := range c.Subscriptions {
		if s.Type == "" {
			return fmt.Errorf("subscriptions[%d]: type is required", i)
		}
	}
	return nil
}

// ClientSubscriptions converts the configured subscriptions.
func (c *Config) ClientSubscriptions() []eventapi.Subscription {
	subs := make([]eventapi.Subscription, 0, len(c.Subscriptions))
	for _, s := range c.Subscriptions {
		subs = append(subs, eventapi.Subscription{
			Type:      eventapi.EventType(s.Type),
			Condition: eventapi.Condition(s.Condition),
		})
	}
	return subs
}

// ClientOptions returns the client options for the connection and
// reconnect settings.
func (c *Config) ClientOptions() []eventapi.ClientOption {
	return []eventapi.ClientOption{
		eventapi.WithHost(c.Host),
		eventapi.WithAutoReconnect(c.Reconnect.Enabled),
		eventapi.WithMaxReconnectAttempts(c.Reconnect.MaxAttempts),
		eventapi.WithReconnectBackoff(c.Reconnect.BackoffInitial, c.Reconnect.BackoffMax),
	}
}
