package station

import (
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-station/internal/station/conn"
	"github.com/rxtech-lab/argo-station/pkg/errors"
)

// Config holds the station's configuration. Durations are strings in Go
// duration syntax ("250ms", "1s") so configs stay readable.
type Config struct {
	// URL is the backend websocket address.
	URL string `json:"url" yaml:"url" validate:"required"`

	// Subscriptions are entity ids subscribed on every connect.
	Subscriptions []string `json:"subscriptions" yaml:"subscriptions"`

	// HeartbeatInterval is the backend's advertised heartbeat cadence.
	HeartbeatInterval string `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// HeartbeatMissFactor missed intervals force a reconnect.
	HeartbeatMissFactor int `json:"heartbeat_miss_factor" yaml:"heartbeat_miss_factor" validate:"omitempty,min=1"`

	// BackoffBase is the first reconnect delay.
	BackoffBase string `json:"backoff_base" yaml:"backoff_base"`

	// BackoffCap bounds the reconnect delay.
	BackoffCap string `json:"backoff_cap" yaml:"backoff_cap"`

	// BackoffJitter randomizes reconnect delays. Nil means enabled.
	BackoffJitter *bool `json:"backoff_jitter" yaml:"backoff_jitter"`

	// QueueCapacity bounds the inbound event queue.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity" validate:"omitempty,min=1"`

	// CommandBuffer bounds the outbound command channel.
	CommandBuffer int `json:"command_buffer" yaml:"command_buffer" validate:"omitempty,min=1"`

	// RedrawInterval is the GUI's fixed redraw cadence.
	RedrawInterval string `json:"redraw_interval" yaml:"redraw_interval"`
}

// DefaultRedrawInterval is the GUI redraw cadence when unset.
const DefaultRedrawInterval = 250 * time.Millisecond

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates YAML config bytes.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks field constraints, the URL scheme, and every duration
// string.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidBackendURL, err, "invalid backend url %s", c.URL)
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Newf(errors.ErrCodeInvalidBackendURL, "backend url must use ws or wss scheme, got %q", u.Scheme)
	}

	for name, value := range map[string]string{
		"heartbeat_interval": c.HeartbeatInterval,
		"backoff_base":       c.BackoffBase,
		"backoff_cap":        c.BackoffCap,
		"redraw_interval":    c.RedrawInterval,
	} {
		if value == "" {
			continue
		}

		if _, err := time.ParseDuration(value); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidInterval, err, "invalid %s %q", name, value)
		}
	}

	return nil
}

// ConnConfig converts the station config into the connection manager's
// config. Call Validate first; invalid duration strings fall back to the
// manager's defaults here.
func (c *Config) ConnConfig() conn.Config {
	jitter := true
	if c.BackoffJitter != nil {
		jitter = *c.BackoffJitter
	}

	return conn.Config{
		URL:                  c.URL,
		InitialSubscriptions: c.Subscriptions,
		BackoffBase:          parseDuration(c.BackoffBase),
		BackoffCap:           parseDuration(c.BackoffCap),
		BackoffJitter:        jitter,
		HeartbeatInterval:    parseDuration(c.HeartbeatInterval),
		HeartbeatMissFactor:  c.HeartbeatMissFactor,
		QueueCapacity:        c.QueueCapacity,
		CommandBuffer:        c.CommandBuffer,
	}
}

// Redraw returns the GUI redraw cadence.
func (c *Config) Redraw() time.Duration {
	if d := parseDuration(c.RedrawInterval); d > 0 {
		return d
	}

	return DefaultRedrawInterval
}

func parseDuration(value string) time.Duration {
	if value == "" {
		return 0
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}

	return d
}
