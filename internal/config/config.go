// Package config centralises configuration parsing for the attribution agent.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config captures runtime configuration values for the agent.
type Config struct {
	Enabled               bool          `mapstructure:"enabled"`
	ServerURL             string        `mapstructure:"server_url"`
	SendTitle             bool          `mapstructure:"send_title"`
	TrackBackgroundAudio  bool          `mapstructure:"track_background_audio"`
	HeartbeatSeconds      int           `mapstructure:"heartbeat_seconds"`
	KeepAlive             bool          `mapstructure:"keep_alive"`
	KeepAliveInitialDelay time.Duration `mapstructure:"keep_alive_initial_delay"`
	KeepAlivePeriod       time.Duration `mapstructure:"keep_alive_period"`
	DeliveryTimeout       time.Duration `mapstructure:"delivery_timeout"`
	Source                string        `mapstructure:"source"`
	Sink                  string        `mapstructure:"sink"`
	KafkaBrokers          []string      `mapstructure:"kafka_brokers"`
	KafkaTopic            string        `mapstructure:"kafka_topic"`
	SignalFile            string        `mapstructure:"signal_file"`
	StatusDB              string        `mapstructure:"status_db"`
	ControlAddress        string        `mapstructure:"control_address"`
	ControlSecret         string        `mapstructure:"control_secret"`
	ControlIssuer         string        `mapstructure:"control_issuer"`
	LogLevel              string        `mapstructure:"log_level"`
}

const (
	SinkHTTP  = "http"
	SinkKafka = "kafka"

	minHeartbeatSeconds = 5
	envPrefix           = "AGENT"
)

// New returns a viper instance with defaults, env binding and, when path is
// non-empty, the YAML config file at path.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = splitAndTrim(cfg.KafkaBrokers)
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	cfg.SignalFile = expandHome(cfg.SignalFile)
	cfg.StatusDB = expandHome(cfg.StatusDB)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Watch reloads the config file on change and passes every valid result to
// fn. Invalid reloads are reported through onError and otherwise ignored.
func Watch(v *viper.Viper, fn func(Config), onError func(error)) {
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", true)
	v.SetDefault("server_url", "http://127.0.0.1:17600")
	v.SetDefault("send_title", false)
	v.SetDefault("track_background_audio", true)
	v.SetDefault("heartbeat_seconds", 60)
	v.SetDefault("keep_alive", true)
	v.SetDefault("keep_alive_initial_delay", time.Second)
	v.SetDefault("keep_alive_period", 25*time.Second)
	v.SetDefault("delivery_timeout", 5*time.Second)
	v.SetDefault("source", "desktop_agent")
	v.SetDefault("sink", SinkHTTP)
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", "activity_events")
	v.SetDefault("signal_file", "~/.activity-agent/signal.yaml")
	v.SetDefault("status_db", "~/.activity-agent/status.db")
	v.SetDefault("control_address", "127.0.0.1:17601")
	v.SetDefault("control_secret", "")
	v.SetDefault("control_issuer", "activity-agent")
	v.SetDefault("log_level", "info")
}

// Validate rejects values the agent cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.HeartbeatSeconds < minHeartbeatSeconds {
		errs = append(errs, fmt.Errorf("heartbeat_seconds must be >= %d", minHeartbeatSeconds))
	}
	if c.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("delivery_timeout must be positive"))
	}
	if c.KeepAliveInitialDelay <= 0 || c.KeepAlivePeriod <= 0 {
		errs = append(errs, errors.New("keep_alive delays must be positive"))
	}
	switch c.Sink {
	case SinkHTTP:
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			errs = append(errs, errors.New("kafka sink requires kafka_brokers and kafka_topic"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q", c.Sink))
	}
	if c.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	return errors.Join(errs...)
}

// Heartbeat returns the heartbeat interval.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// Deliverable reports whether events can be sent at all. An HTTP sink with an
// empty server URL is treated as disabled.
func (c Config) Deliverable() bool {
	if !c.Enabled {
		return false
	}
	if c.Sink == SinkHTTP && c.ServerURL == "" {
		return false
	}
	return true
}

// AffectsAttribution reports whether moving from old to new changes what the
// agent would resolve or where it delivers, which requires a forced cycle.
func AffectsAttribution(old, new Config) bool {
	return old.Enabled != new.Enabled ||
		old.ServerURL != new.ServerURL ||
		old.SendTitle != new.SendTitle ||
		old.TrackBackgroundAudio != new.TrackBackgroundAudio ||
		old.HeartbeatSeconds != new.HeartbeatSeconds ||
		old.KeepAlive != new.KeepAlive ||
		old.Source != new.Source
}

func splitAndTrim(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
