package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	require.True(t, cfg.Enabled)
	require.Equal(t, "http://127.0.0.1:17600", cfg.ServerURL)
	require.False(t, cfg.SendTitle)
	require.True(t, cfg.TrackBackgroundAudio)
	require.Equal(t, 60*time.Second, cfg.Heartbeat())
	require.True(t, cfg.KeepAlive)
	require.Equal(t, 25*time.Second, cfg.KeepAlivePeriod)
	require.Equal(t, 5*time.Second, cfg.DeliveryTimeout)
	require.Equal(t, SinkHTTP, cfg.Sink)
	require.Empty(t, cfg.KafkaBrokers)
	require.True(t, filepath.IsAbs(cfg.SignalFile) || cfg.SignalFile == "~/.activity-agent/signal.yaml")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AGENT_SERVER_URL", "http://core.local:9000/")
	t.Setenv("AGENT_SEND_TITLE", "true")
	t.Setenv("AGENT_HEARTBEAT_SECONDS", "30")
	t.Setenv("AGENT_DELIVERY_TIMEOUT", "6s")
	t.Setenv("AGENT_SINK", "kafka")
	t.Setenv("AGENT_KAFKA_BROKERS", "k1:9092, k2:9092")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, "http://core.local:9000", cfg.ServerURL)
	require.True(t, cfg.SendTitle)
	require.Equal(t, 30*time.Second, cfg.Heartbeat())
	require.Equal(t, 6*time.Second, cfg.DeliveryTimeout)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: http://127.0.0.1:5600
track_background_audio: false
keep_alive: false
status_db: ""
`), 0o600))

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:5600", cfg.ServerURL)
	require.False(t, cfg.TrackBackgroundAudio)
	require.False(t, cfg.KeepAlive)
	require.Empty(t, cfg.StatusDB)
}

func TestValidate(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	bad := cfg
	bad.HeartbeatSeconds = 1
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Sink = "carrier-pigeon"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Sink = SinkKafka
	require.ErrorContains(t, bad.Validate(), "kafka_brokers")
}

func TestDeliverable(t *testing.T) {
	cfg := Config{Enabled: true, Sink: SinkHTTP, ServerURL: "http://x"}
	require.True(t, cfg.Deliverable())

	cfg.ServerURL = ""
	require.False(t, cfg.Deliverable(), "missing server url behaves as disabled")

	cfg.Sink = SinkKafka
	require.True(t, cfg.Deliverable())

	cfg.Enabled = false
	require.False(t, cfg.Deliverable())
}

func TestAffectsAttribution(t *testing.T) {
	base := Config{Enabled: true, ServerURL: "http://x", HeartbeatSeconds: 60, LogLevel: "info"}
	require.False(t, AffectsAttribution(base, base))

	changed := base
	changed.LogLevel = "debug"
	require.False(t, AffectsAttribution(base, changed))

	changed = base
	changed.TrackBackgroundAudio = true
	require.True(t, AffectsAttribution(base, changed))

	changed = base
	changed.ServerURL = "http://y"
	require.True(t, AffectsAttribution(base, changed))
}

func TestWatchDeliversReloadedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("send_title: false\n"), 0o600))

	v, err := New(path)
	require.NoError(t, err)

	got := make(chan Config, 4)
	Watch(v, func(c Config) { got <- c }, nil)

	require.Eventually(t, func() bool {
		require.NoError(t, os.WriteFile(path, []byte("send_title: true\n"), 0o600))
		select {
		case cfg := <-got:
			return cfg.SendTitle
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
