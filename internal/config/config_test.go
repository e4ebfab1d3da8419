package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainreaction/internal/game"
)

func envMap(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":             "9000",
		"ADDR":             "ignored:1",
		"POSTGRES_URL":     "postgres://localhost/chain",
		"KAFKA_BROKERS":    "a:9092, b:9092,",
		"KAFKA_TOPIC":      "events",
		"RECONNECT_WINDOW": "45",
		"STEP_DELAY_MS":    "120",
		"LOG_LEVEL":        "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "postgres://localhost/chain", cfg.PostgresURL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "events", cfg.KafkaTopic)
	assert.Equal(t, 45*time.Second, cfg.ReconnectWindow)
	assert.Equal(t, 120*time.Millisecond, cfg.StepDelay)
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	cfg = Default()
	require.NoError(t, cfg.applyEnv(envMap(map[string]string{"ADDR": "127.0.0.1:7000"})))
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)

	cfg = Default()
	assert.Error(t, cfg.applyEnv(envMap(map[string]string{"RECONNECT_WINDOW": "soon"})))
}

func TestLoadYAML(t *testing.T) {
	for _, k := range []string{"PORT", "ADDR", "POSTGRES_URL", "KAFKA_BROKERS", "KAFKA_TOPIC", "RECONNECT_WINDOW", "STEP_DELAY_MS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":8181"
kafka_brokers: ["broker:9092"]
reconnect_window: 1m
step_delay: 250ms
profiles:
  severe:
    thinking_time: 2s
    first_move: preloaded
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8181", cfg.Addr)
	assert.Equal(t, []string{"broker:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "game-events", cfg.KafkaTopic)
	assert.Equal(t, time.Minute, cfg.ReconnectWindow)
	assert.Equal(t, 250*time.Millisecond, cfg.StepDelay)

	severe, err := game.ProfileFor(string(game.Severe))
	require.NoError(t, err)
	tuned := cfg.TuneProfile(severe)
	assert.Equal(t, 2*time.Second, tuned.ThinkingTime)
	assert.Equal(t, game.PlacePreloaded, tuned.FirstMove)
	assert.Equal(t, severe.Strength, tuned.Strength)

	gentle, err := game.ProfileFor(string(game.Gentle))
	require.NoError(t, err)
	assert.Equal(t, gentle, cfg.TuneProfile(gentle))
}

func TestLoadRejectsBadProfiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown profile": "profiles:\n  brutal:\n    thinking_time: 1s\n",
		"bad policy":      "profiles:\n  gentle:\n    first_move: triple\n",
		"zero window":     "reconnect_window: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	assert.Equal(t, slog.LevelInfo, Default().Level())
}
