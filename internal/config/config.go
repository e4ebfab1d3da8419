// Package config loads server settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chainreaction/internal/game"
)

type Config struct {
	Addr            string                     `yaml:"addr"`
	LogLevel        string                     `yaml:"log_level"`
	PostgresURL     string                     `yaml:"postgres_url"`
	KafkaBrokers    []string                   `yaml:"kafka_brokers"`
	KafkaTopic      string                     `yaml:"kafka_topic"`
	ReconnectWindow time.Duration              `yaml:"reconnect_window"`
	StepDelay       time.Duration              `yaml:"step_delay"`
	Profiles        map[string]ProfileOverride `yaml:"profiles"`
}

// ProfileOverride tunes the presentation and opening rule of a built-in
// profile. Board shape and AI strength are fixed per difficulty.
type ProfileOverride struct {
	ThinkingTime time.Duration `yaml:"thinking_time"`
	FirstMove    string        `yaml:"first_move"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		LogLevel:        "info",
		KafkaTopic:      "game-events",
		ReconnectWindow: 30 * time.Second,
		StepDelay:       300 * time.Millisecond,
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	// PORT first (used by Render, Fly.io, Heroku, etc.)
	if port := getenv("PORT"); port != "" {
		c.Addr = ":" + port
	} else if addr := getenv("ADDR"); addr != "" {
		c.Addr = addr
	}
	if lvl := getenv("LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
	if dsn := getenv("POSTGRES_URL"); dsn != "" {
		c.PostgresURL = dsn
	}
	if brokers := getenv("KAFKA_BROKERS"); brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}
	if topic := getenv("KAFKA_TOPIC"); topic != "" {
		c.KafkaTopic = topic
	}
	if v := getenv("RECONNECT_WINDOW"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RECONNECT_WINDOW: %w", err)
		}
		c.ReconnectWindow = time.Duration(secs) * time.Second
	}
	if v := getenv("STEP_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STEP_DELAY_MS: %w", err)
		}
		c.StepDelay = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func splitList(v string) []string {
	var res []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}

// Level maps LogLevel onto slog, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c Config) Validate() error {
	if c.ReconnectWindow <= 0 {
		return fmt.Errorf("reconnect window must be positive, got %s", c.ReconnectWindow)
	}
	if c.StepDelay < 0 {
		return fmt.Errorf("step delay must not be negative, got %s", c.StepDelay)
	}
	for name, o := range c.Profiles {
		if _, err := game.ProfileFor(name); err != nil {
			return fmt.Errorf("profiles: %w", err)
		}
		if _, err := game.ParseFirstMovePolicy(o.FirstMove); err != nil {
			return fmt.Errorf("profiles.%s: %w", name, err)
		}
		if o.ThinkingTime < 0 {
			return fmt.Errorf("profiles.%s: negative thinking time", name)
		}
	}
	return nil
}

// TuneProfile applies the override for p, if any. Validate has already
// rejected bad policy names.
func (c Config) TuneProfile(p game.Profile) game.Profile {
	o, ok := c.Profiles[string(p.Name)]
	if !ok {
		return p
	}
	if o.ThinkingTime > 0 {
		p.ThinkingTime = o.ThinkingTime
	}
	if policy, err := game.ParseFirstMovePolicy(o.FirstMove); err == nil && o.FirstMove != "" {
		p.FirstMove = policy
	}
	return p
}
