package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// variable overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// variable overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills fields whose zero value is not a usable setting.
func applyDefaults(cfg *Config) {
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = "~"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set TASKINATOR_TOKEN)"))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}
	if cfg.Discord.LivingChannelID == "" {
		errs = append(errs, errors.New("discord.living_channel_id is required"))
	}
	if cfg.Discord.DeadChannelID == "" {
		errs = append(errs, errors.New("discord.dead_channel_id is required"))
	}
	if cfg.Discord.LivingChannelID != "" && cfg.Discord.LivingChannelID == cfg.Discord.DeadChannelID {
		errs = append(errs, errors.New("discord.living_channel_id and discord.dead_channel_id must differ"))
	}

	if cfg.Capture.ListenAddr == "" && cfg.Capture.AuthToken != "" {
		slog.Warn("capture.auth_token is set but capture.listen_addr is empty; the capture listener is disabled")
	}

	if cfg.Game.MeetingTimeout < 0 {
		errs = append(errs, fmt.Errorf("game.meeting_timeout %v must not be negative", cfg.Game.MeetingTimeout))
	}

	if cfg.Dispatch.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("dispatch.max_attempts %d must not be negative", cfg.Dispatch.MaxAttempts))
	}
	for _, d := range []struct {
		name  string
		value int64
	}{
		{"dispatch.backoff", int64(cfg.Dispatch.Backoff)},
		{"dispatch.max_backoff", int64(cfg.Dispatch.MaxBackoff)},
		{"dispatch.breaker_reset_timeout", int64(cfg.Dispatch.BreakerResetTimeout)},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}

	return errors.Join(errs...)
}
