// Package config provides the configuration schema and loader for the
// Taskinator coordinator.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the coordinator.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to its [slog.Level]. Empty and unknown values map to
// info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Taskinator.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// secrets can be supplied or overridden through environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"TASKINATOR_SERVER_"`
	Discord  DiscordConfig  `yaml:"discord" envPrefix:"TASKINATOR_"`
	Capture  CaptureConfig  `yaml:"capture" envPrefix:"TASKINATOR_CAPTURE_"`
	Game     GameConfig     `yaml:"game"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// ServerConfig holds network and logging settings for the HTTP sidecar
// serving metrics and health probes.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics/health server listens on
	// (e.g., ":8080"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`
}

// DiscordConfig holds the bot credentials and the guild layout the
// coordinator operates on.
type DiscordConfig struct {
	// Token is the Discord bot token. Required. Usually supplied via the
	// TASKINATOR_TOKEN environment variable rather than the config file.
	Token string `yaml:"token" env:"TOKEN"`

	// GuildID is the guild (server) the coordinator manages. Required.
	GuildID string `yaml:"guild_id" env:"GUILD_ID"`

	// LivingChannelID is the voice channel where the game is played. Required.
	LivingChannelID string `yaml:"living_channel_id" env:"LIVING_CHANNEL_ID"`

	// DeadChannelID is the voice channel dead players talk in. Required.
	DeadChannelID string `yaml:"dead_channel_id" env:"DEAD_CHANNEL_ID"`

	// SpectatorRoleID marks members the coordinator must never mute or
	// move. Empty disables spectator handling.
	SpectatorRoleID string `yaml:"spectator_role_id" env:"SPECTATOR_ROLE_ID"`

	// CommandPrefix introduces text commands (e.g., "~new"). Default "~".
	CommandPrefix string `yaml:"command_prefix" env:"COMMAND_PREFIX"`
}

// CaptureConfig holds settings for the companion-capture listener, the
// websocket endpoint game-state capture tools push events to.
type CaptureConfig struct {
	// ListenAddr is the TCP address the capture listener binds
	// (e.g., ":8765"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// AuthToken, when set, is required as a Bearer token on capture
	// connections.
	AuthToken string `yaml:"auth_token" env:"AUTH_TOKEN"`
}

// GameConfig tunes game-flow behaviour.
type GameConfig struct {
	// MeetingTimeout automatically ends a meeting that has run this long.
	// Zero disables the timer; meetings then end only on an explicit
	// event.
	MeetingTimeout time.Duration `yaml:"meeting_timeout"`
}

// DispatchConfig tunes platform call retry and breaker behaviour.
// Zero values use the package defaults.
type DispatchConfig struct {
	// MaxAttempts is the total number of tries per platform call.
	MaxAttempts int `yaml:"max_attempts"`

	// Backoff is the initial delay between retries, doubling per attempt.
	Backoff time.Duration `yaml:"backoff"`

	// MaxBackoff caps the per-attempt delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// BreakerMaxFailures is the consecutive transient failure count that
	// opens the circuit breaker.
	BreakerMaxFailures int `yaml:"breaker_max_failures"`

	// BreakerResetTimeout is how long the breaker stays open before
	// probing again.
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout"`
}

// duration decodes YAML scalars in [time.ParseDuration] syntax ("250ms",
// "3m") as well as raw nanosecond integers.
type duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// UnmarshalYAML implements [yaml.Unmarshaler] so that durations can be
// written in human form ("3m") rather than nanoseconds.
func (g *GameConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MeetingTimeout duration `yaml:"meeting_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	g.MeetingTimeout = time.Duration(raw.MeetingTimeout)
	return nil
}

// UnmarshalYAML implements [yaml.Unmarshaler] so that durations can be
// written in human form ("250ms") rather than nanoseconds.
func (c *DispatchConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxAttempts         int      `yaml:"max_attempts"`
		Backoff             duration `yaml:"backoff"`
		MaxBackoff          duration `yaml:"max_backoff"`
		BreakerMaxFailures  int      `yaml:"breaker_max_failures"`
		BreakerResetTimeout duration `yaml:"breaker_reset_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.MaxAttempts = raw.MaxAttempts
	c.Backoff = time.Duration(raw.Backoff)
	c.MaxBackoff = time.Duration(raw.MaxBackoff)
	c.BreakerMaxFailures = raw.BreakerMaxFailures
	c.BreakerResetTimeout = time.Duration(raw.BreakerResetTimeout)
	return nil
}
