// Command taskinator runs the Discord voice coordinator for social
// deduction games: it mutes, unmutes and moves players between the living
// and dead voice channels as the game moves through its phases.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sam-kirby/taskinator/internal/capture"
	"github.com/sam-kirby/taskinator/internal/config"
	discordbot "github.com/sam-kirby/taskinator/internal/discord"
	"github.com/sam-kirby/taskinator/internal/game"
	"github.com/sam-kirby/taskinator/internal/health"
	"github.com/sam-kirby/taskinator/internal/observe"
	platformdiscord "github.com/sam-kirby/taskinator/internal/platform/discord"
	"github.com/sam-kirby/taskinator/internal/resilience"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "taskinator: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "taskinator: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("taskinator starting",
		"config", *configPath,
		"guild_id", cfg.Discord.GuildID,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The stop command requests the same orderly shutdown as a signal.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "taskinator",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Game core ─────────────────────────────────────────────────────────────
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		MaxFailures:  cfg.Dispatch.BreakerMaxFailures,
		ResetTimeout: cfg.Dispatch.BreakerResetTimeout,
	})

	// The platform client needs the gateway session, which only exists
	// once the bot is up; the bot in turn needs the game session. Break
	// the cycle by creating the dispatcher without a client and filling
	// it in after the bot connects.
	dispatcher := game.NewDispatcher(game.DispatcherConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts: cfg.Dispatch.MaxAttempts,
			Backoff:     cfg.Dispatch.Backoff,
			MaxBackoff:  cfg.Dispatch.MaxBackoff,
		},
		Breaker: breaker,
	})

	session := game.NewSession(game.SessionConfig{Dispatcher: dispatcher})

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(discordbot.BotConfig{
		Discord:         cfg.Discord,
		Game:            session,
		MeetingTimeout:  cfg.Game.MeetingTimeout,
		RequestShutdown: cancel,
	})
	if err != nil {
		slog.Error("failed to start Discord bot", "err", err)
		return 1
	}

	dispatcher.SetClient(platformdiscord.New(
		bot.Session(),
		cfg.Discord.GuildID,
		cfg.Discord.LivingChannelID,
		cfg.Discord.DeadChannelID,
	))

	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	// ── Capture listener (optional) ───────────────────────────────────────────
	var listener *capture.Listener
	if cfg.Capture.ListenAddr != "" {
		listener = capture.NewListener(capture.ListenerConfig{
			Addr:      cfg.Capture.ListenAddr,
			AuthToken: cfg.Capture.AuthToken,
			Game:      session,
		})
	}

	// ── Supervision ───────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return bot.Run(gctx)
	})

	if listener != nil {
		g.Go(func() error {
			return listener.Run(gctx)
		})
	}

	if cfg.Server.ListenAddr != "" {
		g.Go(func() error {
			return serveHTTP(gctx, cfg.Server.ListenAddr, bot)
		})
	}

	slog.Info("taskinator ready — press Ctrl+C to shut down")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down…")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Restore everyone's voice state before disconnecting so nobody is
	// left server-muted in an empty guild.
	if session.Active() {
		if report, endErr := session.HandleEvent(shutdownCtx, game.GameEnded{}); endErr != nil {
			slog.Warn("failed to end game on shutdown", "err", endErr)
		} else if report.Failed() {
			slog.Warn("some voice restores failed on shutdown", "failures", len(report.Failures))
		}
	}

	if closeErr := bot.Close(); closeErr != nil {
		slog.Warn("discord bot close error", "err", closeErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// serveHTTP runs the metrics and health probe sidecar until ctx is
// cancelled.
func serveHTTP(ctx context.Context, addr string, bot *discordbot.Bot) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(health.Gateway(bot.Connected)).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
