// Package discord provides the Discord gateway layer for Taskinator. It
// owns the discordgo.Session lifecycle, translates gateway events (text
// commands, control message reactions, voice state updates) into game
// events, and posts the control message players interact with.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sam-kirby/taskinator/internal/config"
	"github.com/sam-kirby/taskinator/internal/game"
)

// emerEmoji toggles meetings when the controller reacts with it.
const emerEmoji = "🚨"

// deadEmoji lets a player mark themselves dead.
const deadEmoji = "☠️"

// defaultStartDelay is the grace period between the start command and the
// first mute sweep, giving players time to settle into the voice channel.
const defaultStartDelay = 5 * time.Second

// BotConfig holds dependencies for a [Bot].
type BotConfig struct {
	// Discord is the bot credential and guild layout configuration.
	Discord config.DiscordConfig

	// Game is the session all gateway events are routed into. Required.
	Game *game.Session

	// MeetingTimeout automatically ends meetings after this duration.
	// Zero disables the timer.
	MeetingTimeout time.Duration

	// RequestShutdown is invoked when a controller issues the stop
	// command. When nil, stop only ends the running game.
	RequestShutdown func()
}

// Bot owns the Discord gateway connection and routes events into the
// game session.
type Bot struct {
	session *discordgo.Session
	rest    rest
	game    *game.Session
	perms   *Controller

	guildID         string
	livingChannelID string
	deadChannelID   string
	spectatorRoleID string
	prefix          string
	meetingTimeout  time.Duration
	requestShutdown func()

	mu           sync.Mutex
	ctx          context.Context
	botID        string
	ctrl         *controlMessage
	starting     bool
	meetingTimer *time.Timer

	closeOnce sync.Once
}

// controlMessage locates the message whose reactions drive the game.
type controlMessage struct {
	channelID string
	messageID string
	ownerID   string
}

// configureGateway sets the intents and delivery mode the coordinator
// needs. Handlers run synchronously on the gateway reader: a voice
// join/leave pair for one user must be observed in delivery order or
// the registry is left tracking a ghost.
func configureGateway(session *discordgo.Session) {
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildVoiceStates
	session.SyncEvents = true
	session.State.TrackVoice = true
}

// New creates a Bot, connects to Discord, and registers the gateway
// handlers.
func New(cfg BotConfig) (*Bot, error) {
	if cfg.Game == nil {
		return nil, errors.New("discord: BotConfig.Game is required")
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	configureGateway(session)

	b := &Bot{
		session:         session,
		rest:            session,
		game:            cfg.Game,
		perms:           NewController(),
		guildID:         cfg.Discord.GuildID,
		livingChannelID: cfg.Discord.LivingChannelID,
		deadChannelID:   cfg.Discord.DeadChannelID,
		spectatorRoleID: cfg.Discord.SpectatorRoleID,
		prefix:          cfg.Discord.CommandPrefix,
		meetingTimeout:  cfg.MeetingTimeout,
		requestShutdown: cfg.RequestShutdown,
		ctx:             context.Background(),
	}
	if b.prefix == "" {
		b.prefix = "~"
	}

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.handleMessageCreate(m)
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageDelete) {
		b.handleMessageDelete(m)
	})
	session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		b.handleReactionAdd(r)
	})
	session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
		b.handleReactionRemove(r)
	})
	session.AddHandler(func(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		b.handleVoiceStateUpdate(v)
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	if err := b.fetchAppDetails(); err != nil {
		_ = session.Close()
		return nil, err
	}

	return b, nil
}

// fetchAppDetails resolves the bot's own user ID and the application
// owners, which hold standing control over every game.
func (b *Bot) fetchAppDetails() error {
	app, err := b.session.Application("@me")
	if err != nil {
		return fmt.Errorf("discord: fetch application info: %w", err)
	}

	var owners []string
	if app.Team != nil {
		for _, tm := range app.Team.Members {
			if tm.User != nil {
				owners = append(owners, tm.User.ID)
			}
		}
	} else if app.Owner != nil {
		owners = append(owners, app.Owner.ID)
	}
	b.perms.SetOwners(owners...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if user := b.session.State.User; user != nil {
		b.botID = user.ID
	}
	slog.Info("discord application details fetched", "owners", len(owners))
	return nil
}

// Session returns the underlying discordgo session. Used by subsystems
// that need direct REST access (e.g., the platform client).
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Connected reports whether the gateway websocket is up. Used by health
// checks.
func (b *Bot) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session.DataReady
}

// Run blocks until ctx is cancelled. Gateway events arriving before Run
// are handled with a background context.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	slog.Info("discord bot running",
		"guild", b.guildID,
		"prefix", b.prefix,
	)
	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord. If a game is still active its control
// message is removed first.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.stopMeetingTimer()
		b.clearControlMessage()
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}

// eventCtx returns the context handlers should use for game dispatch.
func (b *Bot) eventCtx() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// isStarting reports whether a game start grace period is in progress.
func (b *Bot) isStarting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starting
}

// isSelf reports whether userID is the bot's own user.
func (b *Bot) isSelf(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.botID != "" && userID == b.botID
}

// startMeetingTimer arms the automatic meeting end. A previously armed
// timer is replaced.
func (b *Bot) startMeetingTimer() {
	if b.meetingTimeout <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.meetingTimer != nil {
		b.meetingTimer.Stop()
	}
	b.meetingTimer = time.AfterFunc(b.meetingTimeout, func() {
		slog.Info("meeting timed out", "timeout", b.meetingTimeout)
		b.endMeeting()
	})
}

// stopMeetingTimer disarms the automatic meeting end.
func (b *Bot) stopMeetingTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.meetingTimer != nil {
		b.meetingTimer.Stop()
		b.meetingTimer = nil
	}
}

// endMeeting routes a meeting-end into the game, ignoring the event when
// no meeting is in progress (e.g., the timer firing after a manual end).
func (b *Bot) endMeeting() {
	report, err := b.game.HandleEvent(b.eventCtx(), game.MeetingEnded{})
	if err != nil {
		if !errors.Is(err, game.ErrInvalidTransition) {
			slog.Warn("ending meeting", "err", err)
		}
		return
	}
	b.stopMeetingTimer()
	b.reportFailures(report)
}

// reportFailures surfaces dispatch failures in the control channel so
// players know voice state may be inconsistent.
func (b *Bot) reportFailures(report game.Report) {
	if !report.Failed() {
		return
	}
	b.mu.Lock()
	ctrl := b.ctrl
	b.mu.Unlock()
	if ctrl == nil {
		return
	}
	send(b.rest, ctrl.channelID, "Some voice updates failed; check the log.")
}
