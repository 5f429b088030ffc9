package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sam-kirby/taskinator/internal/game"
)

// noticeTTL is how long transient replies stay in the channel.
const noticeTTL = 5 * time.Second

// parseCommand splits a prefixed command message into its name and
// arguments. ok is false when content does not start with prefix or
// names no command.
func parseCommand(content, prefix string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// parseMention extracts the user ID from a Discord mention token
// (<@123> or <@!123>).
func parseMention(token string) (string, bool) {
	if !strings.HasPrefix(token, "<@") || !strings.HasSuffix(token, ">") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(token, "<@"), ">")
	id = strings.TrimPrefix(id, "!")
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}

func (b *Bot) handleMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID != b.guildID {
		return
	}
	name, args, ok := parseCommand(m.Content, b.prefix)
	if !ok {
		return
	}

	switch name {
	case "new":
		deleteMessage(b.rest, m.ChannelID, m.ID)
		b.beginGame(m, args)
	case "end":
		deleteMessage(b.rest, m.ChannelID, m.ID)
		if b.perms.InControl(m.Author.ID) {
			b.endGame()
		}
	case "dead":
		deleteMessage(b.rest, m.ChannelID, m.ID)
		b.deadify(m, args)
	case "stop":
		deleteMessage(b.rest, m.ChannelID, m.ID)
		if b.perms.InControl(m.Author.ID) {
			if b.game.Active() {
				b.endGame()
			}
			if b.requestShutdown != nil {
				b.requestShutdown()
			}
		}
	case "ident":
		deleteMessage(b.rest, m.ChannelID, m.ID)
		b.setAlias(m, args)
	case "check":
		b.check(m, args)
	}
}

// beginGame handles the new command: seed the registry from the voice
// channels, post the control message, then sweep everyone into the lobby
// after a grace period. The optional argument overrides the grace period
// in seconds; 0 sweeps immediately.
func (b *Bot) beginGame(m *discordgo.MessageCreate, args []string) {
	b.mu.Lock()
	if b.starting || b.game.Active() {
		b.mu.Unlock()
		sendTemporary(b.rest, m.ChannelID, "A game is already in progress.", noticeTTL)
		return
	}
	b.starting = true
	b.mu.Unlock()

	seed, err := b.seedPresences()
	if err != nil {
		b.mu.Lock()
		b.starting = false
		b.mu.Unlock()
		slog.Error("seeding participants", "err", err)
		sendTemporary(b.rest, m.ChannelID, "Could not read the voice channels; try again.", noticeTTL)
		return
	}

	delay := defaultStartDelay
	if len(args) > 0 {
		if secs, err := strconv.Atoi(args[0]); err == nil && secs >= 0 {
			delay = time.Duration(secs) * time.Second
		}
	}

	ctrlMsg := send(b.rest, m.ChannelID, fmt.Sprintf(
		"A game is in progress, %s can react to this message with %s to call a meeting.\n"+
			"Anyone can react to this message with %s to access dead chat after the next meeting.",
		m.Author.Mention(), emerEmoji, deadEmoji,
	))
	if ctrlMsg == nil {
		b.mu.Lock()
		b.starting = false
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	b.ctrl = &controlMessage{
		channelID: ctrlMsg.ChannelID,
		messageID: ctrlMsg.ID,
		ownerID:   m.Author.ID,
	}
	b.mu.Unlock()
	b.perms.SetGameOwner(m.Author.ID)

	// Seeding reactions takes about a second per emoji; don't hold up the
	// game start on it.
	go func() {
		for _, emoji := range []string{emerEmoji, deadEmoji} {
			if err := b.rest.MessageReactionAdd(ctrlMsg.ChannelID, ctrlMsg.ID, emoji); err != nil {
				slog.Warn("seeding control reactions", "emoji", emoji, "err", err)
			}
		}
	}()

	go func() {
		if delay > 0 {
			select {
			case <-b.eventCtx().Done():
				return
			case <-time.After(delay):
			}
		}

		report, err := b.game.HandleEvent(b.eventCtx(), game.GameStarted{Seed: seed})
		b.mu.Lock()
		b.starting = false
		b.mu.Unlock()
		if err != nil {
			slog.Error("starting game", "err", err)
			b.clearControlMessage()
			return
		}
		slog.Info("game started", "participants", len(seed), "grace", delay)
		b.reportFailures(report)
	}()
}

// endGame routes game end into the session and removes the control
// message.
func (b *Bot) endGame() {
	b.stopMeetingTimer()
	report, err := b.game.HandleEvent(b.eventCtx(), game.GameEnded{})
	if err != nil {
		if !errors.Is(err, game.ErrInvalidTransition) {
			slog.Warn("ending game", "err", err)
		}
		return
	}
	b.reportFailures(report)
	b.clearControlMessage()
	b.perms.SetGameOwner("")
}

// deadify handles the dead command: a controller marks a mentioned
// player dead.
func (b *Bot) deadify(m *discordgo.MessageCreate, args []string) {
	b.mu.Lock()
	ctrl := b.ctrl
	b.mu.Unlock()

	if ctrl == nil || !b.game.Active() {
		sendTemporary(b.rest, m.ChannelID, "There is no game running.", noticeTTL)
		return
	}
	if !b.perms.InControl(m.Author.ID) {
		send(b.rest, ctrl.channelID,
			"You must have started the game or be an owner of the bot to make others dead.\n"+
				"To make yourself dead, please use the reactions.")
		return
	}

	var targetID string
	if len(args) > 0 {
		if id, ok := parseMention(args[0]); ok {
			targetID = id
		}
	}
	if targetID == "" {
		send(b.rest, ctrl.channelID, "You must mention the user you wish to die.")
		return
	}

	report, err := b.game.HandleEvent(b.eventCtx(), game.LifeChanged{ID: targetID, Alive: false})
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			sendTemporary(b.rest, ctrl.channelID, "That user is not in the game.", noticeTTL)
			return
		}
		slog.Warn("marking player dead", "target", targetID, "err", err)
		return
	}
	sendTemporary(b.rest, ctrl.channelID, fmt.Sprintf("Deadifying <@%s>.", targetID), noticeTTL)
	b.reportFailures(report)
}

// setAlias handles the ident command: a player registers the name the
// capture feed knows them by, either for themselves or for a mentioned
// player.
func (b *Bot) setAlias(m *discordgo.MessageCreate, args []string) {
	targetID := m.Author.ID
	if len(args) > 0 {
		if id, ok := parseMention(args[0]); ok {
			targetID = id
			args = args[1:]
		}
	}
	if len(args) == 0 {
		sendTemporary(b.rest, m.ChannelID,
			fmt.Sprintf("Usage: %sident [@player] <in-game name>", b.prefix), noticeTTL)
		return
	}
	alias := strings.Join(args, " ")

	_, err := b.game.HandleEvent(b.eventCtx(), game.AliasSet{ID: targetID, Alias: alias})
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			reply := "You are not in the current game."
			if targetID != m.Author.ID {
				reply = fmt.Sprintf("<@%s> is not in the current game.", targetID)
			}
			sendTemporary(b.rest, m.ChannelID, reply, noticeTTL)
			return
		}
		slog.Warn("setting alias", "user", targetID, "err", err)
		return
	}
	if targetID != m.Author.ID {
		sendTemporary(b.rest, m.ChannelID,
			fmt.Sprintf("Got it, <@%s> is %q.", targetID, alias), noticeTTL)
		return
	}
	sendTemporary(b.rest, m.ChannelID, fmt.Sprintf("Got it, you are %q.", alias), noticeTTL)
}

// check handles the check command: without arguments it posts the status
// embed, with an argument it reports how that name would resolve.
func (b *Bot) check(m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		embed := buildStatusEmbed(b.game.Status())
		if _, err := b.rest.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
			slog.Warn("discord: failed to send status embed", "err", err)
		}
		return
	}

	query := strings.Join(args, " ")
	res := b.game.Resolve(query)
	switch res.Kind {
	case game.MatchUnique:
		sendTemporary(b.rest, m.ChannelID,
			fmt.Sprintf("%q resolves to <@%s>.", query, res.IDs[0]), noticeTTL)
	case game.MatchAmbiguous:
		sendTemporary(b.rest, m.ChannelID,
			fmt.Sprintf("%q is ambiguous between %d players.", query, len(res.IDs)), noticeTTL)
	default:
		reply := fmt.Sprintf("%q does not match anyone.", query)
		if res.Suggestion != "" {
			reply += fmt.Sprintf(" Did you mean %q?", res.Suggestion)
		}
		sendTemporary(b.rest, m.ChannelID, reply, noticeTTL)
	}
}
