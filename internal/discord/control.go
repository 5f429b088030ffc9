package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/sam-kirby/taskinator/internal/game"
)

// embedColorActive is the status embed sidebar color while a game runs.
const embedColorActive = 0x2ECC71

// embedColorIdle is the status embed sidebar color with no game.
const embedColorIdle = 0xE74C3C

// handleReactionAdd drives the control message: the alarm emoji begins a
// meeting (controller only), the skull marks the reactor dead.
func (b *Bot) handleReactionAdd(r *discordgo.MessageReactionAdd) {
	if !b.isControlReaction(r.MessageID) || b.isSelf(r.UserID) {
		return
	}

	switch r.Emoji.Name {
	case emerEmoji:
		if !b.perms.InControl(r.UserID) {
			return
		}
		report, err := b.game.HandleEvent(b.eventCtx(), game.MeetingBegan{})
		if err != nil {
			if !errors.Is(err, game.ErrInvalidTransition) {
				slog.Warn("beginning meeting", "err", err)
			}
			return
		}
		b.startMeetingTimer()
		b.reportFailures(report)

	case deadEmoji:
		report, err := b.game.HandleEvent(b.eventCtx(), game.LifeChanged{ID: r.UserID, Alive: false})
		if err != nil {
			// Non-players react too; nothing to do.
			if !errors.Is(err, game.ErrNotFound) {
				slog.Warn("self-marking dead", "user", r.UserID, "err", err)
			}
			return
		}
		b.reportFailures(report)
	}
}

// handleReactionRemove ends the meeting when the controller withdraws
// the alarm reaction.
func (b *Bot) handleReactionRemove(r *discordgo.MessageReactionRemove) {
	if !b.isControlReaction(r.MessageID) || b.isSelf(r.UserID) {
		return
	}
	if r.Emoji.Name != emerEmoji || !b.perms.InControl(r.UserID) {
		return
	}
	b.endMeeting()
}

// handleMessageDelete ends the game when someone deletes the control
// message out from under it: without the message there is no way to call
// meetings or die.
func (b *Bot) handleMessageDelete(m *discordgo.MessageDelete) {
	b.mu.Lock()
	ctrl := b.ctrl
	if ctrl == nil || m.ID != ctrl.messageID {
		b.mu.Unlock()
		return
	}
	// Already gone; don't try to delete it again in endGame.
	b.ctrl = nil
	b.mu.Unlock()

	slog.Warn("control message deleted externally; ending game")
	b.endGame()
}

// isControlReaction reports whether messageID is the live control
// message.
func (b *Bot) isControlReaction(messageID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctrl != nil && b.ctrl.messageID == messageID
}

// clearControlMessage deletes the control message if one exists.
func (b *Bot) clearControlMessage() {
	b.mu.Lock()
	ctrl := b.ctrl
	b.ctrl = nil
	b.mu.Unlock()
	if ctrl == nil {
		return
	}
	deleteMessage(b.rest, ctrl.channelID, ctrl.messageID)
}

// buildStatusEmbed renders the session state for the check command.
func buildStatusEmbed(st game.Status) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Taskinator",
		Color: embedColorIdle,
	}

	if st.SessionID == "" {
		embed.Description = "No game in progress."
		return embed
	}

	embed.Color = embedColorActive
	embed.Description = fmt.Sprintf("Game `%s` — %s", st.SessionID, st.Phase)

	var living, dead, spectators []string
	for _, p := range st.Participants {
		label := fmt.Sprintf("<@%s>", p.ID)
		if p.Alias != "" {
			label += fmt.Sprintf(" (%s)", p.Alias)
		}
		switch {
		case p.Spectator:
			spectators = append(spectators, label)
		case p.Alive:
			living = append(living, label)
		default:
			dead = append(dead, label)
		}
	}

	addField := func(name string, ids []string) {
		if len(ids) == 0 {
			return
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s (%d)", name, len(ids)),
			Value: strings.Join(ids, "\n"),
		})
	}
	addField("Living", living)
	addField("Dead", dead)
	addField("Spectating", spectators)

	return embed
}
