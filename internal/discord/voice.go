package discord

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/sam-kirby/taskinator/internal/game"
)

// roomForChannel maps a voice channel to its game room. ok is false for
// channels the coordinator does not manage.
func (b *Bot) roomForChannel(channelID string) (game.Room, bool) {
	switch channelID {
	case b.livingChannelID:
		return game.RoomLiving, true
	case b.deadChannelID:
		return game.RoomDead, true
	default:
		return game.RoomUnchanged, false
	}
}

// handleVoiceStateUpdate keeps the registry in step with the voice
// channels. Joins and channel moves become presence updates; leaving the
// managed channels becomes a departure.
func (b *Bot) handleVoiceStateUpdate(v *discordgo.VoiceStateUpdate) {
	if v.GuildID != b.guildID || b.isSelf(v.UserID) || !b.game.Active() {
		return
	}

	room, managed := b.roomForChannel(v.ChannelID)
	if !managed {
		if _, err := b.game.HandleEvent(b.eventCtx(), game.PresenceLeft{ID: v.UserID}); err != nil {
			slog.Warn("handling voice departure", "user", v.UserID, "err", err)
		}
		return
	}

	member := v.Member
	if member == nil {
		var err error
		member, err = b.session.State.Member(b.guildID, v.UserID)
		if err != nil {
			slog.Warn("resolving member for voice update", "user", v.UserID, "err", err)
			return
		}
	}
	if member.User != nil && member.User.Bot {
		return
	}

	_, err := b.game.HandleEvent(b.eventCtx(), game.PresenceUpdated{
		Presence: game.Presence{
			ID:          v.UserID,
			DisplayName: displayName(member),
			Room:        room,
			Spectator:   b.isSpectator(member),
		},
	})
	if err != nil {
		slog.Warn("handling voice update", "user", v.UserID, "err", err)
	}
}

// seedPresences reads the managed voice channels from the state cache and
// returns the starting participant set.
func (b *Bot) seedPresences() ([]game.Presence, error) {
	guild, err := b.session.State.Guild(b.guildID)
	if err != nil {
		return nil, fmt.Errorf("discord: guild %s not in state cache: %w", b.guildID, err)
	}

	members := make(map[string]*discordgo.Member, len(guild.Members))
	for _, m := range guild.Members {
		if m.User != nil {
			members[m.User.ID] = m
		}
	}

	var seed []game.Presence
	for _, vs := range guild.VoiceStates {
		room, managed := b.roomForChannel(vs.ChannelID)
		if !managed || b.isSelf(vs.UserID) {
			continue
		}
		member := members[vs.UserID]
		if member == nil {
			member, err = b.session.State.Member(b.guildID, vs.UserID)
			if err != nil {
				slog.Warn("voice state for unknown member", "user", vs.UserID)
				continue
			}
		}
		if member.User != nil && member.User.Bot {
			continue
		}
		seed = append(seed, game.Presence{
			ID:          vs.UserID,
			DisplayName: displayName(member),
			Room:        room,
			Spectator:   b.isSpectator(member),
		})
	}
	return seed, nil
}

// isSpectator reports whether member carries the configured spectator
// role.
func (b *Bot) isSpectator(member *discordgo.Member) bool {
	return b.spectatorRoleID != "" && slices.Contains(member.Roles, b.spectatorRoleID)
}

// displayName picks the name players actually see: the guild nickname
// when set, otherwise the account's display name.
func displayName(member *discordgo.Member) string {
	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		if member.User.GlobalName != "" {
			return member.User.GlobalName
		}
		return member.User.Username
	}
	return ""
}
