// Package discord provides a [platform.Client] implementation backed by
// the Discord REST API via the bwmarrin/discordgo library.
//
// The client requires an active *discordgo.Session (owned by the bot
// layer), the target guild, and the two moderated voice channel IDs.
// REST failures are classified into transient and permanent kinds so
// the dispatcher can decide whether a retry is worthwhile.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/sam-kirby/taskinator/internal/platform"
)

// Compile-time interface assertion.
var _ platform.Client = (*Client)(nil)

// Client implements [platform.Client] using discordgo guild member edits.
// It is safe for concurrent use; discordgo serialises REST calls per
// rate-limit bucket internally.
type Client struct {
	session      *discordgo.Session
	guildID      string
	livingRoomID string
	deadRoomID   string
}

// New creates a Client for the given session, guild, and room channels.
func New(session *discordgo.Session, guildID, livingRoomID, deadRoomID string) *Client {
	return &Client{
		session:      session,
		guildID:      guildID,
		livingRoomID: livingRoomID,
		deadRoomID:   deadRoomID,
	}
}

// Mute implements [platform.Client.Mute].
func (c *Client) Mute(ctx context.Context, participantID string, muted bool) error {
	err := c.session.GuildMemberMute(c.guildID, participantID, muted, discordgo.WithContext(ctx))
	if err != nil {
		return classify("mute", err)
	}
	return nil
}

// MoveToRoom implements [platform.Client.MoveToRoom].
func (c *Client) MoveToRoom(ctx context.Context, participantID string, room platform.Room) error {
	channelID, err := c.channelFor(room)
	if err != nil {
		return platform.Permanent("move", err)
	}
	if err := c.session.GuildMemberMove(c.guildID, participantID, &channelID, discordgo.WithContext(ctx)); err != nil {
		return classify("move", err)
	}
	return nil
}

// channelFor maps a room to its configured channel ID.
func (c *Client) channelFor(room platform.Room) (string, error) {
	switch room {
	case platform.RoomLiving:
		return c.livingRoomID, nil
	case platform.RoomDead:
		return c.deadRoomID, nil
	default:
		return "", fmt.Errorf("discord: no channel configured for room %v", room)
	}
}

// classify converts a discordgo REST failure into a classified
// [platform.Error].
//
// Rate limits and server-side errors are transient. Missing members and
// permission failures are permanent: retrying cannot succeed, and a 404
// usually just means the participant left voice mid-dispatch.
func classify(op string, err error) *platform.Error {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return platform.Transient(op, err)
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch {
		case rest.Response.StatusCode == http.StatusTooManyRequests:
			return platform.Transient(op, err)
		case rest.Response.StatusCode >= 500:
			return platform.Transient(op, err)
		case rest.Response.StatusCode == http.StatusForbidden,
			rest.Response.StatusCode == http.StatusNotFound,
			rest.Response.StatusCode == http.StatusBadRequest:
			return platform.Permanent(op, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return platform.Transient(op, err)
	}

	// Unknown failure mode: assume transient so a flaky gateway does not
	// permanently desync last-applied state.
	return platform.Transient(op, err)
}
