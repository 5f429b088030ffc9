package discord

import (
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// rest is the slice of the discordgo session the handlers use. Narrow on
// purpose so tests can record calls without a gateway connection.
type rest interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID string, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID string, messageID string, emojiID string, options ...discordgo.RequestOption) error
}

// Compile-time check that the real session satisfies the handler surface.
var _ rest = (*discordgo.Session)(nil)

// send posts content to a channel, logging failures instead of
// propagating them: a lost notice must not abort game handling.
func send(r rest, channelID, content string) *discordgo.Message {
	msg, err := r.ChannelMessageSend(channelID, content)
	if err != nil {
		slog.Warn("discord: failed to send message", "channel", channelID, "err", err)
		return nil
	}
	return msg
}

// sendTemporary posts content and deletes it again after ttl.
func sendTemporary(r rest, channelID, content string, ttl time.Duration) {
	msg := send(r, channelID, content)
	if msg == nil {
		return
	}
	go func() {
		time.Sleep(ttl)
		deleteMessage(r, channelID, msg.ID)
	}()
}

// deleteMessage removes a message, logging failures.
func deleteMessage(r rest, channelID, messageID string) {
	if err := r.ChannelMessageDelete(channelID, messageID); err != nil {
		slog.Warn("discord: failed to delete message",
			"channel", channelID,
			"message", messageID,
			"err", err,
		)
	}
}
