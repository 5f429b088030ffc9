package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sam-kirby/taskinator/internal/game"
	"github.com/sam-kirby/taskinator/internal/platform/mock"
)

// restRecorder records handler REST calls for assertions.
type restRecorder struct {
	mu        sync.Mutex
	sent      []string // "channelID:content"
	embeds    []*discordgo.MessageEmbed
	deleted   []string // message IDs
	reactions []string // emoji
	nextID    int
}

func (r *restRecorder) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.sent = append(r.sent, channelID+":"+content)
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", r.nextID), ChannelID: channelID}, nil
}

func (r *restRecorder) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.embeds = append(r.embeds, embed)
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", r.nextID), ChannelID: channelID}, nil
}

func (r *restRecorder) ChannelMessageDelete(_ string, messageID string, _ ...discordgo.RequestOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
	return nil
}

func (r *restRecorder) MessageReactionAdd(_ string, _ string, emojiID string, _ ...discordgo.RequestOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, emojiID)
	return nil
}

func (r *restRecorder) sentContaining(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sent {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// newTestBot builds a Bot with a recorded REST surface, a gateway-free
// state cache, and a mock platform client behind the game session.
func newTestBot(t *testing.T) (*Bot, *restRecorder, *mock.Client) {
	t.Helper()

	client := &mock.Client{}
	sess := game.NewSession(game.SessionConfig{
		Dispatcher: game.NewDispatcher(game.DispatcherConfig{Client: client}),
	})

	rec := &restRecorder{}
	state := discordgo.NewState()
	if err := state.GuildAdd(&discordgo.Guild{ID: "guild"}); err != nil {
		t.Fatalf("seeding state guild: %v", err)
	}

	b := &Bot{
		session:         &discordgo.Session{State: state, StateEnabled: true},
		rest:            rec,
		game:            sess,
		perms:           NewController(),
		guildID:         "guild",
		livingChannelID: "living",
		deadChannelID:   "dead",
		spectatorRoleID: "spectator",
		prefix:          "~",
		ctx:             context.Background(),
		botID:           "bot-self",
	}
	return b, rec, client
}

// addVoiceMember seeds the state cache with a member sitting in a voice
// channel.
func addVoiceMember(t *testing.T, b *Bot, userID, username, channelID string, roles ...string) {
	t.Helper()
	err := b.session.State.MemberAdd(&discordgo.Member{
		GuildID: "guild",
		User:    &discordgo.User{ID: userID, Username: username},
		Roles:   roles,
	})
	if err != nil {
		t.Fatalf("seeding member: %v", err)
	}
	err = b.session.State.OnInterface(b.session, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: "guild", UserID: userID, ChannelID: channelID},
	})
	if err != nil {
		t.Fatalf("seeding voice state: %v", err)
	}
}

func startTestGame(t *testing.T, b *Bot, client *mock.Client) {
	t.Helper()
	b.handleMessageCreate(command("ctrl-user", "~new 0"))
	waitFor(t, func() bool { return b.game.Active() && !b.isStarting() })
	client.Reset()
}

func command(authorID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "cmd-msg",
		GuildID:   "guild",
		ChannelID: "text",
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "author"},
	}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		content  string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{content: "~new", wantName: "new", wantOK: true},
		{content: "~new 10", wantName: "new", wantArgs: []string{"10"}, wantOK: true},
		{content: "~DEAD <@123>", wantName: "dead", wantArgs: []string{"<@123>"}, wantOK: true},
		{content: "~", wantOK: false},
		{content: "hello", wantOK: false},
		{content: "new", wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.content, func(t *testing.T) {
			t.Parallel()
			name, args, ok := parseCommand(tc.content, "~")
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if name != tc.wantName {
				t.Errorf("name = %q, want %q", name, tc.wantName)
			}
			if len(args) != len(tc.wantArgs) {
				t.Errorf("args = %v, want %v", args, tc.wantArgs)
			}
		})
	}
}

func TestParseMention(t *testing.T) {
	t.Parallel()

	cases := []struct {
		token  string
		wantID string
		wantOK bool
	}{
		{token: "<@123456>", wantID: "123456", wantOK: true},
		{token: "<@!123456>", wantID: "123456", wantOK: true},
		{token: "<@>", wantOK: false},
		{token: "<@abc>", wantOK: false},
		{token: "123456", wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			t.Parallel()
			id, ok := parseMention(tc.token)
			if ok != tc.wantOK || id != tc.wantID {
				t.Errorf("parseMention(%q) = (%q, %v), want (%q, %v)", tc.token, id, ok, tc.wantID, tc.wantOK)
			}
		})
	}
}

func TestBeginGameSeedsAndMutes(t *testing.T) {
	t.Parallel()

	b, rec, client := newTestBot(t)
	addVoiceMember(t, b, "p1", "red", "living")
	addVoiceMember(t, b, "p2", "blue", "living")
	addVoiceMember(t, b, "watcher", "lurker", "living", "spectator")

	b.handleMessageCreate(command("ctrl-user", "~new 0"))
	waitFor(t, func() bool { return b.game.Active() })

	if !rec.sentContaining("game is in progress") {
		t.Error("control message not posted")
	}
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.reactions) == 2
	})

	waitFor(t, func() bool { return len(client.CallsFor("p1")) == 1 })
	if calls := client.CallsFor("p1"); !calls[0].Muted {
		t.Errorf("player not muted into lobby: %+v", calls)
	}
	if calls := client.CallsFor("watcher"); len(calls) != 0 {
		t.Errorf("spectator touched at game start: %+v", calls)
	}
	if !b.perms.InControl("ctrl-user") {
		t.Error("game starter not in control")
	}
}

func TestBeginGameWhileActive(t *testing.T) {
	t.Parallel()

	b, rec, client := newTestBot(t)
	addVoiceMember(t, b, "p1", "red", "living")
	startTestGame(t, b, client)

	b.handleMessageCreate(command("someone-else", "~new 0"))
	waitFor(t, func() bool { return rec.sentContaining("already in progress") })
}

func TestDeadCommand(t *testing.T) {
	t.Parallel()

	b, rec, client := newTestBot(t)
	addVoiceMember(t, b, "101", "red", "living")
	addVoiceMember(t, b, "102", "blue", "living")
	startTestGame(t, b, client)

	t.Run("requires a running game", func(t *testing.T) {
		b2, rec2, _ := newTestBot(t)
		b2.handleMessageCreate(command("anyone", "~dead <@101>"))
		waitFor(t, func() bool { return rec2.sentContaining("no game running") })
	})

	t.Run("requires control", func(t *testing.T) {
		b.handleMessageCreate(command("102", "~dead <@101>"))
		waitFor(t, func() bool { return rec.sentContaining("must have started the game") })
		if calls := client.CallsFor("101"); len(calls) != 0 {
			t.Errorf("uncontrolled dead command dispatched: %+v", calls)
		}
	})

	t.Run("controller marks target dead", func(t *testing.T) {
		b.handleMessageCreate(command("ctrl-user", "~dead <@101>"))
		waitFor(t, func() bool { return len(client.CallsFor("101")) > 0 })
		calls := client.CallsFor("101")
		if calls[0].Op != "mute" && calls[0].Op != "move" {
			t.Errorf("unexpected call %+v", calls[0])
		}
	})

	t.Run("unknown target reported", func(t *testing.T) {
		b.handleMessageCreate(command("ctrl-user", "~dead <@555>"))
		waitFor(t, func() bool { return rec.sentContaining("not in the game") })
	})

	t.Run("missing mention reported", func(t *testing.T) {
		b.handleMessageCreate(command("ctrl-user", "~dead nobody"))
		waitFor(t, func() bool { return rec.sentContaining("must mention") })
	})
}

func TestEndCommand(t *testing.T) {
	t.Parallel()

	b, rec, client := newTestBot(t)
	addVoiceMember(t, b, "p1", "red", "living")
	startTestGame(t, b, client)

	// A bystander cannot end the game.
	b.handleMessageCreate(command("bystander", "~end"))
	if !b.game.Active() {
		t.Fatal("bystander ended the game")
	}

	b.handleMessageCreate(command("ctrl-user", "~end"))
	waitFor(t, func() bool { return !b.game.Active() })

	// Control message cleaned up and restore dispatched.
	rec.mu.Lock()
	deleted := len(rec.deleted)
	rec.mu.Unlock()
	if deleted == 0 {
		t.Error("control message not deleted on game end")
	}
	if calls := client.CallsFor("p1"); len(calls) == 0 || calls[0].Muted {
		t.Errorf("player not restored on game end: %+v", calls)
	}
}

func TestStopCommandRequestsShutdown(t *testing.T) {
	t.Parallel()

	b, _, client := newTestBot(t)
	addVoiceMember(t, b, "p1", "red", "living")
	var stopped sync.WaitGroup
	stopped.Add(1)
	b.requestShutdown = func() { stopped.Done() }
	b.perms.SetOwners("owner")
	startTestGame(t, b, client)

	b.handleMessageCreate(command("owner", "~stop"))
	stopped.Wait()
	if b.game.Active() {
		t.Error("stop left the game running")
	}
}

func TestIdentCommand(t *testing.T) {
	t.Parallel()

	b, rec, client := newTestBot(t)
	addVoiceMember(t, b, "p1", "red", "living")
	startTestGame(t, b, client)

	b.handleMessageCreate(command("p1", "~ident Captain Scarlet"))
	waitFor(t, func() bool { return b.game.Resolve("captain scarlet").Kind == game.MatchUnique })

	// Players outside the game are told so.
	b.handleMessageCreate(command("stranger", "~ident Ghost"))
	waitFor(t, func() bool { return rec.sentContaining("not in the current game") })
}

func TestIdentCommandForMention(t *testing.T) {
	t.Parallel()

	b, rec, client := newTestBot(t)
	addVoiceMember(t, b, "101", "red", "living")
	addVoiceMember(t, b, "102", "blue", "living")
	startTestGame(t, b, client)

	// A mention sets the alias on the mentioned player, not the author.
	b.handleMessageCreate(command("101", "~ident <@102> Agent Blue"))
	waitFor(t, func() bool { return b.game.Resolve("agent blue").Kind == game.MatchUnique })
	if got := b.game.Resolve("agent blue"); got.IDs[0] != "102" {
		t.Errorf("alias landed on %q, want 102", got.IDs[0])
	}

	// A mention of someone outside the game names them in the reply.
	b.handleMessageCreate(command("101", "~ident <@404> Nobody"))
	waitFor(t, func() bool { return rec.sentContaining("<@404> is not in the current game") })

	// A mention with no alias after it is a usage error.
	b.handleMessageCreate(command("101", "~ident <@102>"))
	waitFor(t, func() bool { return rec.sentContaining("Usage:") })
}

func TestCheckCommand(t *testing.T) {
	t.Parallel()

	b, rec, client := newTestBot(t)
	addVoiceMember(t, b, "p1", "red", "living")
	startTestGame(t, b, client)

	b.handleMessageCreate(command("p1", "~check"))
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.embeds) == 1
	})

	b.handleMessageCreate(command("p1", "~check red"))
	waitFor(t, func() bool { return rec.sentContaining("resolves to") })

	b.handleMessageCreate(command("p1", "~check nobody"))
	waitFor(t, func() bool { return rec.sentContaining("does not match") })
}

func TestIgnoresBotsAndForeignGuilds(t *testing.T) {
	t.Parallel()

	b, rec, _ := newTestBot(t)

	botMsg := command("other-bot", "~new 0")
	botMsg.Author.Bot = true
	b.handleMessageCreate(botMsg)

	foreign := command("user", "~new 0")
	foreign.GuildID = "other-guild"
	b.handleMessageCreate(foreign)

	time.Sleep(20 * time.Millisecond)
	if b.game.Active() {
		t.Error("ignored message started a game")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.sent) != 0 {
		t.Errorf("ignored messages produced %d replies", len(rec.sent))
	}
}
