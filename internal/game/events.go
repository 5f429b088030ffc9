package game

// Event is the closed sum of inbound signals the session consumes. Every
// external input — commands, reactions, meeting detection, voice channel
// churn — is normalised into one of these before reaching the core.
type Event interface {
	// Name is the event label used in logs and metric attributes.
	Name() string
}

// GameStarted begins a new game, seeding the registry from the current
// moderated-channel membership.
type GameStarted struct {
	// Seed holds the participants present at game start.
	Seed []Presence
}

// Name implements [Event].
func (GameStarted) Name() string { return "game_started" }

// GameEnded ends the active game: everyone is unmuted and reunited in the
// living room, then all state is cleared.
type GameEnded struct{}

// Name implements [Event].
func (GameEnded) Name() string { return "game_ended" }

// MeetingBegan signals a meeting start, from a reaction or the capture
// listener.
type MeetingBegan struct{}

// Name implements [Event].
func (MeetingBegan) Name() string { return "meeting_began" }

// MeetingEnded signals a meeting end.
type MeetingEnded struct{}

// Name implements [Event].
func (MeetingEnded) Name() string { return "meeting_ended" }

// PresenceUpdated signals a participant joining or moving between the
// moderated voice channels.
type PresenceUpdated struct {
	Presence Presence
}

// Name implements [Event].
func (PresenceUpdated) Name() string { return "presence_updated" }

// PresenceLeft signals a participant leaving the moderated channels.
type PresenceLeft struct {
	ID string
}

// Name implements [Event].
func (PresenceLeft) Name() string { return "presence_left" }

// AliasSet records a player-chosen name for identity matching.
type AliasSet struct {
	ID    string
	Alias string
}

// Name implements [Event].
func (AliasSet) Name() string { return "alias_set" }

// LifeChanged marks a participant dead or alive. Idempotent,
// last-writer-wins.
type LifeChanged struct {
	ID    string
	Alive bool
}

// Name implements [Event].
func (LifeChanged) Name() string { return "life_changed" }
