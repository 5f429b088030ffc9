// Package game implements the core of the mute coordinator: the player
// registry, identity matching, the game phase machine, the voice-state
// planner, the dispatcher that reconciles planned state against the
// platform, and the session that ties them together behind a single
// event entry point.
package game

// Room is a participant's voice location in a plan or snapshot.
type Room int

const (
	// RoomUnchanged means the participant is already correctly placed and
	// no move call is needed. Only ever appears in planner output.
	RoomUnchanged Room = iota

	// RoomLiving is the channel living players talk in.
	RoomLiving

	// RoomDead is the channel dead players are segregated into.
	RoomDead
)

// String returns the human-readable name of the room.
func (r Room) String() string {
	switch r {
	case RoomUnchanged:
		return "unchanged"
	case RoomLiving:
		return "living"
	case RoomDead:
		return "dead"
	default:
		return "unknown"
	}
}

// VoiceState is a (muted, room) pair: either the target state the planner
// computed for a participant, or the last state confirmed applied.
type VoiceState struct {
	Muted bool
	Room  Room
}

// Presence describes a participant observed in a moderated voice channel.
// It is the argument to [Registry.Upsert] and the seed unit for game start.
type Presence struct {
	// ID is the stable platform identifier. Identity is always this ID,
	// never a display name.
	ID string

	// DisplayName is the platform-visible name at observation time.
	DisplayName string

	// Room is the moderated channel the participant is currently in.
	Room Room

	// Spectator excludes the participant from all automated actions.
	Spectator bool
}

// Participant is one tracked platform account.
type Participant struct {
	ID          string
	DisplayName string

	// Alias is the player-chosen name used for matching; empty until set
	// via [Registry.SetAlias].
	Alias string

	// Alive is true from game start until the player is marked dead.
	Alive bool

	// Spectator excludes the participant from planning entirely.
	Spectator bool

	// Room is the moderated channel the participant was last observed in.
	Room Room
}

// Snapshot is an immutable, consistent view of the registry taken for one
// planning cycle. Mutating the registry after a snapshot is taken never
// affects the snapshot.
type Snapshot struct {
	Participants []Participant
}

// Get returns the participant with the given ID and whether it exists.
func (s Snapshot) Get(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}
