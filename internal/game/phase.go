package game

import (
	"errors"
	"fmt"
)

// Phase is the current stage of the moderated game.
type Phase int

const (
	// PhaseIdle means no game is active.
	PhaseIdle Phase = iota

	// PhaseLobby is normal play: living players muted in the living room,
	// dead players muted in the dead room.
	PhaseLobby

	// PhaseMeeting is a called meeting: living players speak, dead players
	// stay muted and segregated.
	PhaseMeeting

	// PhaseEnded is the terminal phase of one game; everyone is restored
	// before the machine returns to [PhaseIdle].
	PhaseEnded
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLobby:
		return "lobby"
	case PhaseMeeting:
		return "meeting"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ErrAlreadyActive is returned by [PhaseMachine.Start] when a game is
// already running.
var ErrAlreadyActive = errors.New("a game is already active")

// ErrInvalidTransition is returned when a phase command arrives out of
// order. Callers must surface the rejection rather than retry blindly;
// blind retry could mask a desynchronised phase.
var ErrInvalidTransition = errors.New("invalid phase transition")

// PhaseMachine validates and applies game phase transitions. It is pure
// state with no locking of its own: the session serialises access.
type PhaseMachine struct {
	phase Phase
}

// NewPhaseMachine returns a machine in [PhaseIdle].
func NewPhaseMachine() *PhaseMachine {
	return &PhaseMachine{phase: PhaseIdle}
}

// Phase returns the current phase.
func (m *PhaseMachine) Phase() Phase {
	return m.phase
}

// Start begins a game: Idle → Lobby. Returns [ErrAlreadyActive] from any
// other phase.
func (m *PhaseMachine) Start() error {
	if m.phase != PhaseIdle {
		return fmt.Errorf("start from %s: %w", m.phase, ErrAlreadyActive)
	}
	m.phase = PhaseLobby
	return nil
}

// BeginMeeting transitions Lobby → Meeting.
func (m *PhaseMachine) BeginMeeting() error {
	if m.phase != PhaseLobby {
		return fmt.Errorf("meeting_begin from %s: %w", m.phase, ErrInvalidTransition)
	}
	m.phase = PhaseMeeting
	return nil
}

// EndMeeting transitions Meeting → Lobby.
func (m *PhaseMachine) EndMeeting() error {
	if m.phase != PhaseMeeting {
		return fmt.Errorf("meeting_end from %s: %w", m.phase, ErrInvalidTransition)
	}
	m.phase = PhaseLobby
	return nil
}

// EndGame transitions Lobby or Meeting → Ended.
func (m *PhaseMachine) EndGame() error {
	if m.phase != PhaseLobby && m.phase != PhaseMeeting {
		return fmt.Errorf("end_game from %s: %w", m.phase, ErrInvalidTransition)
	}
	m.phase = PhaseEnded
	return nil
}

// Reset returns the machine to [PhaseIdle] after the end-of-game restore
// dispatch has run. Legal from any phase; used on forced shutdown too.
func (m *PhaseMachine) Reset() {
	m.phase = PhaseIdle
}

// Active reports whether a game is in progress (Lobby or Meeting).
func (m *PhaseMachine) Active() bool {
	return m.phase == PhaseLobby || m.phase == PhaseMeeting
}
