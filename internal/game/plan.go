package game

import "fmt"

// Plan computes the target voice state for every tracked, non-spectator
// participant given the current phase. It is a pure function: the same
// snapshot always yields the same plan.
//
// The rules, per participant:
//
//	Lobby,   alive: muted, living room
//	Lobby,   dead:  muted, dead room
//	Meeting, alive: unmuted, living room
//	Meeting, dead:  muted, dead room
//	Ended/Idle:     unmuted, living room (restore everyone)
//
// Dead players are never unmuted before game end: they talk freely among
// themselves in the dead room while staying silent to the living. When a
// participant is already in the target room the plan carries
// [RoomUnchanged] so the dispatcher can skip the move call.
//
// An unrecognised phase is a programming invariant violation and panics.
func Plan(phase Phase, snap Snapshot) map[string]VoiceState {
	plan := make(map[string]VoiceState, len(snap.Participants))

	for _, p := range snap.Participants {
		if p.Spectator {
			continue
		}

		var target VoiceState
		switch phase {
		case PhaseLobby:
			if p.Alive {
				target = VoiceState{Muted: true, Room: RoomLiving}
			} else {
				target = VoiceState{Muted: true, Room: RoomDead}
			}
		case PhaseMeeting:
			if p.Alive {
				target = VoiceState{Muted: false, Room: RoomLiving}
			} else {
				target = VoiceState{Muted: true, Room: RoomDead}
			}
		case PhaseEnded, PhaseIdle:
			target = VoiceState{Muted: false, Room: RoomLiving}
		default:
			panic(fmt.Sprintf("game: plan called with unrecognised phase %d", phase))
		}

		if target.Room == p.Room {
			target.Room = RoomUnchanged
		}
		plan[p.ID] = target
	}

	return plan
}
