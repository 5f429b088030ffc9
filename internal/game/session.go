package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sam-kirby/taskinator/internal/observe"
)

// Session is the owned aggregate of one logical game: the registry, the
// phase machine, and the dispatcher. It is the single writer path for
// game state. Events may arrive concurrently from the gateway and the
// capture listener; the session serialises each mutate-then-plan step
// under one mutex, copies the snapshot out, and dispatches outside the
// lock so platform I/O never blocks event intake on the state itself.
// Dispatch cycles run in the order their plans were computed: each
// cycle takes a ticket while the mutex is held and waits its turn, so
// an older plan can never overwrite a newer one on the platform.
type Session struct {
	registry   *Registry
	phase      *PhaseMachine
	dispatcher *Dispatcher
	metrics    *observe.Metrics

	// mu serialises mutation and planning. Never held across platform calls.
	mu     sync.Mutex
	id     string
	ticket uint64

	// dead pins eliminations for the life of the game so a player who
	// drops from voice and rejoins comes back dead. Guarded by mu.
	dead map[string]struct{}

	// turnMu and turnCond gate dispatch cycles into ticket order.
	turnMu   sync.Mutex
	turnCond *sync.Cond
	turn     uint64
}

// SessionConfig holds dependencies for a [Session].
type SessionConfig struct {
	// Dispatcher applies planned state to the platform. Required.
	Dispatcher *Dispatcher

	// Metrics receives event and phase counters. When nil, the package
	// default instruments are used.
	Metrics *observe.Metrics
}

// NewSession creates an idle [Session].
func NewSession(cfg SessionConfig) *Session {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Session{
		registry:   NewRegistry(),
		phase:      NewPhaseMachine(),
		dispatcher: cfg.Dispatcher,
		metrics:    metrics,
		dead:       make(map[string]struct{}),
	}
	s.turnCond = sync.NewCond(&s.turnMu)
	return s
}

// ID returns the identifier of the current game, or the empty string
// when no game is active.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Phase returns the current game phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.Phase()
}

// Active reports whether a game is in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.Active()
}

// Resolve maps a name to tracked participants using the current registry
// state. Pure query; safe at any phase.
func (s *Session) Resolve(query string) MatchResult {
	return Resolve(s.registry.Snapshot(), query)
}

// HandleEvent applies ev to the session state and, when the mutation is
// accepted, triggers a plan + dispatch cycle. Rejected transitions
// ([ErrAlreadyActive], [ErrInvalidTransition]) and unknown participants
// ([ErrNotFound]) are returned for the caller to surface; the event is
// dropped, never retried.
func (s *Session) HandleEvent(ctx context.Context, ev Event) (Report, error) {
	s.mu.Lock()
	before := s.registry.Len()

	endOfGame, err := s.apply(ev)
	if err != nil {
		s.mu.Unlock()
		s.metrics.RecordEvent(ctx, ev.Name(), "rejected")
		return Report{}, err
	}

	planPhase := s.phase.Phase()
	if endOfGame {
		// Restore everyone before the state is torn down.
		planPhase = PhaseEnded
	}
	snap := s.registry.Snapshot()
	plan := Plan(planPhase, snap)

	s.metrics.TrackedParticipants.Add(ctx, int64(s.registry.Len()-before))
	tix := s.takeTicket()
	s.mu.Unlock()

	s.awaitTurn(tix)
	report := s.dispatcher.Apply(ctx, planPhase, plan, snap)
	s.finishTurn()

	if endOfGame {
		s.teardown(ctx)
	}

	s.metrics.RecordEvent(ctx, ev.Name(), "ok")
	return report, nil
}

// takeTicket issues the next dispatch slot. Must be called with s.mu
// held so slots come out in plan order.
func (s *Session) takeTicket() uint64 {
	t := s.ticket
	s.ticket++
	return t
}

// awaitTurn blocks until slot tix is up.
func (s *Session) awaitTurn(tix uint64) {
	s.turnMu.Lock()
	for s.turn != tix {
		s.turnCond.Wait()
	}
	s.turnMu.Unlock()
}

// finishTurn releases the next dispatch slot.
func (s *Session) finishTurn() {
	s.turnMu.Lock()
	s.turn++
	s.turnCond.Broadcast()
	s.turnMu.Unlock()
}

// apply performs the state mutation for ev and reports whether this event
// ends the game. Must be called with s.mu held.
func (s *Session) apply(ev Event) (endOfGame bool, err error) {
	switch e := ev.(type) {
	case GameStarted:
		if err := s.phase.Start(); err != nil {
			return false, err
		}
		s.id = uuid.NewString()
		s.registry.Clear()
		clear(s.dead)
		for _, p := range e.Seed {
			s.registry.Upsert(p)
		}
		s.recordTransition()
		slog.Info("game started", "session", s.id, "participants", len(e.Seed))

	case GameEnded:
		if err := s.phase.EndGame(); err != nil {
			return false, err
		}
		s.recordTransition()
		slog.Info("game ended", "session", s.id)
		return true, nil

	case MeetingBegan:
		if err := s.phase.BeginMeeting(); err != nil {
			return false, err
		}
		s.recordTransition()

	case MeetingEnded:
		if err := s.phase.EndMeeting(); err != nil {
			return false, err
		}
		s.recordTransition()

	case PresenceUpdated:
		s.registry.Upsert(e.Presence)
		// A dead player who dropped from voice rejoins dead, not alive.
		if _, gone := s.dead[e.Presence.ID]; gone {
			_ = s.registry.MarkAlive(e.Presence.ID, false)
		}

	case PresenceLeft:
		s.registry.Remove(e.ID)
		s.dispatcher.Forget(e.ID)

	case AliasSet:
		if err := s.registry.SetAlias(e.ID, e.Alias); err != nil {
			return false, err
		}

	case LifeChanged:
		if err := s.registry.MarkAlive(e.ID, e.Alive); err != nil {
			return false, err
		}
		if e.Alive {
			delete(s.dead, e.ID)
		} else {
			s.dead[e.ID] = struct{}{}
		}

	default:
		return false, fmt.Errorf("game: unhandled event %q", ev.Name())
	}

	return false, nil
}

// teardown clears all game state after the end-of-game restore dispatch.
func (s *Session) teardown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.TrackedParticipants.Add(ctx, -int64(s.registry.Len()))
	s.registry.Clear()
	clear(s.dead)
	s.phase.Reset()
	s.dispatcher.Reset()
	s.id = ""
}

// recordTransition emits the phase transition counter. Must be called
// with s.mu held, after the transition applied.
func (s *Session) recordTransition() {
	s.metrics.RecordPhaseTransition(context.Background(), s.phase.Phase().String())
}

// ParticipantStatus is one row of a [Status] report.
type ParticipantStatus struct {
	ID          string
	DisplayName string
	Alias       string
	Alive       bool
	Spectator   bool
	Room        Room
}

// Status is the queryable view of the session consumed by reporting
// commands.
type Status struct {
	SessionID    string
	Phase        Phase
	Participants []ParticipantStatus
}

// Status returns a consistent report of the current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	id := s.id
	phase := s.phase.Phase()
	s.mu.Unlock()

	snap := s.registry.Snapshot()
	out := Status{SessionID: id, Phase: phase}
	for _, p := range snap.Participants {
		out.Participants = append(out.Participants, ParticipantStatus{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Alias:       p.Alias,
			Alive:       p.Alive,
			Spectator:   p.Spectator,
			Room:        p.Room,
		})
	}
	return out
}
