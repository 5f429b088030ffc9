package game_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sam-kirby/taskinator/internal/game"
	"github.com/sam-kirby/taskinator/internal/platform/mock"
)

func newTestSession(t *testing.T, client *mock.Client) *game.Session {
	t.Helper()
	metrics := newTestMetrics(t)
	return game.NewSession(game.SessionConfig{
		Dispatcher: game.NewDispatcher(game.DispatcherConfig{
			Client:  client,
			Metrics: metrics,
		}),
		Metrics: metrics,
	})
}

func seedPresences() []game.Presence {
	return []game.Presence{
		{ID: "1", DisplayName: "red", Room: game.RoomLiving},
		{ID: "2", DisplayName: "blue", Room: game.RoomLiving},
		{ID: "3", DisplayName: "lime", Room: game.RoomLiving},
	}
}

func startGame(t *testing.T, s *game.Session, client *mock.Client) {
	t.Helper()
	report, err := s.HandleEvent(context.Background(), game.GameStarted{Seed: seedPresences()})
	if err != nil {
		t.Fatalf("starting game: %v", err)
	}
	if report.Failed() {
		t.Fatalf("start dispatch failed: %+v", report.Failures)
	}
	client.Reset()
}

func TestSessionGameStart(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)

	report, err := s.HandleEvent(context.Background(), game.GameStarted{Seed: seedPresences()})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if s.Phase() != game.PhaseLobby {
		t.Errorf("expected phase Lobby, got %v", s.Phase())
	}
	if s.ID() == "" {
		t.Error("expected a session id after start")
	}
	// Everyone in the seed starts alive and in the living room, so the
	// lobby plan is three mutes and no moves.
	if report.Calls != 3 {
		t.Errorf("expected 3 calls, got %d", report.Calls)
	}
	for _, call := range client.Calls() {
		if call.Op != "mute" || !call.Muted {
			t.Errorf("unexpected start call %+v", call)
		}
	}
}

func TestSessionStartWhileActive(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)
	if _, err := s.HandleEvent(context.Background(), game.MeetingBegan{}); err != nil {
		t.Fatalf("beginning meeting: %v", err)
	}
	client.Reset()

	id := s.ID()
	_, err := s.HandleEvent(context.Background(), game.GameStarted{Seed: seedPresences()})
	if !errors.Is(err, game.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}

	// The rejected start must leave the running game untouched.
	if s.Phase() != game.PhaseMeeting {
		t.Errorf("phase disturbed by rejected start: %v", s.Phase())
	}
	if s.ID() != id {
		t.Error("session id disturbed by rejected start")
	}
	if calls := client.Calls(); len(calls) != 0 {
		t.Errorf("rejected start dispatched %d calls", len(calls))
	}
}

func TestSessionMeetingFlow(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)

	report, err := s.HandleEvent(context.Background(), game.MeetingBegan{})
	if err != nil {
		t.Fatalf("MeetingBegan: %v", err)
	}
	if s.Phase() != game.PhaseMeeting {
		t.Errorf("expected phase Meeting, got %v", s.Phase())
	}
	if report.Calls != 3 {
		t.Errorf("expected 3 unmutes, got %d calls", report.Calls)
	}
	client.Reset()

	report, err = s.HandleEvent(context.Background(), game.MeetingEnded{})
	if err != nil {
		t.Fatalf("MeetingEnded: %v", err)
	}
	if s.Phase() != game.PhaseLobby {
		t.Errorf("expected phase Lobby, got %v", s.Phase())
	}
	if report.Calls != 3 {
		t.Errorf("expected 3 mutes, got %d calls", report.Calls)
	}
}

func TestSessionDeathDuringMeeting(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)
	if _, err := s.HandleEvent(context.Background(), game.MeetingBegan{}); err != nil {
		t.Fatalf("MeetingBegan: %v", err)
	}
	client.Reset()

	// Death during a meeting silences and segregates the victim at once.
	report, err := s.HandleEvent(context.Background(), game.LifeChanged{ID: "2", Alive: false})
	if err != nil {
		t.Fatalf("LifeChanged: %v", err)
	}
	if report.Failed() {
		t.Fatalf("dispatch failed: %+v", report.Failures)
	}

	calls := client.CallsFor("2")
	if len(calls) != 2 {
		t.Fatalf("expected mute then move for the victim, got %+v", calls)
	}
	if calls[0].Op != "mute" || !calls[0].Muted {
		t.Errorf("first call must mute, got %+v", calls[0])
	}
	if calls[1].Op != "move" {
		t.Errorf("second call must move, got %+v", calls[1])
	}
	if others := len(client.Calls()) - len(calls); others != 0 {
		t.Errorf("%d calls touched uninvolved participants", others)
	}
}

func TestSessionLifeChangeUnknownParticipant(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)

	_, err := s.HandleEvent(context.Background(), game.LifeChanged{ID: "99", Alive: false})
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls := client.Calls(); len(calls) != 0 {
		t.Errorf("rejected event dispatched %d calls", len(calls))
	}
}

func TestSessionAliasSet(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)

	if _, err := s.HandleEvent(context.Background(), game.AliasSet{ID: "1", Alias: "Captain"}); err != nil {
		t.Fatalf("AliasSet: %v", err)
	}

	res := s.Resolve("captain")
	if res.Kind != game.MatchUnique || res.IDs[0] != "1" {
		t.Fatalf("alias not resolvable: %+v", res)
	}

	_, err := s.HandleEvent(context.Background(), game.AliasSet{ID: "99", Alias: "ghost"})
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown participant, got %v", err)
	}
}

func TestSessionGameEndRestoresAndClears(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)
	if _, err := s.HandleEvent(context.Background(), game.LifeChanged{ID: "3", Alive: false}); err != nil {
		t.Fatalf("LifeChanged: %v", err)
	}
	// Gateway echo of the dispatcher's move into the dead room.
	if _, err := s.HandleEvent(context.Background(), game.PresenceUpdated{
		Presence: game.Presence{ID: "3", DisplayName: "lime", Room: game.RoomDead},
	}); err != nil {
		t.Fatalf("PresenceUpdated: %v", err)
	}
	client.Reset()

	report, err := s.HandleEvent(context.Background(), game.GameEnded{})
	if err != nil {
		t.Fatalf("GameEnded: %v", err)
	}
	if report.Failed() {
		t.Fatalf("restore dispatch failed: %+v", report.Failures)
	}

	// The dead participant is moved home and unmuted, the living pair
	// unmuted. Everything about the game is then gone.
	victim := client.CallsFor("3")
	if len(victim) != 2 || victim[0].Op != "move" || victim[1].Muted {
		t.Errorf("expected move then unmute for the dead participant, got %+v", victim)
	}
	if report.Calls != 4 {
		t.Errorf("expected 4 restore calls, got %d", report.Calls)
	}

	if s.Active() {
		t.Error("session still active after game end")
	}
	if s.ID() != "" {
		t.Error("session id survived teardown")
	}
	if got := len(s.Status().Participants); got != 0 {
		t.Errorf("registry survived teardown with %d participants", got)
	}
}

func TestSessionPresenceChurn(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)

	// A newcomer joining mid-game is swept into the current phase.
	report, err := s.HandleEvent(context.Background(), game.PresenceUpdated{
		Presence: game.Presence{ID: "4", DisplayName: "pink", Room: game.RoomLiving},
	})
	if err != nil {
		t.Fatalf("PresenceUpdated: %v", err)
	}
	if calls := client.CallsFor("4"); len(calls) != 1 || !calls[0].Muted {
		t.Errorf("newcomer not muted into the lobby: %+v (report %+v)", calls, report)
	}
	client.Reset()

	// Departure drops the participant and its applied record; nothing is
	// dispatched for someone no longer present.
	if _, err := s.HandleEvent(context.Background(), game.PresenceLeft{ID: "4"}); err != nil {
		t.Fatalf("PresenceLeft: %v", err)
	}
	if calls := client.CallsFor("4"); len(calls) != 0 {
		t.Errorf("departed participant still dispatched: %+v", calls)
	}
	if _, ok := statusByID(s.Status(), "4"); ok {
		t.Error("departed participant still tracked")
	}
}

func TestSessionSpectatorsUntouched(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)

	seed := append(seedPresences(), game.Presence{
		ID: "spec", DisplayName: "lurker", Room: game.RoomLiving, Spectator: true,
	})
	if _, err := s.HandleEvent(context.Background(), game.GameStarted{Seed: seed}); err != nil {
		t.Fatalf("GameStarted: %v", err)
	}
	if _, err := s.HandleEvent(context.Background(), game.MeetingBegan{}); err != nil {
		t.Fatalf("MeetingBegan: %v", err)
	}

	if calls := client.CallsFor("spec"); len(calls) != 0 {
		t.Errorf("spectator received %d platform calls", len(calls))
	}
}

func TestSessionStatus(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)
	if _, err := s.HandleEvent(context.Background(), game.AliasSet{ID: "2", Alias: "Sky"}); err != nil {
		t.Fatalf("AliasSet: %v", err)
	}
	if _, err := s.HandleEvent(context.Background(), game.LifeChanged{ID: "2", Alive: false}); err != nil {
		t.Fatalf("LifeChanged: %v", err)
	}

	st := s.Status()
	if st.Phase != game.PhaseLobby {
		t.Errorf("expected phase Lobby, got %v", st.Phase)
	}
	if st.SessionID == "" {
		t.Error("status missing session id")
	}
	p, ok := statusByID(st, "2")
	if !ok {
		t.Fatal("participant 2 missing from status")
	}
	if p.Alias != "Sky" || p.Alive {
		t.Errorf("unexpected status row %+v", p)
	}
}

func TestSessionDeathSurvivesVoiceChurn(t *testing.T) {
	t.Parallel()

	client := &mock.Client{}
	s := newTestSession(t, client)
	startGame(t, s, client)
	ctx := context.Background()

	if _, err := s.HandleEvent(ctx, game.LifeChanged{ID: "2", Alive: false}); err != nil {
		t.Fatalf("marking dead: %v", err)
	}
	if _, err := s.HandleEvent(ctx, game.PresenceLeft{ID: "2"}); err != nil {
		t.Fatalf("dropping participant: %v", err)
	}
	client.Reset()

	// The dead player's connection comes back in the living channel.
	rejoin := game.Presence{ID: "2", DisplayName: "blue", Room: game.RoomLiving}
	if _, err := s.HandleEvent(ctx, game.PresenceUpdated{Presence: rejoin}); err != nil {
		t.Fatalf("rejoining: %v", err)
	}

	st, ok := statusByID(s.Status(), "2")
	if !ok {
		t.Fatal("participant 2 missing after rejoin")
	}
	if st.Alive {
		t.Error("rejoin resurrected a dead participant")
	}
	for _, c := range client.Calls() {
		if c.ParticipantID == "2" && c.Op == "mute" && !c.Muted {
			t.Fatalf("rejoin unmuted a dead participant: %+v", client.Calls())
		}
	}
	client.Reset()

	if _, err := s.HandleEvent(ctx, game.MeetingBegan{}); err != nil {
		t.Fatalf("beginning meeting: %v", err)
	}
	for _, c := range client.Calls() {
		if c.ParticipantID == "2" && c.Op == "mute" && !c.Muted {
			t.Fatalf("meeting unmuted a dead participant: %+v", client.Calls())
		}
	}

	// An explicit revive lifts the pin.
	if _, err := s.HandleEvent(ctx, game.LifeChanged{ID: "2", Alive: true}); err != nil {
		t.Fatalf("reviving: %v", err)
	}
	if _, err := s.HandleEvent(ctx, game.PresenceLeft{ID: "2"}); err != nil {
		t.Fatalf("dropping revived participant: %v", err)
	}
	if _, err := s.HandleEvent(ctx, game.PresenceUpdated{Presence: rejoin}); err != nil {
		t.Fatalf("rejoining revived participant: %v", err)
	}
	if st, _ := statusByID(s.Status(), "2"); !st.Alive {
		t.Error("revived participant came back dead")
	}
}

func statusByID(st game.Status, id string) (game.ParticipantStatus, bool) {
	for _, p := range st.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return game.ParticipantStatus{}, false
}
