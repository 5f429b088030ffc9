// Package capture implements the companion-capture listener: a websocket
// endpoint that game-state capture tools push events to. Events carry
// in-game names, which are resolved against the registry before being
// routed into the session.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/sam-kirby/taskinator/internal/game"
)

// Capture event types.
const (
	eventMeetingBegin = "meeting_begin"
	eventMeetingEnd   = "meeting_end"
	eventPlayerDied   = "player_died"
)

// shutdownGrace is how long Run waits for in-flight connections on
// context cancellation.
const shutdownGrace = 5 * time.Second

// event is one frame pushed by a capture tool.
type event struct {
	// Type is meeting_begin, meeting_end, or player_died.
	Type string `json:"type"`

	// Name is the in-game name of the affected player. Only set for
	// player_died.
	Name string `json:"name,omitempty"`
}

// reply is the acknowledgement frame sent back for every event.
type reply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Suggestion carries the closest registered name when a player_died
	// name did not resolve.
	Suggestion string `json:"suggestion,omitempty"`
}

// ListenerConfig holds dependencies for a [Listener].
type ListenerConfig struct {
	// Addr is the TCP address to bind (e.g., ":8765"). Required for Run.
	Addr string

	// AuthToken, when non-empty, is required as a Bearer token on every
	// connection.
	AuthToken string

	// Game is the session capture events are routed into. Required.
	Game *game.Session
}

// Listener accepts capture tool websocket connections and routes their
// events into the game session.
type Listener struct {
	addr  string
	token string
	game  *game.Session

	conns atomic.Int64
}

// NewListener creates a [Listener].
func NewListener(cfg ListenerConfig) *Listener {
	return &Listener{
		addr:  cfg.Addr,
		token: cfg.AuthToken,
		game:  cfg.Game,
	}
}

// Connections returns the number of capture tools currently connected.
func (l *Listener) Connections() int {
	return int(l.conns.Load())
}

// Run serves the listener until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	srv := &http.Server{Addr: l.addr, Handler: l}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("capture listener running", "addr", l.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("capture: shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("capture: serve: %w", err)
		}
		return nil
	}
}

// ServeHTTP upgrades the connection and pumps events until the peer
// disconnects.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !l.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("capture: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	l.conns.Add(1)
	defer l.conns.Add(-1)
	slog.Info("capture tool connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				slog.Info("capture tool disconnected", "remote", r.RemoteAddr)
			} else {
				slog.Warn("capture: read failed", "remote", r.RemoteAddr, "err", err)
			}
			return
		}

		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			l.writeReply(ctx, conn, reply{Status: "error", Error: "malformed event"})
			continue
		}
		l.writeReply(ctx, conn, l.handle(ctx, ev))
	}
}

// authorized checks the Bearer token when one is configured.
func (l *Listener) authorized(r *http.Request) bool {
	if l.token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+l.token
}

// handle routes one capture event into the session and builds the
// acknowledgement. Unresolvable or ambiguous names are dropped, never
// guessed: a wrong guess would mute the wrong player.
func (l *Listener) handle(ctx context.Context, ev event) reply {
	switch ev.Type {
	case eventMeetingBegin:
		return l.route(ctx, game.MeetingBegan{})

	case eventMeetingEnd:
		return l.route(ctx, game.MeetingEnded{})

	case eventPlayerDied:
		name := strings.TrimSpace(ev.Name)
		if name == "" {
			return reply{Status: "error", Error: "player_died requires a name"}
		}
		res := l.game.Resolve(name)
		switch res.Kind {
		case game.MatchUnique:
			return l.route(ctx, game.LifeChanged{ID: res.IDs[0], Alive: false})
		case game.MatchAmbiguous:
			slog.Warn("capture: ambiguous player name", "name", name, "candidates", len(res.IDs))
			return reply{Status: "error", Error: fmt.Sprintf("name %q is ambiguous", name)}
		default:
			slog.Warn("capture: unknown player name", "name", name, "suggestion", res.Suggestion)
			return reply{
				Status:     "error",
				Error:      fmt.Sprintf("no player named %q", name),
				Suggestion: res.Suggestion,
			}
		}

	default:
		return reply{Status: "error", Error: fmt.Sprintf("unknown event type %q", ev.Type)}
	}
}

// route feeds a game event into the session and maps the outcome onto an
// acknowledgement.
func (l *Listener) route(ctx context.Context, gev game.Event) reply {
	report, err := l.game.HandleEvent(ctx, gev)
	if err != nil {
		return reply{Status: "error", Error: err.Error()}
	}
	if report.Failed() {
		slog.Warn("capture event applied with dispatch failures",
			"event", gev.Name(),
			"failures", len(report.Failures),
		)
	}
	return reply{Status: "ok"}
}

// writeReply sends an acknowledgement frame, logging failures.
func (l *Listener) writeReply(ctx context.Context, conn *websocket.Conn, r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("capture: marshal reply", "err", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("capture: write reply", "err", err)
	}
}
