package game

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sam-kirby/taskinator/internal/observe"
	"github.com/sam-kirby/taskinator/internal/platform"
	"github.com/sam-kirby/taskinator/internal/resilience"
)

// Failure describes one platform call that could not be applied.
type Failure struct {
	ParticipantID string
	Op            string
	Err           error
}

// Report summarises one dispatch cycle.
type Report struct {
	// Calls is the number of platform calls confirmed applied.
	Calls int

	// Skipped is the number of participants whose desired state already
	// matched the last applied state.
	Skipped int

	// Failures lists calls that failed permanently or exhausted their
	// retry budget. They are reported, never retried across cycles by the
	// dispatcher itself; the next replan will try again where safe.
	Failures []Failure
}

// Failed reports whether any call in the cycle failed.
func (r Report) Failed() bool { return len(r.Failures) > 0 }

// Dispatcher reconciles planned voice state against the last state
// confirmed applied and issues the minimal ordered set of platform
// calls. Exactly one dispatch cycle runs at a time: a replan triggered
// while a cycle is in flight queues behind it, so retried calls are
// never duplicated.
type Dispatcher struct {
	client  platform.Client
	retryer *resilience.Retryer
	breaker *resilience.Breaker
	metrics *observe.Metrics

	mu      sync.Mutex
	applied map[string]VoiceState
}

// DispatcherConfig holds dependencies for a [Dispatcher].
type DispatcherConfig struct {
	// Client is the platform REST surface. May be nil at construction
	// when the platform session does not exist yet; it must then be
	// supplied via [Dispatcher.SetClient] before the first Apply.
	Client platform.Client

	// Retry tunes the per-call bounded backoff. Zero values use defaults.
	Retry resilience.RetryConfig

	// Breaker guards the client against a fully unavailable API. When
	// nil, no breaker is used.
	Breaker *resilience.Breaker

	// Metrics receives call counters and cycle latency. When nil, the
	// package default instruments are used.
	Metrics *observe.Metrics
}

// NewDispatcher creates a [Dispatcher].
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{
		client:  cfg.Client,
		retryer: resilience.NewRetryer(cfg.Retry),
		breaker: cfg.Breaker,
		metrics: metrics,
		applied: make(map[string]VoiceState),
	}
}

// SetClient installs the platform client. It exists because the Discord
// REST surface is only available once the gateway session is open, after
// the dispatcher has already been wired into the game session.
func (d *Dispatcher) SetClient(client platform.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = client
}

// opKind is the concrete platform action an op issues.
type opKind int

const (
	opMute opKind = iota
	opUnmute
	opMove
)

// String returns the action name used in logs and metric attributes.
func (k opKind) String() string {
	switch k {
	case opMute:
		return "mute"
	case opUnmute:
		return "unmute"
	case opMove:
		return "move"
	default:
		return "unknown"
	}
}

// op is one platform call to issue, in order.
type op struct {
	participantID string
	kind          opKind
	room          Room // destination for opMove
}

// Apply reconciles plan against the last applied state and issues the
// required platform calls. It blocks until every call has been confirmed,
// permanently failed, or exhausted its bounded retry budget; it never
// blocks indefinitely.
func (d *Dispatcher) Apply(ctx context.Context, phase Phase, plan map[string]VoiceState, snap Snapshot) Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("phase", phase.String()),
			attribute.Int("participants", len(plan)),
		),
	)
	defer span.End()
	start := time.Now()

	ops, skipped := d.buildOps(plan, snap)

	var report Report
	report.Skipped = skipped
	for _, o := range ops {
		if err := d.execute(ctx, o); err != nil {
			report.Failures = append(report.Failures, Failure{
				ParticipantID: o.participantID,
				Op:            o.kind.String(),
				Err:           err,
			})
			continue
		}
		report.Calls++
	}

	d.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("calls", report.Calls),
		attribute.Int("failures", len(report.Failures)),
	)

	if report.Failed() {
		observe.Logger(ctx).Warn("dispatch cycle finished with failures",
			"phase", phase.String(),
			"calls", report.Calls,
			"failures", len(report.Failures),
		)
	}
	return report
}

// buildOps diffs the plan against the last applied state and produces the
// ordered call list. Participants transitioning into a speaking state
// come first (move before unmute, so nobody speaks from the wrong room);
// participants transitioning into a muted state follow (mute before move,
// so a dead player's voice is never exposed in the living room, even
// momentarily). Must be called with d.mu held.
func (d *Dispatcher) buildOps(plan map[string]VoiceState, snap Snapshot) (ops []op, skipped int) {
	var speaking, silencing []op

	for _, p := range snap.Participants {
		desired, ok := plan[p.ID]
		if !ok {
			continue
		}

		applied, known := d.applied[p.ID]
		needMute := !known || applied.Muted != desired.Muted
		needMove := desired.Room != RoomUnchanged && (!known || applied.Room != desired.Room)

		if !needMute && !needMove {
			skipped++
			continue
		}

		if desired.Muted {
			if needMute {
				silencing = append(silencing, op{participantID: p.ID, kind: opMute})
			}
			if needMove {
				silencing = append(silencing, op{participantID: p.ID, kind: opMove, room: desired.Room})
			}
		} else {
			if needMove {
				speaking = append(speaking, op{participantID: p.ID, kind: opMove, room: desired.Room})
			}
			if needMute {
				speaking = append(speaking, op{participantID: p.ID, kind: opUnmute})
			}
		}
	}

	return append(speaking, silencing...), skipped
}

// execute issues one platform call with retry and breaker protection,
// updating the applied state only after the call is confirmed applied or
// confirmed permanently failed. Must be called with d.mu held.
func (d *Dispatcher) execute(ctx context.Context, o op) error {
	attempts := 0
	call := func(ctx context.Context) error {
		attempts++
		fn := func() error {
			switch o.kind {
			case opMute:
				return d.client.Mute(ctx, o.participantID, true)
			case opUnmute:
				return d.client.Mute(ctx, o.participantID, false)
			case opMove:
				return d.client.MoveToRoom(ctx, o.participantID, platformRoom(o.room))
			default:
				panic("game: unknown dispatch op")
			}
		}
		if d.breaker != nil {
			return d.breaker.Execute(fn)
		}
		return fn()
	}

	err := d.retryer.Do(ctx, o.kind.String(), call)
	if attempts > 1 {
		d.metrics.PlatformRetries.Add(ctx, int64(attempts-1))
	}

	switch {
	case err == nil:
		d.confirm(o)
		d.metrics.RecordPlatformCall(ctx, o.kind.String(), "ok")
		return nil

	case platform.IsPermanent(err):
		// The call will never succeed: reconcile the applied record so the
		// next cycle does not re-issue it, and surface the discrepancy.
		d.confirm(o)
		d.metrics.RecordPlatformCall(ctx, o.kind.String(), "permanent")
		observe.Logger(ctx).Warn("platform call failed permanently",
			"participant", o.participantID,
			"op", o.kind.String(),
			"err", err,
		)
		return err

	default:
		// Transient budget exhausted: leave the applied record untouched
		// so the next replan tries again.
		d.metrics.RecordPlatformCall(ctx, o.kind.String(), "transient")
		return err
	}
}

// confirm records the outcome of a settled call. Must be called with
// d.mu held.
func (d *Dispatcher) confirm(o op) {
	state := d.applied[o.participantID]
	switch o.kind {
	case opMute:
		state.Muted = true
	case opUnmute:
		state.Muted = false
	case opMove:
		state.Room = o.room
	}
	d.applied[o.participantID] = state
}

// Forget drops the applied record for a departed participant.
func (d *Dispatcher) Forget(participantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.applied, participantID)
}

// Reset clears all applied records. Called when the game returns to idle;
// the next game re-learns actual state by issuing calls unconditionally.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = make(map[string]VoiceState)
}

// platformRoom converts a planner room to the platform boundary type.
// [RoomUnchanged] never reaches the platform; buildOps elides it.
func platformRoom(r Room) platform.Room {
	switch r {
	case RoomLiving:
		return platform.RoomLiving
	case RoomDead:
		return platform.RoomDead
	default:
		panic("game: unmapped room " + r.String())
	}
}
