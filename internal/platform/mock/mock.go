// Package mock provides a recording [platform.Client] test double.
package mock

import (
	"context"
	"sync"

	"github.com/sam-kirby/taskinator/internal/platform"
)

// Compile-time interface assertion.
var _ platform.Client = (*Client)(nil)

// Call records a single platform call for test assertions.
type Call struct {
	// Op is "mute" or "move".
	Op string

	// ParticipantID is the target participant.
	ParticipantID string

	// Muted is the requested flag for mute calls.
	Muted bool

	// Room is the destination for move calls.
	Room platform.Room
}

// Client is a thread-safe in-memory [platform.Client] that records every
// call and returns scripted errors. The zero value is ready to use.
type Client struct {
	mu    sync.Mutex
	calls []Call

	// errs holds per-call scripted errors, consumed front to back. When
	// exhausted, calls succeed.
	errs []error
}

// FailNext queues errs to be returned by subsequent calls, one per call,
// in order. A nil entry makes that call succeed.
func (c *Client) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, errs...)
}

// Mute implements [platform.Client.Mute].
func (c *Client) Mute(_ context.Context, participantID string, muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: "mute", ParticipantID: participantID, Muted: muted})
	return c.nextErr()
}

// MoveToRoom implements [platform.Client.MoveToRoom].
func (c *Client) MoveToRoom(_ context.Context, participantID string, room platform.Room) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: "move", ParticipantID: participantID, Room: room})
	return c.nextErr()
}

// nextErr pops the next scripted error. Must be called with c.mu held.
func (c *Client) nextErr() error {
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

// Calls returns a copy of all recorded calls.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsFor returns the recorded calls targeting participantID, in order.
func (c *Client) CallsFor(participantID string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.ParticipantID == participantID {
			out = append(out, call)
		}
	}
	return out
}

// Reset clears all recorded calls and scripted errors.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.errs = nil
}
