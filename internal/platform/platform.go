// Package platform defines the voice platform boundary consumed by the
// game core: the minimal client surface for muting participants and
// moving them between the two moderated rooms, plus the classified
// error type the dispatcher's retry logic relies on.
package platform

import (
	"context"
	"errors"
	"fmt"
)

// Room is one of the two moderated voice locations.
type Room int

const (
	// RoomLiving is the channel living players talk in.
	RoomLiving Room = iota

	// RoomDead is the channel dead players are segregated into.
	RoomDead
)

// String returns the human-readable name of the room.
func (r Room) String() string {
	switch r {
	case RoomLiving:
		return "living"
	case RoomDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Client is the remote voice-platform surface the dispatcher calls out to.
// Implementations must return an [Error] so callers can classify failures;
// any other error is treated as transient.
type Client interface {
	// Mute sets the server-side mute flag for a participant.
	Mute(ctx context.Context, participantID string, muted bool) error

	// MoveToRoom moves a participant into the given room.
	MoveToRoom(ctx context.Context, participantID string, room Room) error
}

// ErrorKind classifies a platform failure for retry purposes.
type ErrorKind int

const (
	// KindTransient marks failures worth retrying: rate limits, timeouts,
	// gateway hiccups.
	KindTransient ErrorKind = iota

	// KindPermanent marks failures that will not succeed on retry: the
	// participant left, or the bot lacks permission.
	KindPermanent
)

// String returns the human-readable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is a classified platform failure.
type Error struct {
	// Kind determines whether the dispatcher retries the call.
	Kind ErrorKind

	// Op is the failed operation ("mute" or "move").
	Op string

	// Err is the underlying platform error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("platform: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable platform error.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable platform error.
func Permanent(op string, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// IsPermanent reports whether err is a platform error classified as
// permanent. Unclassified errors are treated as transient.
func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindPermanent
}
