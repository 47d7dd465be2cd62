package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/signal_mock.go -package=mocks

import (
	"context"
	"errors"
)

// Frame is one encoded control message, ready for the wire.
// Frames are shared between recipients of a broadcast and must not be mutated.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// SignalConnection is the outbox of one session's reliable connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking; ErrBackpressure when the queue is full.
	TrySend(f Frame) error
	// Send queues f, waiting for room until ctx is done.
	Send(ctx context.Context, f Frame) error
	Close()
}
