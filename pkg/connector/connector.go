package connector

import (
	"context"
	"time"
)

// State of a link to the device.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "invalid"
}

// DefaultReadTimeout bounds Read and ReadLine when no timeout has been configured.
const DefaultReadTimeout = time.Second

// Port is a serial-port-like view of a link to the device. Bytes written are delivered to the
// device; bytes received from the device are buffered until consumed by Read or ReadLine.
//
// A Port supports one writer and one reader at a time. Callers must not issue Write concurrently
// with another Write, Read or ReadLine on the same Port.
type Port interface {
	// Write sends p to the device.
	Write(ctx context.Context, p []byte) error

	// Read returns exactly n bytes, waiting up to the configured timeout for them to arrive.
	Read(ctx context.Context, n int) ([]byte, error)

	// ReadLine returns the buffered bytes up to and including the first line feed, waiting up to
	// the configured timeout for one to arrive.
	ReadLine(ctx context.Context) ([]byte, error)

	// ResetInputBuffer discards all buffered input.
	ResetInputBuffer()

	// InWaiting returns the number of buffered bytes.
	InWaiting() int

	// SetTimeout changes the timeout used by Read and ReadLine.
	SetTimeout(timeout time.Duration)

	// Close releases the link. Repeated calls to Close must be idempotent.
	Close()
}
