package connector

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

// Buffer accumulates notification fragments and hands them out as a byte stream.
//
// Notify is called by the transport when a fragment arrives and never blocks. Read and ReadLine
// block the caller until enough data is available or the deadline passes. A read that times out
// leaves the buffer unchanged.
type Buffer struct {
	lock    sync.Mutex
	data    []byte
	arrived chan struct{} // Closed and replaced on every append.
	timeout time.Duration
}

func NewBuffer() *Buffer {
	return &Buffer{
		arrived: make(chan struct{}),
		timeout: DefaultReadTimeout,
	}
}

// Notify appends p to the buffer. Empty fragments are ignored. Notify copies p, so the caller may
// reuse it.
func (b *Buffer) Notify(p []byte) {
	if len(p) == 0 {
		return
	}
	b.lock.Lock()
	b.data = append(b.data, p...)
	close(b.arrived)
	b.arrived = make(chan struct{})
	b.lock.Unlock()
}

// SetTimeout sets the wait applied by Read and ReadLine. Values <= 0 restore DefaultReadTimeout.
func (b *Buffer) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	b.lock.Lock()
	b.timeout = timeout
	b.lock.Unlock()
}

// Read removes and returns the first n bytes.
func (b *Buffer) Read(ctx context.Context, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("connector: invalid read size %d", n)
	}
	if n == 0 {
		return []byte{}, nil
	}
	data, err := b.wait(ctx, func(data []byte) int {
		if len(data) >= n {
			return n
		}
		return -1
	})
	if err != nil {
		log.Warning("Timed out waiting for %d bytes of data", n)
	}
	return data, err
}

// ReadLine removes and returns the bytes up to and including the first '\n'.
func (b *Buffer) ReadLine(ctx context.Context) ([]byte, error) {
	data, err := b.wait(ctx, func(data []byte) int {
		return bytes.IndexByte(data, '\n') + 1
	})
	if err != nil {
		log.Debug("Timed out waiting for line terminator")
	}
	return data, err
}

// ResetInputBuffer discards all buffered bytes.
func (b *Buffer) ResetInputBuffer() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if len(b.data) > 0 {
		log.Debug("Discarding %d buffered bytes", len(b.data))
	}
	b.data = nil
}

// InWaiting returns the number of buffered bytes.
func (b *Buffer) InWaiting() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.data)
}

// wait blocks until ready reports a prefix length > 0, then removes that prefix. ready is called
// with the lock held and must not retain data.
func (b *Buffer) wait(ctx context.Context, ready func(data []byte) int) ([]byte, error) {
	b.lock.Lock()
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	for {
		if n := ready(b.data); n > 0 {
			out := make([]byte, n)
			copy(out, b.data)
			b.data = b.data[n:]
			if len(b.data) == 0 {
				b.data = nil
			}
			b.lock.Unlock()
			return out, nil
		}
		arrived := b.arrived
		b.lock.Unlock()

		select {
		case <-arrived:
		case <-timer.C:
			return nil, protocol.ErrReadTimeout
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", protocol.ErrReadTimeout, ctx.Err())
		}
		b.lock.Lock()
	}
}
