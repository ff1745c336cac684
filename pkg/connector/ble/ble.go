// Package ble exposes a BLE GATT peripheral with one write characteristic and one notify
// characteristic as a [connector.Port].
//
// Requests are written to the write characteristic in MTU-sized blocks. Notifications received on
// the notify characteristic are appended to a [connector.Buffer], from which Read and ReadLine
// consume.
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/connector"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

var errSendInProgress = errors.New("ble: previous write still in progress")

const (
	defaultMTU    = 23
	maxBLEMTUSize = 512 + 3
)

// Profile names the GATT service and characteristics used by a dongle model.
type Profile struct {
	ServiceUUID string
	WriteUUID   string
	NotifyUUID  string
}

// DefaultProfile matches the common ELM327 BLE dongles.
var DefaultProfile = Profile{
	ServiceUUID: "0000fff0-0000-1000-8000-00805f9b34fb",
	WriteUUID:   "0000fff2-0000-1000-8000-00805f9b34fb",
	NotifyUUID:  "0000fff1-0000-1000-8000-00805f9b34fb",
}

// Config holds the retry and timeout policy of a Link.
type Config struct {
	ConnectAttempts  int
	ConnectTimeout   time.Duration // Covers dial, service discovery and subscribe.
	ConnectBaseDelay time.Duration

	WriteAttempts  int
	WriteTimeout   time.Duration
	WriteBaseDelay time.Duration

	// TeardownTimeout bounds unsubscribe and disconnect individually.
	TeardownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectAttempts:  3,
		ConnectTimeout:   10 * time.Second,
		ConnectBaseDelay: 500 * time.Millisecond,
		WriteAttempts:    2,
		WriteTimeout:     2 * time.Second,
		WriteBaseDelay:   100 * time.Millisecond,
		TeardownTimeout:  2 * time.Second,
	}
}

// Link is a connection to one peripheral. It implements [connector.Port].
type Link struct {
	adapter Adapter
	target  Target
	profile Profile
	config  Config

	lock    sync.Mutex
	state   connector.State
	conn    *connection
	timeout time.Duration
}

var _ connector.Port = (*Link)(nil)

// connection holds the resources of one successful connect attempt.
type connection struct {
	device      Device
	service     Service
	writer      Writer
	buffer      *connector.Buffer
	blockLength int

	// Held for the whole of a send so that blocks of two requests never interleave, even when
	// a timed out attempt is still running in the background.
	sending sync.Mutex
}

func NewLink(adapter Adapter, target Target, profile Profile, config Config) *Link {
	return &Link{
		adapter: adapter,
		target:  target,
		profile: profile,
		config:  config,
		timeout: connector.DefaultReadTimeout,
	}
}

// Open creates a Link and connects it.
func Open(ctx context.Context, adapter Adapter, target Target, profile Profile, config Config) (*Link, error) {
	link := NewLink(adapter, target, profile, config)
	if err := link.Connect(ctx); err != nil {
		return nil, err
	}
	return link, nil
}

// State returns the current connection state.
func (l *Link) State() connector.State {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.state
}

// Connect opens the link, retrying with exponential backoff. The returned error matches
// protocol.ErrConnection once every attempt has failed.
func (l *Link) Connect(ctx context.Context) error {
	l.lock.Lock()
	if l.state != connector.StateDisconnected {
		l.lock.Unlock()
		return nil
	}
	l.state = connector.StateConnecting
	l.lock.Unlock()

	attempt := 0
	op := func() error {
		attempt++
		log.Debug("Connecting to %s (attempt %d/%d)", l.target.Address, attempt, l.config.ConnectAttempts)
		conn, err := l.tryToConnect(ctx)
		if err != nil {
			log.Warning("BLE connection attempt %d/%d failed: %s", attempt, l.config.ConnectAttempts, err)
			return err
		}
		l.lock.Lock()
		conn.buffer.SetTimeout(l.timeout)
		l.conn = conn
		l.state = connector.StateConnected
		l.lock.Unlock()
		return nil
	}

	policy := connector.RetryPolicy(ctx, l.config.ConnectAttempts, l.config.ConnectBaseDelay)
	if err := backoff.Retry(op, policy); err != nil {
		l.lock.Lock()
		l.state = connector.StateDisconnected
		l.lock.Unlock()
		log.Error("All connection attempts to %s failed", l.target.Address)
		return fmt.Errorf("%w: %s: %w", protocol.ErrConnection, l.target.Address, err)
	}
	log.Info("Connected to %s", l.target.Address)
	return nil
}

type dialResult struct {
	conn *connection
	err  error
}

func (l *Link) tryToConnect(ctx context.Context) (*connection, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.ConnectTimeout)
	defer cancel()

	done := make(chan dialResult, 1)
	go func() {
		conn, err := l.dial(ctx)
		done <- dialResult{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			// The driver may finish connecting after we gave up on this attempt.
			if r := <-done; r.conn != nil {
				l.teardown(r.conn)
			}
		}()
		return nil, ctx.Err()
	}
}

func (l *Link) dial(ctx context.Context) (*connection, error) {
	device, err := l.adapter.Connect(ctx, l.target)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*connection, error) {
		if closeErr := device.Close(); closeErr != nil {
			log.Debug("ble: failed to close device after error: %s", closeErr)
		}
		return nil, err
	}

	service, err := device.Service(ctx, l.profile.ServiceUUID)
	if err != nil {
		return fail(err)
	}

	writer, err := service.Tx(l.profile.WriteUUID)
	if err != nil {
		return fail(err)
	}

	blockLength := defaultMTU - 3
	if txMtu, err := writer.MTU(maxBLEMTUSize); err != nil {
		log.Debug("ble: failed to exchange MTU: %s", err)
	} else if txMtu > 3 {
		blockLength = txMtu - 3 // 3 bytes for header
	}

	buffer := connector.NewBuffer()
	if err := service.Subscribe(l.profile.NotifyUUID, buffer.Notify); err != nil {
		return fail(err)
	}
	log.Debug("Notifications started on %s", l.profile.NotifyUUID)

	return &connection{
		device:      device,
		service:     service,
		writer:      writer,
		buffer:      buffer,
		blockLength: blockLength,
	}, nil
}

// Close stops notifications and disconnects. Failures are logged, never returned, and the link
// is left disconnected regardless.
func (l *Link) Close() {
	l.lock.Lock()
	conn := l.conn
	l.conn = nil
	l.state = connector.StateDisconnected
	l.lock.Unlock()

	if conn != nil {
		l.teardown(conn)
	}
}

func (l *Link) teardown(conn *connection) {
	ctx := context.Background()
	timeout := l.config.TeardownTimeout

	log.Debug("Stopping notifications on %s", l.profile.NotifyUUID)
	if err := connector.RunWithTimeout(ctx, timeout, func() error {
		return conn.service.Unsubscribe(l.profile.NotifyUUID)
	}); err != nil {
		log.Warning("Failed to stop notifications: %s", err)
	}

	log.Debug("Disconnecting from %s", l.target.Address)
	if err := connector.RunWithTimeout(ctx, timeout, conn.device.Close); err != nil {
		log.Warning("Failed to disconnect from %s: %s", l.target.Address, err)
	}
}

// Write sends buffer to the device. It fails immediately, without touching the driver, if the
// link is not connected.
func (l *Link) Write(ctx context.Context, buffer []byte) error {
	l.lock.Lock()
	conn := l.conn
	connected := l.state == connector.StateConnected && conn != nil
	l.lock.Unlock()

	if !connected {
		log.Error("Cannot write: link not connected")
		return fmt.Errorf("%w: %w", protocol.ErrWrite, protocol.ErrNotConnected)
	}

	log.Debug("TX: %q", buffer)
	attempt := 0
	op := func() error {
		attempt++
		err := connector.RunWithTimeout(ctx, l.config.WriteTimeout, func() error {
			return conn.send(buffer)
		})
		if err != nil {
			log.Warning("Write attempt %d/%d failed: %s", attempt, l.config.WriteAttempts, err)
		}
		return err
	}

	policy := connector.RetryPolicy(ctx, l.config.WriteAttempts, l.config.WriteBaseDelay)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrWrite, err)
	}
	return nil
}

func (c *connection) send(buffer []byte) error {
	if !c.sending.TryLock() {
		return errSendInProgress
	}
	defer c.sending.Unlock()

	out := buffer
	blockLength := c.blockLength
	for len(out) > 0 {
		if blockLength > len(out) {
			blockLength = len(out)
		}

		n, err := c.writer.Write(out[:blockLength])
		if err != nil {
			return err
		} else if n != blockLength {
			return fmt.Errorf("ble: failed to write %d bytes", blockLength)
		}

		out = out[blockLength:]
	}
	return nil
}

func (l *Link) buffer() (*connector.Buffer, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.state != connector.StateConnected || l.conn == nil {
		return nil, protocol.ErrNotConnected
	}
	return l.conn.buffer, nil
}

func (l *Link) Read(ctx context.Context, n int) ([]byte, error) {
	buffer, err := l.buffer()
	if err != nil {
		log.Error("Cannot read: link not connected")
		return nil, err
	}
	data, err := buffer.Read(ctx, n)
	if err == nil {
		log.Debug("RX: %q", data)
	}
	return data, err
}

func (l *Link) ReadLine(ctx context.Context) ([]byte, error) {
	buffer, err := l.buffer()
	if err != nil {
		log.Error("Cannot read line: link not connected")
		return nil, err
	}
	data, err := buffer.ReadLine(ctx)
	if err == nil {
		log.Debug("RX: %q", data)
	}
	return data, err
}

func (l *Link) ResetInputBuffer() {
	if buffer, err := l.buffer(); err == nil {
		buffer.ResetInputBuffer()
	}
}

func (l *Link) InWaiting() int {
	if buffer, err := l.buffer(); err == nil {
		return buffer.InWaiting()
	}
	return 0
}

// SetTimeout sets the read timeout for this and future connections.
func (l *Link) SetTimeout(timeout time.Duration) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.timeout = timeout
	if l.conn != nil {
		l.conn.buffer.SetTimeout(timeout)
	}
}
