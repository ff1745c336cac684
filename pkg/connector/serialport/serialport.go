// Package serialport implements [connector.Port] for ELM327 adapters attached over USB or RFCOMM
// serial devices. Bytes read from the device are fed to a [connector.Buffer] in the same way BLE
// notifications are, so sessions work unchanged on either transport.
package serialport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/connector"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

const (
	DefaultBaudRate = 38400

	pollInterval = 100 * time.Millisecond // Read timeout of the receive loop.
	readSize     = 256
)

// Config holds the retry and timeout policy of a Port.
type Config struct {
	BaudRate        int
	OpenAttempts    int
	OpenBaseDelay   time.Duration
	WriteTimeout    time.Duration
	TeardownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaudRate:        DefaultBaudRate,
		OpenAttempts:    3,
		OpenBaseDelay:   500 * time.Millisecond,
		WriteTimeout:    2 * time.Second,
		TeardownTimeout: 2 * time.Second,
	}
}

// Port is an open serial device. It implements [connector.Port].
type Port struct {
	name   string
	config Config

	lock   sync.Mutex
	state  connector.State
	port   serial.Port
	buffer *connector.Buffer
	done   chan struct{} // Closed when the receive loop exits.
}

var _ connector.Port = (*Port)(nil)

// Open opens the named device (for example /dev/ttyUSB0 or COM3), retrying with exponential
// backoff. The returned error matches protocol.ErrConnection once every attempt has failed.
func Open(ctx context.Context, name string, config Config) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var port serial.Port
	attempt := 0
	op := func() error {
		attempt++
		var err error
		port, err = serial.Open(name, mode)
		if err != nil {
			log.Warning("Opening %s failed (attempt %d/%d): %s", name, attempt, config.OpenAttempts, err)
			return err
		}
		if err = port.SetReadTimeout(pollInterval); err != nil {
			_ = port.Close()
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, connector.RetryPolicy(ctx, config.OpenAttempts, config.OpenBaseDelay)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", protocol.ErrConnection, name, err)
	}

	p := &Port{
		name:   name,
		config: config,
		state:  connector.StateConnected,
		port:   port,
		buffer: connector.NewBuffer(),
		done:   make(chan struct{}),
	}
	go p.receive()
	log.Info("Opened serial device %s at %d baud", name, config.BaudRate)
	return p, nil
}

func (p *Port) receive() {
	defer close(p.done)
	buf := make([]byte, readSize)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			if p.State() == connector.StateConnected {
				log.Warning("Reading %s failed: %s", p.name, err)
			}
			return
		}
		if n == 0 {
			if p.State() != connector.StateConnected {
				return
			}
			continue
		}
		p.buffer.Notify(buf[:n])
	}
}

func (p *Port) State() connector.State {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}

func (p *Port) Write(ctx context.Context, buffer []byte) error {
	if p.State() != connector.StateConnected {
		log.Error("Cannot write: %s not open", p.name)
		return fmt.Errorf("%w: %w", protocol.ErrWrite, protocol.ErrNotConnected)
	}
	log.Debug("TX: %q", buffer)
	err := connector.RunWithTimeout(ctx, p.config.WriteTimeout, func() error {
		n, err := p.port.Write(buffer)
		if err == nil && n != len(buffer) {
			err = fmt.Errorf("serialport: wrote %d of %d bytes", n, len(buffer))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrWrite, err)
	}
	return nil
}

func (p *Port) Read(ctx context.Context, n int) ([]byte, error) {
	if p.State() != connector.StateConnected {
		return nil, protocol.ErrNotConnected
	}
	return p.buffer.Read(ctx, n)
}

func (p *Port) ReadLine(ctx context.Context) ([]byte, error) {
	if p.State() != connector.StateConnected {
		return nil, protocol.ErrNotConnected
	}
	line, err := p.buffer.ReadLine(ctx)
	if err == nil {
		log.Debug("RX: %q", line)
	}
	return line, err
}

func (p *Port) ResetInputBuffer() {
	p.buffer.ResetInputBuffer()
}

func (p *Port) InWaiting() int {
	return p.buffer.InWaiting()
}

func (p *Port) SetTimeout(timeout time.Duration) {
	p.buffer.SetTimeout(timeout)
}

// Close closes the device. Failures are logged and the port is left disconnected regardless.
func (p *Port) Close() {
	p.lock.Lock()
	if p.state == connector.StateDisconnected {
		p.lock.Unlock()
		return
	}
	p.state = connector.StateDisconnected
	p.lock.Unlock()

	if err := connector.RunWithTimeout(context.Background(), p.config.TeardownTimeout, p.port.Close); err != nil {
		log.Warning("Failed to close %s: %s", p.name, err)
	}
	select {
	case <-p.done:
	case <-time.After(p.config.TeardownTimeout):
		log.Warning("Receive loop for %s did not stop", p.name)
	}
}
