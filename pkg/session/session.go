// Package session runs a command catalog against a device over a [connector.Port].
//
// Each call to [Session.Fetch] opens the port, runs the catalog in order and closes the port. A
// command that fails is logged and skipped; only a port that cannot be opened fails the fetch.
package session

//go:generate mockgen -destination=../../mocks/port.go -package=mocks -mock_names=Port=Port github.com/leafobd/obd-ble/pkg/connector Port

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/connector"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

// Opener connects to the device. It is called once per Fetch.
type Opener func(ctx context.Context) (connector.Port, error)

type Config struct {
	// Init commands prepare the adapter (reset, echo off, ...) before the catalog runs. Their
	// responses are discarded.
	Init []*protocol.Command

	// Commands is the catalog. If the first command is a probe and returns no data, the
	// remaining commands are skipped.
	Commands []*protocol.Command

	CommandTimeout time.Duration // Read timeout for each response line.
	CommandRetries int           // Extra attempts for commands that fail transiently.
	RetryInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		CommandTimeout: 2 * time.Second,
		CommandRetries: 1,
		RetryInterval:  250 * time.Millisecond,
	}
}

type Session struct {
	open   Opener
	config Config
}

func New(open Opener, config Config) *Session {
	return &Session{open: open, config: config}
}

// Commands returns the catalog run by Fetch.
func (s *Session) Commands() []*protocol.Command {
	return s.config.Commands
}

// Fetch runs the catalog and returns the merged values of every command that succeeded. The error
// is non-nil only if the port could not be opened, in which case it matches
// protocol.ErrUpdateFailed.
//
// An empty result with a nil error means the device answered but had nothing to report (the car
// is off).
func (s *Session) Fetch(ctx context.Context) (protocol.Values, error) {
	port, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrUpdateFailed, err)
	}
	defer port.Close()
	port.SetTimeout(s.config.CommandTimeout)

	for _, cmd := range s.config.Init {
		if _, err := s.query(ctx, port, cmd); err != nil {
			log.Warning("Init command %s failed: %s", cmd, err)
		}
	}

	data := protocol.Values{}
	for _, cmd := range s.config.Commands {
		if ctx.Err() != nil {
			log.Warning("Session deadline reached before %s", cmd.Name)
			break
		}
		rsp, err := s.query(ctx, port, cmd)
		if err != nil {
			log.Warning("Error querying command %s (%s): %s", cmd.Name, protocol.Classify(err), err)
			continue
		}
		if cmd.Probe && len(rsp.Frames) == 0 {
			log.Debug("Probe command %s returned no data - car may be off", cmd.Name)
			break
		}
		maps.Copy(data, rsp.Values)
	}

	log.Debug("Session returned %d values", len(data))
	return data, nil
}

func (s *Session) query(ctx context.Context, port connector.Port, cmd *protocol.Command) (*protocol.Response, error) {
	for attempt := 0; ; attempt++ {
		rsp, err := protocol.Query(ctx, port, cmd)
		if err == nil {
			return rsp, nil
		}
		if attempt >= s.config.CommandRetries || !protocol.ShouldRetry(err) {
			return nil, err
		}
		log.Debug("Retrying %s after %s error", cmd.Name, protocol.Classify(err))

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(s.config.RetryInterval):
		}
	}
}
