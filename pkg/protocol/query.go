package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/leafobd/obd-ble/internal/log"
)

// MaxResponseLines caps the number of lines accepted for a single command.
const MaxResponseLines = 64

// LineReadWriter is the subset of a link used to exchange one command.
type LineReadWriter interface {
	Write(ctx context.Context, p []byte) error
	ReadLine(ctx context.Context) ([]byte, error)
	ResetInputBuffer()
}

var (
	statusSearching = []byte("SEARCHING...")
	statusOK        = []byte("OK")
	statusNoData    = []byte("NO DATA")
)

var faultLines = [][]byte{
	[]byte("?"),
	[]byte("ERROR"),
	[]byte("UNABLE TO CONNECT"),
	[]byte("CAN ERROR"),
	[]byte("BUS ERROR"),
	[]byte("BUS INIT: ...ERROR"),
	[]byte("STOPPED"),
}

// Query sends cmd on port and collects its response. A response ends with the first blank line
// that follows a line other than the echo; blank lines right after the echo are skipped, since
// ATZ echoes and pauses before printing the banner. Leftover input from earlier exchanges is
// discarded before the request is written.
//
// A response consisting only of NO DATA is not an error: the returned Response has no Frames.
func Query(ctx context.Context, port LineReadWriter, cmd *Command) (*Response, error) {
	port.ResetInputBuffer()
	if err := port.Write(ctx, cmd.Encode()); err != nil {
		return nil, err
	}

	rsp := &Response{Command: cmd}
	answered := false
	for {
		raw, err := port.ReadLine(ctx)
		if err != nil {
			// Some firmwares omit the trailing blank line and only print the prompt.
			if errors.Is(err, ErrReadTimeout) && len(rsp.Lines) > 0 {
				log.Debug("%s: response ended without blank line", cmd.Name)
				break
			}
			return nil, err
		}
		line := bytes.TrimSpace(bytes.TrimLeft(raw, "> \r"))
		if len(line) == 0 {
			if !answered {
				continue
			}
			break
		}
		if len(rsp.Lines) >= MaxResponseLines {
			return nil, fmt.Errorf("%w: %s: more than %d lines", ErrProtocol, cmd.Name, MaxResponseLines)
		}
		rsp.Lines = append(rsp.Lines, line)

		echo := bytes.EqualFold(line, []byte(cmd.Request))
		answered = answered || !echo
		switch {
		case echo:
		case bytes.Equal(line, statusSearching), bytes.Equal(line, statusOK), bytes.Equal(line, statusNoData):
		case isFault(line):
			return nil, fmt.Errorf("%w: %s: device replied '%s'", ErrProtocol, cmd.Name, line)
		default:
			rsp.Frames = append(rsp.Frames, line)
		}
	}

	log.Debug("RX %s: %q", cmd.Name, rsp.Lines)
	if cmd.Decode == nil || len(rsp.Frames) == 0 {
		return rsp, nil
	}
	values, err := cmd.Decode(rsp.Frames)
	if err != nil {
		if !errors.Is(err, ErrProtocol) {
			err = fmt.Errorf("%w: %s: %w", ErrProtocol, cmd.Name, err)
		}
		return nil, err
	}
	rsp.Values = values
	return rsp, nil
}

func isFault(line []byte) bool {
	for _, fault := range faultLines {
		if bytes.Equal(line, fault) {
			return true
		}
	}
	return false
}
