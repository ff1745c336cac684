package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Values maps a result key to its last decoded value.
type Values map[string]any

// Decoder converts the data frames of a response into Values.
type Decoder func(frames [][]byte) (Values, error)

// Command is one query in a command catalog.
type Command struct {
	Name    string
	Request string // ASCII request, without line terminator.

	// Probe marks the command used to detect whether the car is powered. A probe that returns no
	// frames ends the session early.
	Probe bool

	// Decode may be nil, in which case the command only checks that the device answered.
	Decode Decoder
}

// Encode returns the bytes written to the device for c.
func (c *Command) Encode() []byte {
	return []byte(c.Request + "\r\n")
}

func (c *Command) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Request)
}

// Response holds the lines received for a Command.
type Response struct {
	Command *Command
	Lines   [][]byte // Every non-empty line received, status lines included.
	Frames  [][]byte // Data lines only.
	Values  Values
}

// Raw returns a Decoder that stores the frames, joined by a space, under key.
func Raw(key string) Decoder {
	return func(frames [][]byte) (Values, error) {
		return Values{key: string(bytes.Join(frames, []byte(" ")))}, nil
	}
}

// Voltage returns a Decoder for replies such as "12.6V" (ELM327 ATRV).
func Voltage(key string) Decoder {
	return func(frames [][]byte) (Values, error) {
		text := strings.TrimSuffix(strings.ToUpper(string(frames[0])), "V")
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad voltage '%s'", ErrProtocol, frames[0])
		}
		return Values{key: v}, nil
	}
}

// Hex returns a Decoder that parses whitespace separated hex bytes ("41 0C 1A F8") from all
// frames and stores the concatenated bytes under key.
func Hex(key string) Decoder {
	return func(frames [][]byte) (Values, error) {
		var out []byte
		for _, frame := range frames {
			for _, field := range strings.Fields(string(frame)) {
				b, err := strconv.ParseUint(field, 16, 8)
				if err != nil {
					return nil, fmt.Errorf("%w: bad hex byte '%s'", ErrProtocol, field)
				}
				out = append(out, byte(b))
			}
		}
		return Values{key: out}, nil
	}
}
