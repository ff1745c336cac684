package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"

	"github.com/leafobd/obd-ble/pkg/protocol"
	"github.com/leafobd/obd-ble/pkg/session"
)

var ErrInvalidCatalog = errors.New("invalid command catalog")

// DefaultCatalogText is used when no catalog file is configured. Each line is
//
//	name request [init] [probe] [decode=raw|hex|voltage|none] [key=name]
//
// Lines starting with # are ignored. The result key defaults to the command name.
const DefaultCatalogText = `# Adapter setup, responses discarded.
reset     ATZ   init
echo_off  ATE0  init
linefeeds ATL1  init
headers   ATH1  init
protocol  ATSP6 init

# Returns no data while the car is off.
probe     0100  probe decode=hex key=supported_pids
voltage   ATRV  decode=voltage key=adapter_voltage
`

// Catalog is a parsed command catalog.
type Catalog struct {
	Init     []*protocol.Command
	Commands []*protocol.Command
}

// SessionConfig returns session.DefaultConfig() with the commands of c.
func (c *Catalog) SessionConfig() session.Config {
	config := session.DefaultConfig()
	config.Init = c.Init
	config.Commands = c.Commands
	return config
}

// Lookup returns the command with the given name, searching init commands too.
func (c *Catalog) Lookup(name string) (*protocol.Command, bool) {
	for _, cmd := range c.Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	for _, cmd := range c.Init {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return nil, false
}

// DefaultCatalog parses DefaultCatalogText.
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(strings.NewReader(DefaultCatalogText))
	if err != nil {
		panic(err)
	}
	return catalog
}

// ParseCatalog reads a catalog from r.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	catalog := &Catalog{}
	names := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields, err := shlex.Split(text)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidCatalog, lineNumber, err)
		}
		cmd, init, err := parseCommand(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidCatalog, lineNumber, err)
		}
		if names[cmd.Name] {
			return nil, fmt.Errorf("%w: line %d: duplicate command %s", ErrInvalidCatalog, lineNumber, cmd.Name)
		}
		names[cmd.Name] = true
		if init {
			catalog.Init = append(catalog.Init, cmd)
		} else {
			catalog.Commands = append(catalog.Commands, cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(catalog.Commands) == 0 {
		return nil, fmt.Errorf("%w: no commands", ErrInvalidCatalog)
	}
	for _, cmd := range catalog.Commands[1:] {
		if cmd.Probe {
			return nil, fmt.Errorf("%w: probe command %s must come first", ErrInvalidCatalog, cmd.Name)
		}
	}
	return catalog, nil
}

func parseCommand(fields []string) (cmd *protocol.Command, init bool, err error) {
	if len(fields) < 2 {
		return nil, false, errors.New("expected a name and a request")
	}
	cmd = &protocol.Command{Name: fields[0], Request: fields[1]}
	decoder := "raw"
	key := cmd.Name
	for _, option := range fields[2:] {
		name, value, hasValue := strings.Cut(option, "=")
		switch {
		case name == "init" && !hasValue:
			init = true
		case name == "probe" && !hasValue:
			cmd.Probe = true
		case name == "decode" && hasValue:
			decoder = value
		case name == "key" && hasValue && value != "":
			key = value
		default:
			return nil, false, fmt.Errorf("unknown option '%s'", option)
		}
	}
	if init && cmd.Probe {
		return nil, false, fmt.Errorf("%s: init commands cannot be probes", cmd.Name)
	}
	switch decoder {
	case "raw":
		cmd.Decode = protocol.Raw(key)
	case "hex":
		cmd.Decode = protocol.Hex(key)
	case "voltage":
		cmd.Decode = protocol.Voltage(key)
	case "none":
	default:
		return nil, false, fmt.Errorf("unknown decoder '%s'", decoder)
	}
	if init {
		cmd.Decode = nil
	}
	return cmd, init, nil
}
