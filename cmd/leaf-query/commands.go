package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/leafobd/obd-ble/pkg/cli"
	"github.com/leafobd/obd-ble/pkg/connector"
	"github.com/leafobd/obd-ble/pkg/protocol"
	"github.com/leafobd/obd-ble/pkg/session"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

type Argument struct {
	name string
	help string
}

// environment is shared by every command of one invocation.
type environment struct {
	port    connector.Port
	catalog *cli.Catalog
	out     io.Writer
}

type Handler func(ctx context.Context, env *environment, args map[string]string) error

type Command struct {
	help     string
	args     []Argument
	optional []Argument
	handler  Handler
}

// keepOpen lets a session borrow the shell's port without closing it.
type keepOpen struct {
	connector.Port
}

func (keepOpen) Close() {}

func printValues(w io.Writer, values protocol.Values) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(values)
}

var commands = map[string]*Command{
	"send": &Command{
		help: "Send a raw request (for example ATRV or 0100) and print the response lines",
		args: []Argument{
			Argument{name: "REQUEST", help: "ELM327 AT command or OBD request, without line terminator"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			cmd := &protocol.Command{Name: "send", Request: args["REQUEST"]}
			rsp, err := protocol.Query(ctx, env.port, cmd)
			if err != nil {
				return err
			}
			if len(rsp.Frames) == 0 {
				fmt.Fprintln(env.out, "(no data)")
			}
			for _, line := range rsp.Frames {
				fmt.Fprintln(env.out, string(line))
			}
			return nil
		},
	},
	"run": &Command{
		help: "Run a catalog command and print its decoded values",
		args: []Argument{
			Argument{name: "NAME", help: "Command name from the catalog (see 'catalog')"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			cmd, ok := env.catalog.Lookup(args["NAME"])
			if !ok {
				return fmt.Errorf("%w: no catalog command named '%s'", ErrCommandLineArgs, args["NAME"])
			}
			rsp, err := protocol.Query(ctx, env.port, cmd)
			if err != nil {
				return err
			}
			if rsp.Values == nil {
				rsp.Values = protocol.Values{}
			}
			return printValues(env.out, rsp.Values)
		},
	},
	"fetch": &Command{
		help: "Run the whole catalog, including init commands, and print the merged values",
		handler: func(ctx context.Context, env *environment, _ map[string]string) error {
			sess := session.New(func(context.Context) (connector.Port, error) {
				return keepOpen{env.port}, nil
			}, env.catalog.SessionConfig())
			values, err := sess.Fetch(ctx)
			if err != nil {
				return err
			}
			return printValues(env.out, values)
		},
	},
	"catalog": &Command{
		help: "List the commands in the catalog",
		handler: func(_ context.Context, env *environment, _ map[string]string) error {
			for _, cmd := range env.catalog.Init {
				fmt.Fprintf(env.out, "%-12s %-8s init\n", cmd.Name, cmd.Request)
			}
			for _, cmd := range env.catalog.Commands {
				flags := ""
				if cmd.Probe {
					flags = "probe"
				}
				fmt.Fprintf(env.out, "%-12s %-8s %s\n", cmd.Name, cmd.Request, flags)
			}
			return nil
		},
	},
	"timeout": &Command{
		help: "Change the response read timeout",
		args: []Argument{
			Argument{name: "DURATION", help: "Timeout such as 500ms or 3s"},
		},
		handler: func(_ context.Context, env *environment, args map[string]string) error {
			timeout, err := time.ParseDuration(args["DURATION"])
			if err != nil || timeout <= 0 {
				return fmt.Errorf("%w: invalid duration '%s'", ErrCommandLineArgs, args["DURATION"])
			}
			env.port.SetTimeout(timeout)
			return nil
		},
	},
	"pending": &Command{
		help: "Print the number of buffered bytes not yet consumed",
		handler: func(_ context.Context, env *environment, _ map[string]string) error {
			fmt.Fprintln(env.out, env.port.InWaiting())
			return nil
		},
	},
	"flush": &Command{
		help: "Discard buffered input",
		handler: func(_ context.Context, env *environment, _ map[string]string) error {
			env.port.ResetInputBuffer()
			return nil
		},
	},
}

func sortedCommandNames() []string {
	var labels []string
	for command := range commands {
		labels = append(labels, command)
	}
	sort.Strings(labels)
	return labels
}

func execute(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, env, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		maxLength = max(maxLength, len(arg.name))
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		maxLength = max(maxLength, len(arg.name))
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range append(c.args, c.optional...) {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}
