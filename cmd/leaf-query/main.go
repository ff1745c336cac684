package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/term"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/cli"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Without a COMMAND, commands are read from standard input, one per line.
 * Dongles are reached over BLE with -address, or over a serial cable with -serial-device.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] [COMMAND [ARG...]]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	labels := sortedCommandNames()
	for _, command := range labels {
		maxLength = max(maxLength, len(command))
	}
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(env *environment, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, env, args); err != nil {
		switch protocol.Classify(err) {
		case protocol.KindReadTimeout:
			writeErr("No response from dongle: %s", err)
		case protocol.KindProtocol:
			writeErr("Dongle rejected request: %s", err)
		case protocol.KindNotConnected:
			writeErr("Connection to dongle lost")
		default:
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(env *environment, timeout time.Duration) int {
	prompt := func() {}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = func() { fmt.Printf("> ") }
	}
	scanner := bufio.NewScanner(os.Stdin)
	for prompt(); scanner.Scan(); prompt() {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		if args[0] == "help" {
			help(args)
			continue
		}
		runCommand(env, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func help(args []string) int {
	if len(args) == 1 {
		Usage()
		return 0
	}
	info, ok := commands[args[1]]
	if !ok {
		writeErr("Unrecognized command: %s", args[1])
		return 1
	}
	info.Usage(args[1])
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug          bool
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config := cli.NewConfig(cli.FlagBLE | cli.FlagSerial)
	flag.Usage = Usage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.DurationVar(&commandTimeout, "command-timeout", 10*time.Second, "Set timeout for each command.")
	flag.DurationVar(&connTimeout, "connect-timeout", 45*time.Second, "Set timeout for establishing the connection.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	if !debug {
		if debugEnv, ok := os.LookupEnv("LEAF_OBD_VERBOSE"); ok {
			debug = debugEnv != "false" && debugEnv != "0"
		}
	}
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	defer log.Sync()
	config.ReadFromEnvironment()

	args := flag.Args()
	if len(args) > 0 && args[0] == "help" {
		status = help(args)
		return
	}

	if err := config.Validate(); err != nil {
		writeErr("Missing required flag: %s", err)
		return
	}
	catalog, err := config.LoadCommands()
	if err != nil {
		writeErr("Error loading command catalog: %s", err)
		return
	}
	defer config.Close()

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	port, err := config.Opener()(ctx)
	if err != nil {
		writeErr("Error: %s", err)
		if errors.Is(err, protocol.ErrConnection) && strings.Contains(err.Error(), "operation not permitted") {
			writeErr("\nTry again after granting this application CAP_NET_ADMIN:\n\n\tsudo setcap 'cap_net_admin=eip' \"$(which %s)\"\n", os.Args[0])
		}
		return
	}
	defer port.Close()

	env := &environment{port: port, catalog: catalog, out: os.Stdout}
	if len(args) > 0 {
		status = runCommand(env, args, commandTimeout)
	} else {
		status = runInteractiveShell(env, commandTimeout)
	}
}
