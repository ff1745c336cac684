package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/cli"
	"github.com/leafobd/obd-ble/pkg/poller"
	"github.com/leafobd/obd-ble/pkg/presence"
	"github.com/leafobd/obd-ble/pkg/protocol"
	"github.com/leafobd/obd-ble/pkg/session"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

// seenFetcher keeps the presence tracker fresh while sessions succeed. A connected dongle stops
// advertising, so scans alone would miss it.
type seenFetcher struct {
	poller.Fetcher
	tracker *presence.Tracker
}

func (f seenFetcher) Fetch(ctx context.Context) (protocol.Values, error) {
	values, err := f.Fetcher.Fetch(ctx)
	if err == nil {
		f.tracker.MarkSeen()
	}
	return values, err
}

// Report is written to stdout as one JSON object per polling cycle.
type Report struct {
	Time     time.Time       `json:"time"`
	State    string          `json:"state"`
	Interval float64         `json:"interval_seconds"`
	Failures int             `json:"failures"`
	Values   protocol.Values `json:"values"`
	Error    string          `json:"error,omitempty"`
}

func reporter(w io.Writer, scheduler *poller.Scheduler) func(protocol.Values, error) {
	encoder := json.NewEncoder(w)
	return func(values protocol.Values, err error) {
		report := Report{
			Time:     time.Now(),
			State:    scheduler.State().String(),
			Interval: scheduler.Interval().Seconds(),
			Failures: scheduler.Failures(),
			Values:   values,
		}
		if err != nil {
			report.Error = err.Error()
		}
		if err := encoder.Encode(&report); err != nil {
			log.Error("Failed to write report: %s", err)
		}
	}
}

// listenWhileOutOfRange lets an advertisement from a dongle that came back in range start the
// next cycle right away instead of after the ultra slow interval.
func listenWhileOutOfRange(tracker *presence.Tracker, refresh func()) poller.IdleFunc {
	return func(ctx context.Context, state poller.State) {
		if state != poller.StateUltraSlow {
			return
		}
		if tracker.Listen(ctx) {
			log.Info("Device advertised, refreshing")
			refresh()
		}
	}
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug    bool
		jsonLogs bool
		level    string
	)
	config := cli.NewConfig(cli.FlagAll)
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.StringVar(&level, "log-level", "", "Log `level` (debug, info, warning, error). Overrides -debug.")
	flag.BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON even on a terminal")
	config.RegisterCommandLineFlags()
	flag.Parse()

	if debug {
		log.SetLevel(log.LevelDebug)
	}
	if level != "" {
		l, err := log.ParseLevel(level)
		if err != nil {
			writeErr("Invalid log level: %s", err)
			return
		}
		log.SetLevel(l)
	}
	if jsonLogs {
		log.SetJSON(true)
	}
	defer log.Sync()
	config.ReadFromEnvironment()

	if err := config.Validate(); err != nil {
		writeErr("Missing required flag: %s", err)
		return
	}
	options, err := config.LoadOptions()
	if err != nil {
		writeErr("Error loading options: %s", err)
		return
	}
	catalog, err := config.LoadCommands()
	if err != nil {
		writeErr("Error loading command catalog: %s", err)
		return
	}
	defer config.Close()

	var (
		fetcher  poller.Fetcher = session.New(config.Opener(), catalog.SessionConfig())
		detector poller.Presence
		tracker  *presence.Tracker
	)
	if config.Transport == cli.TransportBLE {
		adapter, err := config.Adapter()
		if err != nil {
			writeErr("Error: %s", err)
			return
		}
		tracker = presence.NewTracker(config.Address, adapter, presence.DefaultWindow, presence.DefaultScanTimeout)
		fetcher = seenFetcher{Fetcher: fetcher, tracker: tracker}
		detector = tracker
	} else {
		detector = presence.Static(true)
	}

	resultCache := config.LoadCache()
	scheduler := poller.New(options, fetcher, detector, resultCache)
	if tracker != nil {
		scheduler.OnIdle(listenWhileOutOfRange(tracker, scheduler.RequestRefresh))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hangup:
				log.Info("Refresh requested by SIGHUP")
				scheduler.RequestRefresh()
			}
		}
	}()

	log.Info("Polling %s over %s", config.Address+config.SerialDevice, config.Transport)
	report := reporter(os.Stdout, scheduler)
	if options.CacheValues {
		save := report
		report = func(values protocol.Values, err error) {
			save(values, err)
			config.SaveCache(resultCache)
		}
	}
	scheduler.Run(ctx, report)
	log.Info("Stopped")
	status = 0
}
