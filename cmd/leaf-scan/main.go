package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/connector/ble"
	"github.com/leafobd/obd-ble/pkg/connector/ble/goble"
)

var (
	btAdapter = flag.String("bt-adapter", "", "Optional ID of Bluetooth adapter to use (Linux only)")
	duration  = flag.Duration("duration", 0, "Stop scanning after this long. Scans until interrupted by default.")
	prefix    = flag.String("name", "", "Only list devices whose advertised name starts with `prefix` (case-insensitive)")
	debug     = flag.Bool("debug", false, "Enable verbose debugging messages")
)

// sightings de-duplicates advertisements by address.
type sightings struct {
	lock sync.Mutex
	seen map[string]ble.Advertisement
}

// add returns true if adv is the first advertisement seen from its address.
func (s *sightings) add(adv ble.Advertisement) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.seen[adv.Address]
	s.seen[adv.Address] = adv
	return !ok
}

func matchesName(adv ble.Advertisement, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(adv.LocalName), strings.ToLower(prefix))
}

func main() {
	flag.Parse()
	if *debug {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelInfo)
	}
	defer log.Sync()

	log.Info("Trying to use BLE adapter: %q", *btAdapter)
	adapter, err := goble.NewAdapter(*btAdapter)
	if err != nil {
		if goble.IsAdapterError(err) {
			log.Error("%s", goble.AdapterErrorHelpMessage(err))
		} else {
			log.Error("Failed to initialize BLE device: %v", err)
		}
		os.Exit(1)
	}
	defer adapter.Close()
	log.Info("BLE adapter initialized")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if *duration > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, *duration)
		defer timeoutCancel()
	}

	found := &sightings{seen: make(map[string]ble.Advertisement)}
	log.Info("Scanning for BLE devices until interrupted")
	err = adapter.Scan(ctx, func(adv ble.Advertisement) {
		if !adv.Connectable || !matchesName(adv, *prefix) {
			return
		}
		if found.add(adv) {
			fmt.Printf("%s\t%4d dBm\t%s\t%s\n", adv.Address, adv.RSSI, adv.LocalName, time.Now().Format(time.TimeOnly))
		}
	})
	if err != nil {
		log.Error("Scan failed: %v", err)
		os.Exit(1)
	}
	log.Info("Stopping scan")
}
