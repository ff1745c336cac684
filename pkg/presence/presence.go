// Package presence decides whether the OBD dongle is currently connectable.
//
// A dongle that is out of range (the car drove away) or unpowered stops advertising. [Tracker]
// remembers when the dongle was last heard from and, when that is too long ago, runs a short
// active scan for it.
package presence

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/connector/ble"
)

const (
	DefaultWindow      = 2 * time.Minute
	DefaultScanTimeout = 5 * time.Second
)

// Scanner is implemented by ble.Adapter.
type Scanner interface {
	Scan(ctx context.Context, fn func(ble.Advertisement)) error
}

// Static reports a fixed reachability. It is used for wired transports.
type Static bool

func (s Static) Present(context.Context) bool {
	return bool(s)
}

type Tracker struct {
	address     string
	scanner     Scanner
	window      time.Duration
	scanTimeout time.Duration
	now         func() time.Time

	lock     sync.Mutex
	lastSeen time.Time
}

// NewTracker returns a Tracker for the device at address. scanner may be nil, in which case only
// Observe and MarkSeen update the tracker.
func NewTracker(address string, scanner Scanner, window, scanTimeout time.Duration) *Tracker {
	return &Tracker{
		address:     strings.ToUpper(address),
		scanner:     scanner,
		window:      window,
		scanTimeout: scanTimeout,
		now:         time.Now,
	}
}

func (t *Tracker) matches(adv ble.Advertisement) bool {
	return adv.Connectable && strings.ToUpper(adv.Address) == t.address
}

// Observe records a connectable advertisement from the tracked device. Other advertisements are
// ignored.
func (t *Tracker) Observe(adv ble.Advertisement) {
	if !t.matches(adv) {
		return
	}
	t.MarkSeen()
}

// MarkSeen records that the device was reachable just now, for example after a successful
// session. A connected dongle does not advertise, so sessions keep the tracker fresh.
func (t *Tracker) MarkSeen() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.lastSeen = t.now()
}

// LastSeen returns when the device was last observed. The zero time means never.
func (t *Tracker) LastSeen() time.Time {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.lastSeen
}

func (t *Tracker) recentlySeen() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return !t.lastSeen.IsZero() && t.now().Sub(t.lastSeen) <= t.window
}

// Present returns true if the device was seen within the window. Otherwise it scans for up to the
// scan timeout and returns whether the device showed up.
func (t *Tracker) Present(ctx context.Context) bool {
	if t.recentlySeen() {
		return true
	}
	if t.scanner == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, t.scanTimeout)
	defer cancel()

	log.Debug("Scanning for %s", t.address)
	err := t.scanner.Scan(ctx, func(adv ble.Advertisement) {
		if t.matches(adv) {
			t.MarkSeen()
			cancel()
		}
	})
	if err != nil {
		log.Warning("Scan for %s failed: %s", t.address, err)
	}
	return t.recentlySeen()
}

// Listen scans until the device advertises or ctx is done, and reports whether it was seen. A
// sighting is recorded as by Observe.
func (t *Tracker) Listen(ctx context.Context) bool {
	if t.scanner == nil {
		<-ctx.Done()
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var seen atomic.Bool
	log.Debug("Listening for %s", t.address)
	err := t.scanner.Scan(ctx, func(adv ble.Advertisement) {
		if t.matches(adv) {
			t.Observe(adv)
			seen.Store(true)
			cancel()
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Warning("Listening for %s failed: %s", t.address, err)
	}
	return seen.Load()
}
