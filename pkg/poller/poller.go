// Package poller decides how often to query the car and what to report when a query fails.
//
// The [Scheduler] polls quickly while the car answers, slowly while the dongle answers but the
// car is off (on some cars every poll clicks a relay, so this interval should be long), and very
// slowly while the dongle is out of range. Repeated connection failures push the interval up
// geometrically. With caching enabled, the last known values are reported instead of errors.
package poller

//go:generate mockgen -destination=../../mocks/poller.go -package=mocks -mock_names=Fetcher=Fetcher,Presence=Presence github.com/leafobd/obd-ble/pkg/poller Fetcher,Presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/cache"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

const (
	// MaxConsecutiveFailures is the number of failed fetches after which the Scheduler backs off.
	MaxConsecutiveFailures = 3
	// FailureBackoffMultiplier scales the interval for every failure past the threshold.
	FailureBackoffMultiplier = 2
	// MaxPollIntervalOnFailure caps the backoff interval.
	MaxPollIntervalOnFailure = 15 * time.Minute
)

// State is the polling regime.
type State int

const (
	StateFast State = iota
	StateSlow
	StateUltraSlow
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateFast:
		return "fast"
	case StateSlow:
		return "slow"
	case StateUltraSlow:
		return "ultra-slow"
	case StateBackoff:
		return "backoff"
	}
	return "invalid"
}

// Fetcher runs one query session against the device. It is implemented by session.Session.
type Fetcher interface {
	Fetch(ctx context.Context) (protocol.Values, error)
}

// Presence reports whether the device is currently connectable. It is implemented by
// presence.Tracker.
type Presence interface {
	Present(ctx context.Context) bool
}

// Options are resolved once at startup and never change afterwards.
type Options struct {
	FastPoll      time.Duration // Car on.
	SlowPoll      time.Duration // Dongle in range, car off.
	UltraSlowPoll time.Duration // Dongle out of range.
	CacheValues   bool

	// UpdateTimeout bounds a whole cycle, presence check included.
	UpdateTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		FastPoll:      10 * time.Second,
		SlowPoll:      5 * time.Minute,
		UltraSlowPoll: time.Hour,
		CacheValues:   false,
		UpdateTimeout: 2 * time.Minute,
	}
}

type Scheduler struct {
	options  Options
	fetcher  Fetcher
	presence Presence
	cache    *cache.ResultCache

	lock         sync.Mutex
	state        State
	failures     int
	interval     time.Duration
	wasReachable bool

	refresh chan struct{}
	idle    IdleFunc
}

// IdleFunc runs between cycles. ctx is canceled when the next cycle is due, and the cycle does
// not start until the function has returned.
type IdleFunc func(ctx context.Context, state State)

// New returns a Scheduler in StateFast. If resultCache is nil an empty cache is used; it is only
// consulted when options.CacheValues is set.
func New(options Options, fetcher Fetcher, presence Presence, resultCache *cache.ResultCache) *Scheduler {
	if resultCache == nil {
		resultCache = cache.New()
	}
	return &Scheduler{
		options:      options,
		fetcher:      fetcher,
		presence:     presence,
		cache:        resultCache,
		state:        StateFast,
		interval:     options.FastPoll,
		wasReachable: true,
		refresh:      make(chan struct{}, 1),
	}
}

// State returns the current polling regime.
func (s *Scheduler) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Interval returns the delay before the next cycle.
func (s *Scheduler) Interval() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.interval
}

// Failures returns the number of consecutive failed fetches.
func (s *Scheduler) Failures() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.failures
}

// Cache returns the cache merged into by successful fetches.
func (s *Scheduler) Cache() *cache.ResultCache {
	return s.cache
}

func (s *Scheduler) setRegime(state State, interval time.Duration) {
	s.state = state
	s.interval = interval
}

// backoffInterval returns SlowPoll * 2^(failures - MaxConsecutiveFailures), capped.
func (s *Scheduler) backoffInterval(failures int) time.Duration {
	interval := s.options.SlowPoll
	for i := MaxConsecutiveFailures; i < failures && interval < MaxPollIntervalOnFailure; i++ {
		interval *= FailureBackoffMultiplier
	}
	return min(interval, MaxPollIntervalOnFailure)
}

// Update runs one polling cycle and returns the values to report. Cycles must not overlap; Run
// guarantees this.
//
// With caching disabled a failed fetch returns an error matching protocol.ErrUpdateFailed. With
// caching enabled the cached snapshot is returned instead and the error is nil.
func (s *Scheduler) Update(ctx context.Context) (protocol.Values, error) {
	if s.options.UpdateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.UpdateTimeout)
		defer cancel()
	}

	log.Debug("Check if the device is still available to connect")
	reachable := s.presence.Present(ctx)

	s.lock.Lock()
	if !reachable {
		if s.wasReachable {
			log.Info("Device went out of range")
			s.wasReachable = false
			s.failures = 0
		}
		s.setRegime(StateUltraSlow, s.options.UltraSlowPoll)
		log.Debug("Car out of range, using ultra slow polling: interval = %s", s.interval)
		s.lock.Unlock()
		if s.options.CacheValues {
			return s.cache.Snapshot(), nil
		}
		return protocol.Values{}, nil
	}
	if !s.wasReachable {
		log.Info("Device back in range")
		s.wasReachable = true
		s.failures = 0
	}
	s.lock.Unlock()

	values, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return s.fetchFailed(err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if len(values) == 0 {
		s.setRegime(StateSlow, s.options.SlowPoll)
		log.Debug("Car is probably off, switch to slow polling: interval = %s", s.interval)
		return protocol.Values{}, nil
	}

	s.failures = 0
	s.setRegime(StateFast, s.options.FastPoll)
	log.Debug("Car is on, using fast polling: interval = %s", s.interval)
	if s.options.CacheValues {
		s.cache.Merge(values)
		return s.cache.Snapshot(), nil
	}
	return values, nil
}

func (s *Scheduler) fetchFailed(err error) (protocol.Values, error) {
	if !errors.Is(err, protocol.ErrUpdateFailed) {
		err = fmt.Errorf("%w: unexpected error: %w", protocol.ErrUpdateFailed, err)
	}

	s.lock.Lock()
	s.failures++
	log.Warning("Update failed (attempt %d): %s", s.failures, err)
	if s.failures >= MaxConsecutiveFailures {
		s.setRegime(StateBackoff, s.backoffInterval(s.failures))
		log.Warning("Multiple consecutive failures, increasing poll interval to %s", s.interval)
	}
	s.lock.Unlock()

	if s.options.CacheValues {
		return s.cache.Snapshot(), nil
	}
	return nil, err
}

// OnIdle registers fn to run while Run waits for the next cycle, for example to listen for the
// device coming back in range. It must be called before Run.
func (s *Scheduler) OnIdle(fn IdleFunc) {
	s.idle = fn
}

// RequestRefresh asks Run to start the next cycle now, for example because the device was just
// rediscovered. It never blocks, and requests made during a cycle collapse into one.
func (s *Scheduler) RequestRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Run performs a cycle immediately and then one per interval until ctx is done. Each result is
// passed to report. Cycles never overlap.
func (s *Scheduler) Run(ctx context.Context, report func(protocol.Values, error)) {
	for {
		values, err := s.Update(ctx)
		if ctx.Err() != nil {
			return
		}
		report(values, err)

		if !s.wait(ctx) {
			return
		}
	}
}

// wait blocks until the next cycle is due and returns false if ctx is done first.
func (s *Scheduler) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.Interval())
	defer timer.Stop()

	idleCtx, stopIdle := context.WithCancel(ctx)
	idleDone := make(chan struct{})
	if s.idle != nil {
		state := s.State()
		go func() {
			defer close(idleDone)
			s.idle(idleCtx, state)
		}()
	} else {
		close(idleDone)
	}
	defer func() {
		stopIdle()
		<-idleDone
	}()

	select {
	case <-ctx.Done():
		return false
	case <-s.refresh:
		log.Debug("Refresh requested")
	case <-timer.C:
	}
	return true
}
