package poller_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/leafobd/obd-ble/mocks"
	"github.com/leafobd/obd-ble/pkg/cache"
	"github.com/leafobd/obd-ble/pkg/poller"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

var errDial = errors.New("dial failed")

var _ = Describe("Scheduler", func() {
	var (
		ctrl      *gomock.Controller
		fetcher   *mocks.Fetcher
		presence  *mocks.Presence
		options   poller.Options
		scheduler *poller.Scheduler
		ctx       context.Context

		connFailure = func() error {
			return errors.Join(protocol.ErrUpdateFailed, protocol.ErrConnection, errDial)
		}
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		fetcher = mocks.NewFetcher(ctrl)
		presence = mocks.NewPresence(ctrl)
		options = poller.Options{
			FastPoll:      10 * time.Second,
			SlowPoll:      300 * time.Second,
			UltraSlowPoll: 3600 * time.Second,
			UpdateTimeout: time.Minute,
		}
		ctx = context.Background()
	})

	JustBeforeEach(func() {
		scheduler = poller.New(options, fetcher, presence, nil)
	})

	It("starts fast", func() {
		Expect(scheduler.State()).To(Equal(poller.StateFast))
		Expect(scheduler.Interval()).To(Equal(10 * time.Second))
		Expect(scheduler.Failures()).To(BeZero())
	})

	Context("when the device is in range", func() {
		BeforeEach(func() {
			presence.EXPECT().Present(gomock.Any()).Return(true).AnyTimes()
		})

		It("polls fast while the car answers", func() {
			fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{"soc": 80}, nil)

			values, err := scheduler.Update(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(Equal(protocol.Values{"soc": 80}))
			Expect(scheduler.State()).To(Equal(poller.StateFast))
			Expect(scheduler.Interval()).To(Equal(10 * time.Second))
		})

		It("polls slowly while the car is off", func() {
			fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{}, nil)

			values, err := scheduler.Update(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(BeEmpty())
			Expect(scheduler.State()).To(Equal(poller.StateSlow))
			Expect(scheduler.Interval()).To(Equal(300 * time.Second))
		})

		It("does not reset failures on an empty result", func() {
			gomock.InOrder(
				fetcher.EXPECT().Fetch(gomock.Any()).Return(nil, connFailure()),
				fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{}, nil),
			)
			_, err := scheduler.Update(ctx)
			Expect(err).To(HaveOccurred())
			_, err = scheduler.Update(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(scheduler.Failures()).To(Equal(1))
		})

		It("backs off geometrically after repeated failures", func() {
			fetcher.EXPECT().Fetch(gomock.Any()).Return(nil, connFailure()).Times(5)

			var intervals []time.Duration
			for i := 0; i < 5; i++ {
				values, err := scheduler.Update(ctx)
				Expect(err).To(MatchError(protocol.ErrUpdateFailed))
				Expect(values).To(BeNil())
				intervals = append(intervals, scheduler.Interval())
			}
			Expect(intervals).To(Equal([]time.Duration{
				10 * time.Second,
				10 * time.Second,
				300 * time.Second,
				600 * time.Second,
				poller.MaxPollIntervalOnFailure,
			}))
			Expect(scheduler.State()).To(Equal(poller.StateBackoff))
			Expect(scheduler.Failures()).To(Equal(5))
		})

		It("recovers from backoff on the first successful fetch", func() {
			fetcher.EXPECT().Fetch(gomock.Any()).Return(nil, connFailure()).Times(3)
			fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{"soc": 79}, nil)

			for i := 0; i < 3; i++ {
				_, _ = scheduler.Update(ctx)
			}
			Expect(scheduler.State()).To(Equal(poller.StateBackoff))

			_, err := scheduler.Update(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(scheduler.State()).To(Equal(poller.StateFast))
			Expect(scheduler.Failures()).To(BeZero())
		})

		It("wraps unexpected errors", func() {
			fetcher.EXPECT().Fetch(gomock.Any()).Return(nil, errDial)

			_, err := scheduler.Update(ctx)
			Expect(err).To(MatchError(protocol.ErrUpdateFailed))
			Expect(err).To(MatchError(errDial))
		})

		It("bounds the cycle with the update timeout", func() {
			fetcher.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(ctx context.Context) (protocol.Values, error) {
				_, ok := ctx.Deadline()
				Expect(ok).To(BeTrue())
				return protocol.Values{"soc": 1}, nil
			})
			_, err := scheduler.Update(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		Context("with caching enabled", func() {
			BeforeEach(func() {
				options.CacheValues = true
			})

			It("merges results and reports the cache on failure", func() {
				gomock.InOrder(
					fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{"soc": 80, "range": 120}, nil),
					fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{"soc": 79}, nil),
					fetcher.EXPECT().Fetch(gomock.Any()).Return(nil, connFailure()),
				)

				values, err := scheduler.Update(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(values).To(Equal(protocol.Values{"soc": 80, "range": 120}))

				values, err = scheduler.Update(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(values).To(Equal(protocol.Values{"soc": 79, "range": 120}))

				values, err = scheduler.Update(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(values).To(Equal(protocol.Values{"soc": 79, "range": 120}))
				Expect(scheduler.Failures()).To(Equal(1))
			})

			It("reports an empty result when the car is off", func() {
				gomock.InOrder(
					fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{"soc": 80}, nil),
					fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{}, nil),
				)
				_, _ = scheduler.Update(ctx)
				values, err := scheduler.Update(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(values).To(BeEmpty())
				Expect(scheduler.Cache().Snapshot()).To(Equal(protocol.Values{"soc": 80}))
			})
		})
	})

	Context("when the device is out of range", func() {
		It("polls ultra slowly without fetching", func() {
			presence.EXPECT().Present(gomock.Any()).Return(false)

			values, err := scheduler.Update(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(BeEmpty())
			Expect(scheduler.State()).To(Equal(poller.StateUltraSlow))
			Expect(scheduler.Interval()).To(Equal(3600 * time.Second))
		})

		It("resets failures when the device leaves and returns", func() {
			gomock.InOrder(
				presence.EXPECT().Present(gomock.Any()).Return(true).Times(2),
				presence.EXPECT().Present(gomock.Any()).Return(false),
				presence.EXPECT().Present(gomock.Any()).Return(true),
			)
			fetcher.EXPECT().Fetch(gomock.Any()).Return(nil, connFailure()).Times(3)

			_, _ = scheduler.Update(ctx)
			_, _ = scheduler.Update(ctx)
			Expect(scheduler.Failures()).To(Equal(2))

			_, err := scheduler.Update(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(scheduler.Failures()).To(BeZero())

			_, err = scheduler.Update(ctx)
			Expect(err).To(MatchError(protocol.ErrUpdateFailed))
			Expect(scheduler.Failures()).To(Equal(1))
			Expect(scheduler.State()).To(Equal(poller.StateUltraSlow))
		})

		Context("with caching enabled", func() {
			BeforeEach(func() {
				options.CacheValues = true
			})

			It("reports the cached values", func() {
				resultCache := cache.New()
				resultCache.Merge(protocol.Values{"soc": 50})
				scheduler = poller.New(options, fetcher, presence, resultCache)
				presence.EXPECT().Present(gomock.Any()).Return(false)

				values, err := scheduler.Update(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(values).To(Equal(protocol.Values{"soc": 50}))
			})
		})
	})

	It("moves between regimes as the car and dongle come and go", func() {
		gomock.InOrder(
			presence.EXPECT().Present(gomock.Any()).Return(true),
			presence.EXPECT().Present(gomock.Any()).Return(false),
			presence.EXPECT().Present(gomock.Any()).Return(true),
		)
		gomock.InOrder(
			fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{}, nil),
			fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{"soc": 64}, nil),
		)

		values, err := scheduler.Update(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(BeEmpty())
		Expect(scheduler.Interval()).To(Equal(300 * time.Second))

		values, err = scheduler.Update(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(BeEmpty())
		Expect(scheduler.State()).To(Equal(poller.StateUltraSlow))
		Expect(scheduler.Interval()).To(Equal(3600 * time.Second))

		values, err = scheduler.Update(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(Equal(protocol.Values{"soc": 64}))
		Expect(scheduler.State()).To(Equal(poller.StateFast))
		Expect(scheduler.Interval()).To(Equal(10 * time.Second))
		Expect(scheduler.Failures()).To(BeZero())
	})

	It("resets failures when the car answers again after being off", func() {
		presence.EXPECT().Present(gomock.Any()).Return(true).Times(3)
		gomock.InOrder(
			fetcher.EXPECT().Fetch(gomock.Any()).Return(nil, connFailure()),
			fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{}, nil),
			fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{"soc": 64}, nil),
		)

		_, _ = scheduler.Update(ctx)
		_, _ = scheduler.Update(ctx)
		Expect(scheduler.State()).To(Equal(poller.StateSlow))
		Expect(scheduler.Failures()).To(Equal(1))

		_, err := scheduler.Update(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(scheduler.State()).To(Equal(poller.StateFast))
		Expect(scheduler.Failures()).To(BeZero())
	})

	Describe("Run", func() {
		It("runs a cycle immediately and another on refresh", func() {
			options.FastPoll = time.Hour
			presence.EXPECT().Present(gomock.Any()).Return(true).AnyTimes()
			fetcher.EXPECT().Fetch(gomock.Any()).Return(protocol.Values{"soc": 80}, nil).MinTimes(2)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			reports := make(chan protocol.Values, 4)
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				scheduler.Run(ctx, func(values protocol.Values, err error) {
					Expect(err).NotTo(HaveOccurred())
					reports <- values
				})
			}()

			Eventually(reports).Should(Receive(Equal(protocol.Values{"soc": 80})))
			scheduler.RequestRefresh()
			scheduler.RequestRefresh()
			Eventually(reports).Should(Receive())

			cancel()
			Eventually(done).Should(BeClosed())
		})

		It("runs the idle hook between cycles and stops it before the next one", func() {
			gomock.InOrder(
				presence.EXPECT().Present(gomock.Any()).Return(false),
				presence.EXPECT().Present(gomock.Any()).Return(true).AnyTimes(),
			)
			var idling atomic.Bool
			fetcher.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) (protocol.Values, error) {
				Expect(idling.Load()).To(BeFalse())
				return protocol.Values{"soc": 80}, nil
			}).MinTimes(1)

			states := make(chan poller.State, 8)
			scheduler.OnIdle(func(ctx context.Context, state poller.State) {
				idling.Store(true)
				defer idling.Store(false)
				select {
				case states <- state:
				default:
				}
				if state == poller.StateUltraSlow {
					// Device came back.
					scheduler.RequestRefresh()
				}
				<-ctx.Done()
			})

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			reports := make(chan protocol.Values, 4)
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				scheduler.Run(ctx, func(values protocol.Values, err error) {
					Expect(err).NotTo(HaveOccurred())
					reports <- values
				})
			}()

			Eventually(reports).Should(Receive(BeEmpty()))
			Eventually(states).Should(Receive(Equal(poller.StateUltraSlow)))
			// The refresh beat the one hour ultra slow interval.
			Eventually(reports).Should(Receive(Equal(protocol.Values{"soc": 80})))
			Eventually(states).Should(Receive(Equal(poller.StateFast)))

			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
