// Package videofeed coordinates playback across the video surfaces of a
// scrolling feed: it decides which surfaces play, pause, or mute based on
// viewport visibility, scroll activity, user intent, and a concurrency
// limit.
//
// A Coordinator is an explicit instance with a defined lifecycle (created
// at feed mount, closed at unmount) rather than ambient global state. All
// registry mutations, visibility reports, scroll samples, and decision
// evaluations are serialized onto one event-loop goroutine, so every
// evaluation observes a consistent snapshot and side effects that arrive
// mid-pass queue for the next pass instead of re-entering the engine.
package videofeed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketloop/videofeed/internal/config"
	"github.com/marketloop/videofeed/internal/events"
	"github.com/marketloop/videofeed/internal/logger"
	"github.com/marketloop/videofeed/internal/metrics"
	"github.com/marketloop/videofeed/internal/mute"
	"github.com/marketloop/videofeed/internal/registry"
	"github.com/marketloop/videofeed/internal/scroll"
	"github.com/marketloop/videofeed/internal/visibility"
	"go.uber.org/zap"
)

// Stats is a read-only snapshot of coordinator state.
type Stats struct {
	TotalVideos   int `json:"total_videos"`
	PlayingVideos int `json:"playing_videos"`
	ViewedVideos  int `json:"viewed_videos"`
}

// Coordinator owns the video registry, the visibility tracker, the scroll
// monitor, and the mute coordinator, and runs the playback decision engine.
type Coordinator struct {
	reg  *registry.Registry
	vis  *visibility.Tracker
	mon  *scroll.Monitor
	mute *mute.Coordinator
	bus  *events.Bus
	met  *metrics.Metrics

	signals chan signal
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	clock        func() time.Time
	tickInterval time.Duration

	// Loop-owned state below; never touched off the loop goroutine.
	settings      config.Settings
	scrollState   scroll.State
	reducedMotion bool
	monStarted    bool
	tokens        map[string]uint64
	lastAccrue    time.Time
	viewedTotal   int

	tokenSeq atomic.Uint64

	snapMu       sync.RWMutex
	statsSnap    Stats
	settingsSnap config.Settings
}

// New creates a Coordinator. Call Start before registering surfaces and
// Close when the feed unmounts.
func New(opts ...Option) *Coordinator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	o.settings = o.settings.Apply(config.Partial{}) // normalize caller-supplied values

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		reg:           registry.New(),
		mute:          mute.New(o.settings.MuteByDefault),
		bus:           events.NewBus(),
		met:           metrics.Get(),
		signals:       make(chan signal, signalBuffer),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		clock:         o.clock,
		tickInterval:  o.tickInterval,
		settings:      o.settings,
		reducedMotion: o.reducedMotion,
		tokens:        make(map[string]uint64),
		settingsSnap:  o.settings,
	}

	c.vis = visibility.NewTracker(o.thresholds, func(id string, ratio float64) {
		c.post(signal{kind: sigVisibility, id: id, ratio: ratio})
	})
	c.mon = scroll.NewMonitor(scroll.DefaultConfig(o.settings.ScrollPauseDelay), func(st scroll.State, settled bool) {
		c.post(signal{kind: sigScroll, scrollState: st, settled: settled})
	})

	return c
}

// Start launches the event loop. Idempotent.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		go c.run()
		logger.Log.Info("Playback coordinator started",
			zap.Int("max_concurrent", c.settings.MaxConcurrentVideos),
			zap.Float64("visibility_threshold", c.settings.VisibilityThreshold))
	})
}

// Close tears the coordinator down: every surface is paused and detached,
// pending play attempts resolve as abandoned, and the loop exits. Safe to
// call more than once.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.Start() // ensure the loop exists so shutdown runs exactly once
		c.cancel()
		<-c.done
		logger.Log.Info("Playback coordinator closed")
	})
}

// Events exposes the coordinator's typed event bus. Handlers run on the
// coordinator goroutine in emission order.
func (c *Coordinator) Events() *events.Bus {
	return c.bus
}

// run is the single event loop; it owns all coordinator state.
func (c *Coordinator) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	c.lastAccrue = c.clock()

	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case sig := <-c.signals:
			// All signals pending at pass start batch into one decision
			// pass; two surfaces crossing a threshold in the same frame are
			// ranked together instead of demoting each other in turn.
			c.apply(sig)
		drain:
			for {
				select {
				case next := <-c.signals:
					c.apply(next)
				default:
					break drain
				}
			}
			c.evaluate()

		case <-ticker.C:
			c.accrueViewTime()
		}
	}
}

// shutdown pauses everything and resolves outstanding replies.
func (c *Coordinator) shutdown() {
	for _, s := range c.reg.List() {
		if s.Occupied() {
			c.pauseSurface(s, "closed")
		}
		c.detach(s)
		c.reg.Unregister(s.ID)
	}
	c.mon.Stop()
	c.updateSnapshot()
}

// post enqueues a signal for the loop. It never blocks: the loop itself
// publishes events whose handlers may call back into the public API, and a
// blocking send there would wedge the loop.
func (c *Coordinator) post(sig signal) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.signals <- sig:
		return true
	case <-c.ctx.Done():
		return false
	default:
		logger.Log.Warn("Signal queue full, dropping signal", zap.Int("kind", int(sig.kind)))
		return false
	}
}

const signalBuffer = 1024
