// Package scroll detects scrolling activity on the feed container. It
// samples the scroll position at frame rate, derives velocity from
// position deltas, and emits a settle event only after a full quiet period
// (debounce, not throttle: the idle transition is delayed, never immediate).
package scroll

import (
	"math"
	"sync"
	"time"

	"github.com/marketloop/videofeed/internal/surface"
)

// State is the feed-wide scroll state. It lives as long as the feed.
type State struct {
	Scrolling bool    `json:"is_scrolling"`
	Velocity  float64 `json:"velocity"`
}

// Notify receives scrolling transitions. settled is true only for the
// idle transition after the full quiet period.
type Notify func(state State, settled bool)

// Config tunes the monitor.
type Config struct {
	// SettleDelay is the quiet period required before the settle event.
	SettleDelay time.Duration

	// NoiseThreshold is the minimal position delta treated as movement.
	NoiseThreshold float64

	// SampleInterval is the background sampling cadence.
	SampleInterval time.Duration
}

// DefaultConfig returns frame-rate aligned sampling with a small noise floor.
func DefaultConfig(settleDelay time.Duration) Config {
	return Config{
		SettleDelay:    settleDelay,
		NoiseThreshold: 1.0,
		SampleInterval: 16 * time.Millisecond,
	}
}

// Monitor tracks scroll activity for one feed container.
type Monitor struct {
	mu     sync.Mutex
	cfg    Config
	notify Notify

	havePos bool
	lastPos float64

	// lastMove is the time of the last above-noise delta; the settle timer
	// verifies against it so overlapping gestures (fling followed by touch)
	// always get the full configured delay.
	lastMove time.Time

	state       State
	settleTimer *time.Timer

	stop    chan struct{}
	stopped sync.Once
	running bool
}

// NewMonitor creates a monitor that reports transitions to notify.
func NewMonitor(cfg Config, notify Notify) *Monitor {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 250 * time.Millisecond
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 16 * time.Millisecond
	}
	return &Monitor{
		cfg:    cfg,
		notify: notify,
		stop:   make(chan struct{}),
	}
}

// Start begins background sampling of the container's scroll position.
func (m *Monitor) Start(container surface.ContainerHandle) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.cfg.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				if pos, ok := container.ScrollPosition(); ok {
					m.Ingest(pos, time.Now())
				}
			}
		}
	}()
}

// Stop halts sampling and the pending settle timer.
func (m *Monitor) Stop() {
	m.stopped.Do(func() { close(m.stop) })
	m.mu.Lock()
	if m.settleTimer != nil {
		m.settleTimer.Stop()
	}
	m.mu.Unlock()
}

// Ingest feeds one scroll position sample. Exposed so tests and alternate
// backends can drive the monitor without the background sampler.
func (m *Monitor) Ingest(pos float64, at time.Time) {
	m.mu.Lock()

	if !m.havePos {
		m.havePos = true
		m.lastPos = pos
		m.lastMove = at
		m.mu.Unlock()
		return
	}

	delta := pos - m.lastPos
	dt := at.Sub(m.lastMove)
	m.lastPos = pos

	if math.Abs(delta) < m.cfg.NoiseThreshold {
		m.mu.Unlock()
		return
	}

	velocity := 0.0
	if dt > 0 {
		velocity = delta / dt.Seconds()
	}
	m.lastMove = at

	wasScrolling := m.state.Scrolling
	m.state = State{Scrolling: true, Velocity: velocity}

	// Every movement restarts the idle timer to the full delay; a new
	// gesture can never shorten the configured quiet period.
	if m.settleTimer == nil {
		m.settleTimer = time.AfterFunc(m.cfg.SettleDelay, m.settleCheck)
	} else {
		m.settleTimer.Reset(m.cfg.SettleDelay)
	}

	state := m.state
	notify := m.notify
	m.mu.Unlock()

	if !wasScrolling && notify != nil {
		notify(state, false)
	}
}

// settleCheck fires from the settle timer and confirms the quiet period
// actually elapsed (the timer may have fired just before a reset).
func (m *Monitor) settleCheck() {
	m.mu.Lock()
	if !m.state.Scrolling {
		m.mu.Unlock()
		return
	}
	if time.Since(m.lastMove) < m.cfg.SettleDelay {
		// Movement arrived after this firing was scheduled; the reset
		// timer handles the real settle.
		m.mu.Unlock()
		return
	}
	m.state = State{}
	notify := m.notify
	m.mu.Unlock()

	if notify != nil {
		notify(State{}, true)
	}
}

// State returns the current scroll state snapshot.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetSettleDelay updates the quiet period; it takes effect from the next
// movement.
func (m *Monitor) SetSettleDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.cfg.SettleDelay = d
	m.mu.Unlock()
}
