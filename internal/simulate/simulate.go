// Package simulate provides in-memory video and container handles. They
// stand in for real media elements in tests and drive the demo CLI.
package simulate

import (
	"sync"
	"time"

	"github.com/marketloop/videofeed/internal/errors"
	"github.com/marketloop/videofeed/internal/surface"
)

// Video is a scriptable surface.VideoHandle.
type Video struct {
	mu      sync.Mutex
	id      string
	muted   bool
	playing bool

	playErr   error
	playDelay time.Duration

	playCalls  int
	pauseCalls int

	nextSub int
	subs    map[int]func(surface.MediaEvent)
}

// NewVideo creates a video that plays successfully and instantly.
func NewVideo(id string) *Video {
	return &Video{id: id, subs: make(map[int]func(surface.MediaEvent))}
}

// FailPlaysWith makes subsequent play attempts resolve with err. Pass nil
// to restore success.
func (v *Video) FailPlaysWith(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playErr = err
}

// BlockAutoplay makes subsequent play attempts resolve as policy-blocked.
func (v *Video) BlockAutoplay() {
	v.FailPlaysWith(errors.PolicyBlocked(v.id))
}

// SetPlayDelay delays play resolution, simulating buffering.
func (v *Video) SetPlayDelay(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playDelay = d
}

// Play resolves asynchronously with the scripted outcome.
func (v *Video) Play() <-chan error {
	v.mu.Lock()
	v.playCalls++
	err := v.playErr
	delay := v.playDelay
	pauseGen := v.pauseCalls
	v.mu.Unlock()

	ch := make(chan error, 1)
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if err != nil {
			ch <- err
			return
		}
		v.mu.Lock()
		if v.pauseCalls != pauseGen {
			// A pause landed before the attempt resolved; like a real media
			// element, the attempt aborts instead of starting playback.
			v.mu.Unlock()
			ch <- errors.MediaDecode(v.id, "play attempt interrupted by pause")
			return
		}
		v.playing = true
		v.mu.Unlock()
		v.Emit(surface.MediaEvent{Kind: surface.MediaPlay})
		ch <- nil
	}()
	return ch
}

// Pause stops playback and emits the pause notification, like a real media
// element echoing the command.
func (v *Video) Pause() {
	v.mu.Lock()
	v.pauseCalls++
	wasPlaying := v.playing
	v.playing = false
	v.mu.Unlock()

	if wasPlaying {
		v.Emit(surface.MediaEvent{Kind: surface.MediaPause})
	}
}

// End simulates the stream reaching its natural end.
func (v *Video) End() {
	v.mu.Lock()
	v.playing = false
	v.mu.Unlock()
	v.Emit(surface.MediaEvent{Kind: surface.MediaEnded})
}

// Fail simulates a mid-playback media error.
func (v *Video) Fail(err error) {
	v.mu.Lock()
	v.playing = false
	v.mu.Unlock()
	v.Emit(surface.MediaEvent{Kind: surface.MediaError, Err: err})
}

// SetMuted implements surface.VideoHandle
func (v *Video) SetMuted(muted bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.muted = muted
}

// Muted implements surface.VideoHandle
func (v *Video) Muted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

// Subscribe implements surface.VideoHandle
func (v *Video) Subscribe(fn func(surface.MediaEvent)) (cancel func()) {
	v.mu.Lock()
	v.nextSub++
	id := v.nextSub
	v.subs[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Emit delivers a media event to all subscribers.
func (v *Video) Emit(ev surface.MediaEvent) {
	v.mu.Lock()
	fns := make([]func(surface.MediaEvent), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Playing reports the simulated element's playing flag.
func (v *Video) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

// PlayCalls returns how many play commands the element received.
func (v *Video) PlayCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playCalls
}

// PauseCalls returns how many pause commands the element received.
func (v *Video) PauseCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pauseCalls
}

type observation struct {
	fn func(ratio float64)
}

// Container is a scriptable surface.ContainerHandle. Tests drive visibility
// directly through SetVisibility; the feed simulation computes it from
// geometry.
type Container struct {
	mu        sync.Mutex
	observers map[string]*observation
	pos       float64
	posOK     bool

	observeErr error
}

// NewContainer creates a container with a readable scroll position at 0.
func NewContainer() *Container {
	return &Container{
		observers: make(map[string]*observation),
		posOK:     true,
	}
}

// DisableIntersection makes ObserveIntersection fail, driving the tracker
// into degraded always-visible mode.
func (c *Container) DisableIntersection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observeErr = errors.CapabilityUnavailable("intersection observation")
}

// ObserveIntersection implements surface.ContainerHandle
func (c *Container) ObserveIntersection(id string, thresholds []float64, fn func(ratio float64)) (cancel func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.observeErr != nil {
		return nil, c.observeErr
	}
	c.observers[id] = &observation{fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}, nil
}

// SetVisibility reports a visibility ratio for one observed surface.
func (c *Container) SetVisibility(id string, ratio float64) {
	c.mu.Lock()
	obs := c.observers[id]
	c.mu.Unlock()

	if obs != nil {
		obs.fn(ratio)
	}
}

// Observed reports whether the surface currently has an active observation.
func (c *Container) Observed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.observers[id]
	return ok
}

// ScrollTo sets the absolute scroll position.
func (c *Container) ScrollTo(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = pos
}

// ScrollBy moves the scroll position by delta.
func (c *Container) ScrollBy(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos += delta
}

// SetPositionReadable controls whether ScrollPosition succeeds.
func (c *Container) SetPositionReadable(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posOK = ok
}

// ScrollPosition implements surface.ContainerHandle
func (c *Container) ScrollPosition() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, c.posOK
}
