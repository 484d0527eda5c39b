// Package mute reconciles global and per-surface mute intent with user
// interaction history. The one hard rule: a surface never goes from muted
// to unmuted without an explicit user action behind it.
package mute

import (
	"sync"

	"github.com/marketloop/videofeed/internal/surface"
)

// Coordinator tracks global mute plus per-surface overrides.
type Coordinator struct {
	mu          sync.Mutex
	globalMuted bool
	overrides   map[string]bool
	interacted  map[string]bool
}

// New creates a mute coordinator; muteByDefault seeds the global state.
func New(muteByDefault bool) *Coordinator {
	return &Coordinator{
		globalMuted: muteByDefault,
		overrides:   make(map[string]bool),
		interacted:  make(map[string]bool),
	}
}

// EffectiveMuted returns the mute state a surface should be in: the
// per-surface override when present, otherwise the global state.
func (c *Coordinator) EffectiveMuted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.overrides[id]; ok {
		return v
	}
	return c.globalMuted
}

// Toggle flips the surface's mute override and records the interaction.
// Returns the new muted state.
func (c *Coordinator) Toggle(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.globalMuted
	if v, ok := c.overrides[id]; ok {
		cur = v
	}
	c.overrides[id] = !cur
	c.interacted[id] = true
	return !cur
}

// Interacted reports whether the user has explicitly interacted with this
// surface's audio (mute toggle or intentional play).
func (c *Coordinator) Interacted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interacted[id]
}

// OnManualPlay records the play gesture and, when the surface was muted
// only by the global default (no explicit per-surface choice), unmutes it
// as part of the same gesture.
func (c *Coordinator) OnManualPlay(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.interacted[id] = true
	if _, hasOverride := c.overrides[id]; !hasOverride && c.globalMuted {
		c.overrides[id] = false
	}
}

// SetGlobalMuted updates the global default.
func (c *Coordinator) SetGlobalMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalMuted = muted
}

// Apply pushes the reconciled mute state to the surface's handle. An
// unmuted target is only honored once the user has interacted with the
// surface; otherwise the surface stays muted, which keeps autoplay silent.
func (c *Coordinator) Apply(s *surface.Surface) {
	target := c.EffectiveMuted(s.ID)
	if !target && !c.Interacted(s.ID) {
		target = true
	}
	if s.Video.Muted() != target {
		s.Video.SetMuted(target)
	}
}

// Forget drops per-surface state when a surface unregisters.
func (c *Coordinator) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overrides, id)
	delete(c.interacted, id)
}
