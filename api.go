package videofeed

import (
	"context"
	"time"

	"github.com/marketloop/videofeed/internal/config"
	"github.com/marketloop/videofeed/internal/errors"
	"github.com/marketloop/videofeed/internal/events"
	"github.com/marketloop/videofeed/internal/surface"
)

// VideoHandle is the contract a playable video element satisfies.
type VideoHandle = surface.VideoHandle

// ContainerHandle is the contract the scrollable feed container satisfies.
type ContainerHandle = surface.ContainerHandle

// MediaEvent is a notification from a video handle.
type MediaEvent = surface.MediaEvent

// Settings and Partial re-export the coordinator's behavior knobs.
type Settings = config.Settings

// Partial is a sparse settings update; nil fields keep their current value.
type Partial = config.Partial

// RegisterVideo mounts a video surface under id and returns its disposer.
// Registering an existing id replaces the previous registration (last wins)
// and invalidates the previous disposer. The disposer is idempotent.
func (c *Coordinator) RegisterVideo(id string, video VideoHandle, container ContainerHandle) (dispose func()) {
	token := c.tokenSeq.Add(1)
	c.post(signal{kind: sigRegister, id: id, video: video, container: container, token: token})

	var done bool
	return func() {
		if done {
			return
		}
		done = true
		c.post(signal{kind: sigDispose, id: id, token: token})
	}
}

// UnregisterVideo unmounts the surface under id. Unknown ids are a no-op.
func (c *Coordinator) UnregisterVideo(id string) {
	c.post(signal{kind: sigUnregister, id: id})
}

// PlayVideo requests playback as an explicit user action. It wins over
// automatic ranking immediately, clears a manual pause, unmutes when the
// surface was muted only by the global default, and keeps playing while any
// part of the surface stays visible.
//
// The call resolves when the attempt concludes: nil on success, nil when
// the attempt was abandoned or policy-blocked (both are non-actionable for
// the caller), or a classified error for genuine media failures and unknown
// ids.
func (c *Coordinator) PlayVideo(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	if !c.post(signal{kind: sigManualPlay, id: id, reply: reply}) {
		return c.postError()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errors.CoordinatorClosed()
	}
}

// PauseVideo pauses the surface as an explicit user action. The surface is
// excluded from automatic playback until it leaves the viewport and crosses
// back above the visibility threshold. Unknown ids are a no-op.
func (c *Coordinator) PauseVideo(id string) {
	c.post(signal{kind: sigManualPause, id: id})
}

// PauseAllVideos pauses every occupied surface in one batch and marks each
// manually paused, so nothing resumes until its own visibility recross.
func (c *Coordinator) PauseAllVideos() {
	c.post(signal{kind: sigPauseAll})
}

// ToggleMute flips the surface's mute state and records the interaction,
// which authorizes future unmutes for that surface.
func (c *Coordinator) ToggleMute(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	if !c.post(signal{kind: sigToggleMute, id: id, reply: reply}) {
		return c.postError()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errors.CoordinatorClosed()
	}
}

// UpdateSettings applies a sparse settings update. Invalid values are
// clamped. The engine re-evaluates against the new settings immediately;
// surfaces that no longer qualify pause on that pass.
func (c *Coordinator) UpdateSettings(p Partial) {
	c.post(signal{kind: sigSettings, partial: p})
}

// SetReducedMotion updates the platform's reduced-motion preference at
// runtime. When respected by settings it suspends all automatic playback;
// manual play still works.
func (c *Coordinator) SetReducedMotion(on bool) {
	c.post(signal{kind: sigReducedMotion, flag: on})
}

// Stats returns the current counters snapshot. Safe from any goroutine.
func (c *Coordinator) Stats() Stats {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.statsSnap
}

// Settings returns the effective settings snapshot.
func (c *Coordinator) Settings() Settings {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.settingsSnap
}

// CurrentVideo returns the id of the designated current playing surface, or
// "" when nothing plays.
func (c *Coordinator) CurrentVideo() string {
	return c.reg.Current()
}

// OnVideoPlay subscribes to successful playback starts.
func (c *Coordinator) OnVideoPlay(fn func(id string)) (cancel func()) {
	return c.bus.Subscribe(events.TypeVideoPlay, func(ev events.Event) { fn(ev.SurfaceID) })
}

// OnVideoPause subscribes to pauses, whatever their reason.
func (c *Coordinator) OnVideoPause(fn func(id string)) (cancel func()) {
	return c.bus.Subscribe(events.TypeVideoPause, func(ev events.Event) { fn(ev.SurfaceID) })
}

// OnVideoView subscribes to view-threshold crossings. Fires at most once
// per surface registration.
func (c *Coordinator) OnVideoView(fn func(id string, viewTime time.Duration)) (cancel func()) {
	return c.bus.Subscribe(events.TypeVideoView, func(ev events.Event) { fn(ev.SurfaceID, ev.ViewTime) })
}

// OnVideoError subscribes to genuine media errors. Policy blocks are not
// errors and never reach these handlers.
func (c *Coordinator) OnVideoError(fn func(id string, err error)) (cancel func()) {
	return c.bus.Subscribe(events.TypeVideoError, func(ev events.Event) { fn(ev.SurfaceID, ev.Err) })
}

// postError classifies a failed post: shutdown beats backpressure.
func (c *Coordinator) postError() error {
	if c.ctx.Err() != nil {
		return errors.CoordinatorClosed()
	}
	return errors.Internal("coordinator signal queue is full")
}

// IsPolicyBlocked reports whether err is an autoplay policy rejection.
func IsPolicyBlocked(err error) bool { return errors.IsPolicyBlocked(err) }

// IsRetryable reports whether the failure class is worth retrying.
func IsRetryable(err error) bool { return errors.IsRetryable(err) }
