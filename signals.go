package videofeed

import (
	"github.com/marketloop/videofeed/internal/config"
	"github.com/marketloop/videofeed/internal/errors"
	"github.com/marketloop/videofeed/internal/events"
	"github.com/marketloop/videofeed/internal/logger"
	"github.com/marketloop/videofeed/internal/scroll"
	"github.com/marketloop/videofeed/internal/surface"
	"go.uber.org/zap"
)

type signalKind int

const (
	sigRegister signalKind = iota
	sigDispose
	sigUnregister
	sigVisibility
	sigScroll
	sigManualPlay
	sigManualPause
	sigPauseAll
	sigToggleMute
	sigSettings
	sigPlayResult
	sigMedia
	sigReducedMotion
)

// signal is one unit of work for the event loop. Exactly the fields for its
// kind are set.
type signal struct {
	kind signalKind
	id   string

	video     surface.VideoHandle
	container surface.ContainerHandle
	token     uint64

	ratio float64

	scrollState scroll.State
	settled     bool

	partial config.Partial

	gen   uint64
	err   error
	media surface.MediaEvent

	reply chan error
	flag  bool
}

// apply mutates loop state for one signal. Decisions happen afterwards in
// evaluate, once per batch.
func (c *Coordinator) apply(sig signal) {
	switch sig.kind {
	case sigRegister:
		c.handleRegister(sig)
	case sigDispose:
		if c.tokens[sig.id] == sig.token {
			c.handleUnregister(sig.id)
		}
	case sigUnregister:
		c.handleUnregister(sig.id)
	case sigVisibility:
		c.handleVisibility(sig.id, sig.ratio)
	case sigScroll:
		c.handleScroll(sig.scrollState, sig.settled)
	case sigManualPlay:
		c.handleManualPlay(sig.id, sig.reply)
	case sigManualPause:
		c.handleManualPause(sig.id)
	case sigPauseAll:
		c.handlePauseAll()
	case sigToggleMute:
		c.handleToggleMute(sig.id, sig.reply)
	case sigSettings:
		c.handleSettings(sig.partial)
	case sigPlayResult:
		c.handlePlayResult(sig.id, sig.gen, sig.err)
	case sigMedia:
		c.handleMedia(sig.id, sig.token, sig.media)
	case sigReducedMotion:
		c.reducedMotion = sig.flag
	}
}

func (c *Coordinator) handleRegister(sig signal) {
	s, replaced := c.reg.Register(sig.id, sig.video, sig.container)
	if replaced != nil {
		c.abandonPending(replaced)
		c.detach(replaced)
	}
	c.tokens[sig.id] = sig.token
	c.attach(s, sig.token)

	if !c.monStarted && s.Container != nil {
		// The first surface's container is the feed container; every surface
		// scrolls inside the same one.
		c.mon.Start(s.Container)
		c.monStarted = true
	}

	logger.Log.Debug("Surface registered", logger.WithSurfaceID(s.ID), zap.Uint64("seq", s.Seq))
}

func (c *Coordinator) handleUnregister(id string) {
	s := c.reg.Unregister(id)
	if s == nil {
		return
	}
	if s.Occupied() {
		c.pauseSurface(s, "unregistered")
	}
	s.PlayGen++ // orphan any in-flight play result
	c.abandonPending(s)
	c.detach(s)
	c.mute.Forget(id)
	delete(c.tokens, id)

	logger.Log.Debug("Surface unregistered", logger.WithSurfaceID(id), zap.String("state", s.State.String()))
}

// attach wires the visibility tracker and media event subscription. Media
// signals carry the registration token so notifications from a replaced
// surface instance are discarded.
func (c *Coordinator) attach(s *surface.Surface, token uint64) {
	id := s.ID
	s.CancelMedia = s.Video.Subscribe(func(ev surface.MediaEvent) {
		c.post(signal{kind: sigMedia, id: id, token: token, media: ev})
	})
	c.vis.Observe(s)
}

func (c *Coordinator) detach(s *surface.Surface) {
	c.vis.Unobserve(s.ID)
	if s.CancelMedia != nil {
		s.CancelMedia()
		s.CancelMedia = nil
	}
}

func (c *Coordinator) handleVisibility(id string, ratio float64) {
	s := c.reg.Get(id)
	if s == nil {
		return // report raced an unregister
	}

	prev := s.VisibilityRatio
	hadReport := s.SeenVisibility
	s.VisibilityRatio = ratio
	s.SeenVisibility = true
	th := c.settings.VisibilityThreshold

	if ratio < th && s.ManuallyPaused {
		// Phase one of the recross: the surface left the viewport, so the
		// next upward crossing is a fresh user scroll, not the same dwell.
		s.AwaitingRecross = false
	}
	if ratio >= th && (prev < th || !hadReport) {
		s.AutoplayBlocked = false
		if s.ManuallyPaused && !s.AwaitingRecross {
			s.ManuallyPaused = false
			logger.Log.Debug("Manual pause cleared by visibility recross", logger.WithSurfaceID(id))
		}
	}
}

func (c *Coordinator) handleScroll(st scroll.State, settled bool) {
	c.scrollState = st
	if settled {
		c.met.ScrollSettlesTotal.Inc()
	}
	c.bus.Publish(events.Event{Type: events.TypeScrollState, Scroll: st})
}

func (c *Coordinator) handleManualPlay(id string, reply chan error) {
	s := c.reg.Get(id)
	if s == nil {
		reply <- errors.NotRegistered(id)
		return
	}

	s.ManuallyPlaying = true
	s.ManuallyPaused = false
	s.AwaitingRecross = false
	s.AutoplayBlocked = false
	if s.State == surface.StateErrored || s.State == surface.StateEnded {
		// An explicit gesture is a retry (or replay); the latch protects
		// against automatic thrash, not against the user.
		s.State = surface.StateIdle
	}

	c.mute.OnManualPlay(id)
	c.mute.Apply(s)

	switch s.State {
	case surface.StatePlaying:
		reply <- nil
	case surface.StateLoading:
		// An attempt is already in flight; hand its outcome to this caller.
		if s.PendingReply == nil {
			s.PendingReply = reply
		} else {
			reply <- nil
		}
	default:
		c.playSurface(s, reply, "manual")
	}
}

func (c *Coordinator) handleManualPause(id string) {
	s := c.reg.Get(id)
	if s == nil {
		return
	}
	s.ManuallyPaused = true
	s.ManuallyPlaying = false
	// Stay out of candidacy until the surface leaves the viewport and
	// crosses back in. Re-ranking alone must not undo an explicit pause.
	s.AwaitingRecross = true
	c.pauseSurface(s, "manual")
}

func (c *Coordinator) handlePauseAll() {
	for _, s := range c.reg.List() {
		s.ManuallyPlaying = false
		if s.Occupied() {
			s.ManuallyPaused = true
			s.AwaitingRecross = true
			c.pauseSurface(s, "manual")
		}
	}
}

func (c *Coordinator) handleToggleMute(id string, reply chan error) {
	s := c.reg.Get(id)
	if s == nil {
		reply <- errors.NotRegistered(id)
		return
	}
	c.mute.Toggle(id)
	c.mute.Apply(s)
	reply <- nil
}

func (c *Coordinator) handleSettings(p config.Partial) {
	old := c.settings
	c.settings = old.Apply(p)

	if p.MuteByDefault != nil && *p.MuteByDefault != old.MuteByDefault {
		c.mute.SetGlobalMuted(c.settings.MuteByDefault)
		// Already-playing surfaces re-reconcile; the never-auto-unmute rule
		// inside Apply still holds.
		for _, s := range c.reg.List() {
			c.mute.Apply(s)
		}
	}
	if p.ScrollPauseDelay != nil {
		c.mon.SetSettleDelay(c.settings.ScrollPauseDelay)
	}

	logger.Log.Info("Settings updated",
		zap.Bool("enabled", c.settings.Enabled),
		zap.Float64("visibility_threshold", c.settings.VisibilityThreshold),
		zap.Int("max_concurrent", c.settings.MaxConcurrentVideos))
	c.bus.Publish(events.Event{Type: events.TypeSettings})
}

func (c *Coordinator) handlePlayResult(id string, gen uint64, err error) {
	s := c.reg.Get(id)
	if s == nil {
		return // resolved at unregister
	}
	if s.PlayGen != gen {
		return // superseded by a pause or a newer attempt
	}

	reply := s.PendingReply
	s.PendingReply = nil

	switch {
	case err == nil:
		s.State = surface.StatePlaying
		c.bus.Publish(events.Event{Type: events.TypeVideoPlay, SurfaceID: id})
		if reply != nil {
			reply <- nil
		}

	case errors.IsPolicyBlocked(err):
		// Expected on platforms that gate autoplay; latch and wait for the
		// next fresh threshold crossing instead of hammering retries.
		s.State = surface.StatePaused
		s.AutoplayBlocked = true
		s.ManuallyPlaying = false
		c.met.PolicyBlocked.Inc()
		logger.Log.Debug("Play blocked by autoplay policy", logger.WithSurfaceID(id))
		if reply != nil {
			reply <- nil
		}

	default:
		s.State = surface.StateErrored
		s.ManuallyPlaying = false
		c.met.MediaErrorsTotal.WithLabelValues(string(errors.CodeOf(err))).Inc()
		logger.Log.Warn("Playback failed", logger.WithSurfaceID(id), zap.Error(err))
		c.bus.Publish(events.Event{Type: events.TypeVideoError, SurfaceID: id, Err: err})
		if reply != nil {
			reply <- err
		}
	}
}

// handleMedia reconciles coordinator state with notifications that
// originate at the media element (native controls, stream errors, natural
// end). Stale tokens belong to a replaced surface instance and are dropped.
func (c *Coordinator) handleMedia(id string, token uint64, ev surface.MediaEvent) {
	if c.tokens[id] != token {
		return
	}
	s := c.reg.Get(id)
	if s == nil {
		return
	}

	switch ev.Kind {
	case surface.MediaPlay:
		if s.State != surface.StatePlaying && s.State != surface.StateLoading {
			// External play (native controls) counts as user intent.
			s.State = surface.StatePlaying
			s.ManuallyPlaying = true
			s.ManuallyPaused = false
			c.bus.Publish(events.Event{Type: events.TypeVideoPlay, SurfaceID: id})
		}

	case surface.MediaPause:
		// Could be the echo of our own Pause; reconcile state only and let
		// explicit pauseVideo calls carry user intent.
		if s.State == surface.StatePlaying {
			s.State = surface.StatePaused
		}

	case surface.MediaEnded:
		if s.Occupied() {
			s.PlayGen++
			c.abandonPending(s)
		}
		s.State = surface.StateEnded
		s.ManuallyPlaying = false
		c.bus.Publish(events.Event{Type: events.TypeVideoPause, SurfaceID: id})

	case surface.MediaError:
		err := ev.Err
		if err == nil {
			err = errors.MediaDecode(id, "media element reported an error")
		}
		s.PlayGen++
		if s.PendingReply != nil {
			s.PendingReply <- err
			s.PendingReply = nil
		}
		s.State = surface.StateErrored
		s.ManuallyPlaying = false
		c.met.MediaErrorsTotal.WithLabelValues(string(errors.CodeOf(err))).Inc()
		c.bus.Publish(events.Event{Type: events.TypeVideoError, SurfaceID: id, Err: err})

	case surface.MediaTimeUpdate:
		// View accrual runs off the coordinator tick; nothing to do here.
	}
}

// abandonPending resolves an outstanding manual-play reply as abandoned
// (nil): the attempt was superseded, which is not an error the caller can
// act on.
func (c *Coordinator) abandonPending(s *surface.Surface) {
	if s.PendingReply != nil {
		s.PendingReply <- nil
		s.PendingReply = nil
	}
}
