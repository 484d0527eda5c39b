package videofeed

import (
	"sort"
	"time"

	"github.com/marketloop/videofeed/internal/events"
	"github.com/marketloop/videofeed/internal/logger"
	"github.com/marketloop/videofeed/internal/surface"
	"go.uber.org/zap"
)

// evaluate is the decision pass: build the desired playing set, demote
// everything outside it, promote everything inside it. Runs once per signal
// batch on the loop goroutine.
func (c *Coordinator) evaluate() {
	start := time.Now()
	defer func() {
		c.met.EvaluationDuration.Observe(time.Since(start).Seconds())
		c.met.EvaluationsTotal.Inc()
	}()

	list := c.reg.List()
	st := c.settings
	autoplayAllowed := st.Enabled && !(st.RespectReducedMotion && c.reducedMotion)
	midScroll := st.PauseOnScroll && c.scrollState.Scrolling

	desired := make([]*surface.Surface, 0, st.MaxConcurrentVideos)
	inDesired := make(map[string]bool, st.MaxConcurrentVideos)

	// Manual players come first: they hold their slot through scrolling and
	// re-ranking, and release it only when fully out of view.
	manual := make([]*surface.Surface, 0, 2)
	for _, s := range list {
		if !s.ManuallyPlaying {
			continue
		}
		if s.SeenVisibility && s.VisibilityRatio <= 0 {
			s.ManuallyPlaying = false
			if s.Occupied() {
				c.pauseSurface(s, "hidden")
			}
			continue
		}
		manual = append(manual, s)
	}
	rankSurfaces(manual)
	for _, s := range manual {
		if len(desired) == st.MaxConcurrentVideos {
			break
		}
		desired = append(desired, s)
		inDesired[s.ID] = true
	}

	if autoplayAllowed && !midScroll {
		candidates := make([]*surface.Surface, 0, len(list))
		for _, s := range list {
			if inDesired[s.ID] || s.ManuallyPaused || s.AutoplayBlocked {
				continue
			}
			if s.State == surface.StateErrored || s.State == surface.StateEnded {
				continue
			}
			if !s.SeenVisibility || s.VisibilityRatio < st.VisibilityThreshold {
				continue
			}
			candidates = append(candidates, s)
		}
		rankSurfaces(candidates)
		for _, s := range candidates {
			if len(desired) == st.MaxConcurrentVideos {
				break
			}
			desired = append(desired, s)
			inDesired[s.ID] = true
		}
	}

	// Demote first so the concurrency bound holds at every instant of the
	// pass, never just at its end.
	for _, s := range list {
		if s.Occupied() && !inDesired[s.ID] {
			reason := "demoted"
			if midScroll {
				reason = "scroll"
			}
			c.pauseSurface(s, reason)
		}
	}
	for _, s := range desired {
		if !s.Occupied() {
			c.playSurface(s, nil, "auto")
		}
	}

	if len(desired) > 0 {
		c.reg.SetCurrent(desired[0].ID)
	} else {
		c.reg.SetCurrent("")
	}

	c.updateSnapshot()
}

// rankSurfaces orders by visibility ratio descending, then registration
// recency descending. Recency favors the content the user just scrolled to.
func rankSurfaces(list []*surface.Surface) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].VisibilityRatio != list[j].VisibilityRatio {
			return list[i].VisibilityRatio > list[j].VisibilityRatio
		}
		return list[i].Seq > list[j].Seq
	})
}

// playSurface issues a play command. The attempt is asynchronous: a fresh
// generation is stamped, the handle's pending result is awaited off-loop,
// and the outcome comes back as a sigPlayResult for this generation.
func (c *Coordinator) playSurface(s *surface.Surface, reply chan error, trigger string) {
	if s.State == surface.StatePlaying {
		if reply != nil {
			reply <- nil
		}
		return
	}

	s.PlayGen++
	gen := s.PlayGen
	s.State = surface.StateLoading
	s.PendingReply = reply

	c.mute.Apply(s)
	result := s.Video.Play()
	c.met.PlaysTotal.WithLabelValues(trigger).Inc()
	logger.Log.Debug("Play issued", logger.WithSurfaceID(s.ID), zap.String("trigger", trigger))

	id := s.ID
	go func() {
		var err error
		if result != nil {
			err = <-result
		}
		c.post(signal{kind: sigPlayResult, id: id, gen: gen, err: err})
	}()
}

// pauseSurface issues a pause command and cancels any in-flight play
// attempt for the surface.
func (c *Coordinator) pauseSurface(s *surface.Surface, reason string) {
	if !s.Occupied() {
		return
	}

	s.PlayGen++ // orphan the pending result, if any
	c.abandonPending(s)
	s.Video.Pause()
	s.State = surface.StatePaused

	c.met.PausesTotal.WithLabelValues(reason).Inc()
	logger.Log.Debug("Pause issued", logger.WithSurfaceID(s.ID), zap.String("reason", reason))
	c.bus.Publish(events.Event{Type: events.TypeVideoPause, SurfaceID: s.ID})
}

// accrueViewTime advances view accounting for surfaces that are playing and
// visible enough. The viewed event fires exactly once per surface instance.
func (c *Coordinator) accrueViewTime() {
	now := c.clock()
	dt := now.Sub(c.lastAccrue)
	c.lastAccrue = now
	if dt <= 0 {
		return
	}

	for _, s := range c.reg.List() {
		if s.State != surface.StatePlaying || s.VisibilityRatio < c.settings.VisibilityThreshold {
			continue
		}
		s.ViewAccumulated += dt
		if !s.ViewedFired && s.ViewAccumulated >= c.settings.ViewTrackingThreshold {
			s.ViewedFired = true
			c.viewedTotal++
			c.met.ViewsTotal.Inc()
			c.bus.Publish(events.Event{
				Type:      events.TypeVideoView,
				SurfaceID: s.ID,
				ViewTime:  s.ViewAccumulated,
			})
		}
	}

	c.updateSnapshot()
}

// updateSnapshot refreshes the lock-protected stats copy read by Stats and
// the HTTP layer.
func (c *Coordinator) updateSnapshot() {
	list := c.reg.List()
	playing := 0
	for _, s := range list {
		if s.State == surface.StatePlaying {
			playing++
		}
	}

	c.snapMu.Lock()
	c.statsSnap = Stats{
		TotalVideos:   len(list),
		PlayingVideos: playing,
		ViewedVideos:  c.viewedTotal,
	}
	c.settingsSnap = c.settings
	c.snapMu.Unlock()

	c.met.SurfacesRegistered.Set(float64(len(list)))
	c.met.SurfacesPlaying.Set(float64(playing))
}
