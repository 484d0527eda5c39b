// Package visibility computes viewport intersection ratios for registered
// surfaces. Reports are debounced to threshold buckets so the engine sees
// crossings, not every pixel of movement.
package visibility

import (
	"sync"

	"github.com/marketloop/videofeed/internal/logger"
	"github.com/marketloop/videofeed/internal/surface"
	"go.uber.org/zap"
)

// DefaultThresholds are the bucket boundaries observation is registered at.
var DefaultThresholds = []float64{0, 0.25, 0.5, 0.6, 0.75, 1.0}

// Notify receives a surface's visibility ratio when it crosses a bucket
// boundary. The ratio is accurate at emission time; no delivery happens
// after Unobserve.
type Notify func(id string, ratio float64)

type watch struct {
	gen        uint64
	cancel     func()
	lastBucket int
	hasBucket  bool
}

// Tracker observes intersection for every registered surface.
type Tracker struct {
	mu         sync.Mutex
	thresholds []float64
	watches    map[string]*watch
	notify     Notify

	degradedWarn sync.Once
}

// NewTracker creates a tracker reporting bucket crossings to notify.
func NewTracker(thresholds []float64, notify Notify) *Tracker {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	return &Tracker{
		thresholds: thresholds,
		watches:    make(map[string]*watch),
		notify:     notify,
	}
}

// Observe starts intersection observation for a surface. When the platform
// has no intersection primitive the tracker degrades to "always visible":
// automatic playback still works, just without scroll-based pausing
// accuracy.
func (t *Tracker) Observe(s *surface.Surface) {
	t.mu.Lock()
	if prev, ok := t.watches[s.ID]; ok {
		prev.gen++ // invalidate any in-flight callback
		if prev.cancel != nil {
			prev.cancel()
		}
	}
	w := &watch{}
	t.watches[s.ID] = w
	gen := w.gen
	id := s.ID
	t.mu.Unlock()

	cancel, err := s.Container.ObserveIntersection(id, t.thresholds, func(ratio float64) {
		t.deliver(id, gen, ratio)
	})
	if err != nil {
		t.degradedWarn.Do(func() {
			logger.Log.Warn("Intersection observation unavailable, treating all surfaces as fully visible",
				zap.Error(err))
		})
		t.notify(id, 1.0)
		return
	}

	t.mu.Lock()
	if cur, ok := t.watches[id]; ok && cur.gen == gen {
		cur.cancel = cancel
	} else if cancel != nil {
		// Lost a race with Unobserve; release immediately.
		cancel()
	}
	t.mu.Unlock()
}

// Unobserve stops observation for the surface id. Pending callbacks from
// the old observation are dropped.
func (t *Tracker) Unobserve(id string) {
	t.mu.Lock()
	w, ok := t.watches[id]
	if ok {
		w.gen++
		delete(t.watches, id)
	}
	t.mu.Unlock()

	if ok && w.cancel != nil {
		w.cancel()
	}
}

// deliver quantizes the ratio and notifies only on bucket crossings.
func (t *Tracker) deliver(id string, gen uint64, ratio float64) {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	t.mu.Lock()
	w, ok := t.watches[id]
	if !ok || w.gen != gen {
		t.mu.Unlock()
		return // stale delivery after unobserve or re-observe
	}
	b := t.bucket(ratio)
	if w.hasBucket && w.lastBucket == b {
		t.mu.Unlock()
		return
	}
	w.lastBucket = b
	w.hasBucket = true
	t.mu.Unlock()

	t.notify(id, ratio)
}

// bucket returns the index of the highest threshold at or below ratio.
func (t *Tracker) bucket(ratio float64) int {
	idx := 0
	for i, th := range t.thresholds {
		if ratio >= th {
			idx = i
		}
	}
	return idx
}
