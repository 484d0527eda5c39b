package visibility

import (
	"sync"
	"testing"

	"github.com/marketloop/videofeed/internal/registry"
	"github.com/marketloop/videofeed/internal/simulate"
	"github.com/marketloop/videofeed/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	reports []float64
}

func (r *recorder) notify(id string, ratio float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, ratio)
}

func (r *recorder) all() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.reports...)
}

func newSurface(t *testing.T, id string, c *simulate.Container) *surface.Surface {
	t.Helper()
	r := registry.New()
	s, _ := r.Register(id, simulate.NewVideo(id), c)
	return s
}

func TestReportsOnlyBucketCrossings(t *testing.T) {
	c := simulate.NewContainer()
	rec := &recorder{}
	tr := NewTracker(nil, rec.notify)

	s := newSurface(t, "a", c)
	tr.Observe(s)
	require.True(t, c.Observed("a"))

	c.SetVisibility("a", 0.1)  // bucket 0
	c.SetVisibility("a", 0.2)  // still bucket 0, suppressed
	c.SetVisibility("a", 0.65) // bucket 0.6
	c.SetVisibility("a", 0.7)  // still bucket 0.6, suppressed
	c.SetVisibility("a", 1.0)  // bucket 1.0

	assert.Equal(t, []float64{0.1, 0.65, 1.0}, rec.all())
}

func TestRatioClamped(t *testing.T) {
	c := simulate.NewContainer()
	rec := &recorder{}
	tr := NewTracker(nil, rec.notify)
	tr.Observe(newSurface(t, "a", c))

	c.SetVisibility("a", -0.5)
	c.SetVisibility("a", 1.7)

	assert.Equal(t, []float64{0, 1}, rec.all())
}

func TestUnobserveStopsDelivery(t *testing.T) {
	c := simulate.NewContainer()
	rec := &recorder{}
	tr := NewTracker(nil, rec.notify)
	tr.Observe(newSurface(t, "a", c))

	c.SetVisibility("a", 0.8)
	tr.Unobserve("a")
	assert.False(t, c.Observed("a"))

	c.SetVisibility("a", 0.1)
	assert.Equal(t, []float64{0.8}, rec.all())
}

func TestReobserveResetsBucketState(t *testing.T) {
	c := simulate.NewContainer()
	rec := &recorder{}
	tr := NewTracker(nil, rec.notify)

	s := newSurface(t, "a", c)
	tr.Observe(s)
	c.SetVisibility("a", 0.8)

	tr.Observe(s) // remount replaces the watch
	c.SetVisibility("a", 0.8)

	// The fresh watch has no bucket memory, so the same ratio reports again.
	assert.Equal(t, []float64{0.8, 0.8}, rec.all())
}

func TestDegradesToAlwaysVisible(t *testing.T) {
	c := simulate.NewContainer()
	c.DisableIntersection()
	rec := &recorder{}
	tr := NewTracker(nil, rec.notify)

	tr.Observe(newSurface(t, "a", c))
	tr.Observe(newSurface(t, "b", c))

	// Every surface reports fully visible so autoplay still works.
	assert.Equal(t, []float64{1.0, 1.0}, rec.all())
}
