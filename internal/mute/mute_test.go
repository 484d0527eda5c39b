package mute

import (
	"testing"

	"github.com/marketloop/videofeed/internal/registry"
	"github.com/marketloop/videofeed/internal/simulate"
	"github.com/marketloop/videofeed/internal/surface"
	"github.com/stretchr/testify/assert"
)

func testSurface(id string, video *simulate.Video) *surface.Surface {
	r := registry.New()
	s, _ := r.Register(id, video, simulate.NewContainer())
	return s
}

func TestGlobalDefaultApplies(t *testing.T) {
	c := New(true)
	assert.True(t, c.EffectiveMuted("a"))

	c = New(false)
	assert.False(t, c.EffectiveMuted("a"))
}

func TestToggleOverridesGlobal(t *testing.T) {
	c := New(true)

	assert.False(t, c.Toggle("a")) // muted -> unmuted
	assert.False(t, c.EffectiveMuted("a"))
	assert.True(t, c.Interacted("a"))

	assert.True(t, c.Toggle("a")) // back to muted
	assert.True(t, c.EffectiveMuted("a"))
}

func TestOverrideSurvivesGlobalChange(t *testing.T) {
	c := New(true)
	c.Toggle("a") // explicit unmute

	c.SetGlobalMuted(false)
	c.SetGlobalMuted(true)

	assert.False(t, c.EffectiveMuted("a"), "per-surface choice must outlive global flips")
	assert.True(t, c.EffectiveMuted("b"), "surfaces without a choice follow the global state")
}

func TestNeverUnmutesWithoutInteraction(t *testing.T) {
	c := New(false) // global says unmuted
	video := simulate.NewVideo("a")
	video.SetMuted(true)
	s := testSurface("a", video)

	c.Apply(s)
	assert.True(t, video.Muted(), "no interaction recorded, surface must stay muted")

	c.Toggle("a") // interaction; override lands on muted=true
	c.Toggle("a") // and back to unmuted
	c.Apply(s)
	assert.False(t, video.Muted())
}

func TestApplyMutesWithoutInteraction(t *testing.T) {
	c := New(true)
	video := simulate.NewVideo("a")
	video.SetMuted(false)
	s := testSurface("a", video)

	c.Apply(s)
	assert.True(t, video.Muted(), "muting never requires interaction")
}

func TestManualPlayUnmutesOnlyGlobalDefault(t *testing.T) {
	// Muted purely by the global default: the play gesture unmutes.
	c := New(true)
	video := simulate.NewVideo("a")
	video.SetMuted(true)
	s := testSurface("a", video)

	c.OnManualPlay("a")
	c.Apply(s)
	assert.False(t, video.Muted())

	// Explicitly muted by the user: the play gesture must not unmute.
	c2 := New(false)
	video2 := simulate.NewVideo("b")
	s2 := testSurface("b", video2)
	c2.Toggle("b") // user chose muted
	assert.True(t, c2.EffectiveMuted("b"))

	c2.OnManualPlay("b")
	c2.Apply(s2)
	assert.True(t, video2.Muted(), "explicit mute survives a manual play")
}

func TestForgetDropsSurfaceState(t *testing.T) {
	c := New(true)
	c.Toggle("a")
	assert.False(t, c.EffectiveMuted("a"))

	c.Forget("a")
	assert.True(t, c.EffectiveMuted("a"))
	assert.False(t, c.Interacted("a"))
}
