package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func boolPtr(v bool) *bool                   { return &v }
func intPtr(v int) *int                      { return &v }
func floatPtr(v float64) *float64            { return &v }
func durPtr(v time.Duration) *time.Duration  { return &v }

func TestDefaults(t *testing.T) {
	s := Default()
	assert.True(t, s.Enabled)
	assert.Equal(t, 0.6, s.VisibilityThreshold)
	assert.True(t, s.PauseOnScroll)
	assert.True(t, s.MuteByDefault)
	assert.Equal(t, 2, s.MaxConcurrentVideos)
	assert.Equal(t, 250*time.Millisecond, s.ScrollPauseDelay)
	assert.Equal(t, 3*time.Second, s.ViewTrackingThreshold)
	assert.True(t, s.RespectReducedMotion)
}

func TestApplyMergesOnlySetFields(t *testing.T) {
	s := Default()
	out := s.Apply(Partial{
		Enabled:             boolPtr(false),
		MaxConcurrentVideos: intPtr(3),
	})

	assert.False(t, out.Enabled)
	assert.Equal(t, 3, out.MaxConcurrentVideos)
	// Untouched fields keep their values.
	assert.Equal(t, 0.6, out.VisibilityThreshold)
	assert.True(t, out.PauseOnScroll)

	// Apply never mutates the receiver.
	assert.True(t, s.Enabled)
}

func TestApplyClampsInvalidValues(t *testing.T) {
	out := Default().Apply(Partial{
		VisibilityThreshold: floatPtr(1.8),
		MaxConcurrentVideos: intPtr(0),
		ScrollPauseDelay:    durPtr(-time.Second),
	})

	assert.Equal(t, 1.0, out.VisibilityThreshold)
	assert.Equal(t, 1, out.MaxConcurrentVideos)
	assert.Equal(t, Default().ScrollPauseDelay, out.ScrollPauseDelay)

	out = Default().Apply(Partial{VisibilityThreshold: floatPtr(-0.2)})
	assert.Equal(t, 0.0, out.VisibilityThreshold)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("VIDEOFEED_ENABLED", "false")
	t.Setenv("VIDEOFEED_VISIBILITY_THRESHOLD", "0.75")
	t.Setenv("VIDEOFEED_MAX_CONCURRENT", "4")
	t.Setenv("VIDEOFEED_SCROLL_PAUSE_DELAY_MS", "400")

	s := FromEnv()
	assert.False(t, s.Enabled)
	assert.Equal(t, 0.75, s.VisibilityThreshold)
	assert.Equal(t, 4, s.MaxConcurrentVideos)
	assert.Equal(t, 400*time.Millisecond, s.ScrollPauseDelay)
	// Unset variables fall back to defaults.
	assert.True(t, s.MuteByDefault)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("VIDEOFEED_MAX_CONCURRENT", "lots")
	t.Setenv("VIDEOFEED_VISIBILITY_THRESHOLD", "most of it")

	s := FromEnv()
	assert.Equal(t, Default().MaxConcurrentVideos, s.MaxConcurrentVideos)
	assert.Equal(t, Default().VisibilityThreshold, s.VisibilityThreshold)
}
