// Package config holds the feed playback settings. A Settings value is an
// immutable snapshot per decision cycle; updates go through Apply, which
// returns a fresh snapshot.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the feed-level playback configuration.
type Settings struct {
	// Enabled turns automatic playback on or off for the whole feed.
	Enabled bool `json:"enabled"`

	// VisibilityThreshold is the minimum intersection ratio for a surface
	// to become an autoplay candidate.
	VisibilityThreshold float64 `json:"visibility_threshold"`

	// PauseOnScroll pauses automatic playback while the feed is mid-scroll.
	PauseOnScroll bool `json:"pause_on_scroll"`

	// MuteByDefault is the initial global mute state.
	MuteByDefault bool `json:"mute_by_default"`

	// MaxConcurrentVideos bounds how many surfaces may be Playing at once.
	MaxConcurrentVideos int `json:"max_concurrent_videos"`

	// ScrollPauseDelay is how long the feed must stay quiet after the last
	// scroll movement before the settle event fires.
	ScrollPauseDelay time.Duration `json:"scroll_pause_delay_ms"`

	// ViewTrackingThreshold is the accumulated visible-playing time after
	// which a surface counts as viewed.
	ViewTrackingThreshold time.Duration `json:"view_tracking_threshold_seconds"`

	// RespectReducedMotion disables autoplay when the platform reports a
	// reduced-motion preference.
	RespectReducedMotion bool `json:"respect_reduced_motion"`
}

// Default returns the stock feed settings.
func Default() Settings {
	return Settings{
		Enabled:               true,
		VisibilityThreshold:   0.6,
		PauseOnScroll:         true,
		MuteByDefault:         true,
		MaxConcurrentVideos:   2,
		ScrollPauseDelay:      250 * time.Millisecond,
		ViewTrackingThreshold: 3 * time.Second,
		RespectReducedMotion:  true,
	}
}

// Partial is a sparse settings update; nil fields keep their current value.
type Partial struct {
	Enabled               *bool          `json:"enabled,omitempty"`
	VisibilityThreshold   *float64       `json:"visibility_threshold,omitempty"`
	PauseOnScroll         *bool          `json:"pause_on_scroll,omitempty"`
	MuteByDefault         *bool          `json:"mute_by_default,omitempty"`
	MaxConcurrentVideos   *int           `json:"max_concurrent_videos,omitempty"`
	ScrollPauseDelay      *time.Duration `json:"scroll_pause_delay_ms,omitempty"`
	ViewTrackingThreshold *time.Duration `json:"view_tracking_threshold_seconds,omitempty"`
	RespectReducedMotion  *bool          `json:"respect_reduced_motion,omitempty"`
}

// Apply merges a partial update into the snapshot and returns the new
// snapshot, normalized to valid ranges.
func (s Settings) Apply(p Partial) Settings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.VisibilityThreshold != nil {
		s.VisibilityThreshold = *p.VisibilityThreshold
	}
	if p.PauseOnScroll != nil {
		s.PauseOnScroll = *p.PauseOnScroll
	}
	if p.MuteByDefault != nil {
		s.MuteByDefault = *p.MuteByDefault
	}
	if p.MaxConcurrentVideos != nil {
		s.MaxConcurrentVideos = *p.MaxConcurrentVideos
	}
	if p.ScrollPauseDelay != nil {
		s.ScrollPauseDelay = *p.ScrollPauseDelay
	}
	if p.ViewTrackingThreshold != nil {
		s.ViewTrackingThreshold = *p.ViewTrackingThreshold
	}
	if p.RespectReducedMotion != nil {
		s.RespectReducedMotion = *p.RespectReducedMotion
	}
	return s.normalized()
}

// normalized clamps fields into valid ranges.
func (s Settings) normalized() Settings {
	if s.VisibilityThreshold < 0 {
		s.VisibilityThreshold = 0
	}
	if s.VisibilityThreshold > 1 {
		s.VisibilityThreshold = 1
	}
	if s.MaxConcurrentVideos < 1 {
		s.MaxConcurrentVideos = 1
	}
	if s.ScrollPauseDelay <= 0 {
		s.ScrollPauseDelay = Default().ScrollPauseDelay
	}
	if s.ViewTrackingThreshold <= 0 {
		s.ViewTrackingThreshold = Default().ViewTrackingThreshold
	}
	return s
}

// FromEnv loads settings from VIDEOFEED_* environment variables on top of
// the defaults. A .env file is honored when present.
func FromEnv() Settings {
	_ = godotenv.Load()

	s := Default()
	if v, ok := envBool("VIDEOFEED_ENABLED"); ok {
		s.Enabled = v
	}
	if v, ok := envFloat("VIDEOFEED_VISIBILITY_THRESHOLD"); ok {
		s.VisibilityThreshold = v
	}
	if v, ok := envBool("VIDEOFEED_PAUSE_ON_SCROLL"); ok {
		s.PauseOnScroll = v
	}
	if v, ok := envBool("VIDEOFEED_MUTE_BY_DEFAULT"); ok {
		s.MuteByDefault = v
	}
	if v, ok := envInt("VIDEOFEED_MAX_CONCURRENT"); ok {
		s.MaxConcurrentVideos = v
	}
	if v, ok := envInt("VIDEOFEED_SCROLL_PAUSE_DELAY_MS"); ok {
		s.ScrollPauseDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("VIDEOFEED_VIEW_THRESHOLD_SECONDS"); ok {
		s.ViewTrackingThreshold = time.Duration(v) * time.Second
	}
	if v, ok := envBool("VIDEOFEED_RESPECT_REDUCED_MOTION"); ok {
		s.RespectReducedMotion = v
	}
	return s.normalized()
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
