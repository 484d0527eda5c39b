package videofeed

import (
	"context"
	"testing"
	"time"

	"github.com/marketloop/videofeed/internal/events"
	"github.com/marketloop/videofeed/internal/simulate"
	"github.com/marketloop/videofeed/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankSurfaces(t *testing.T) {
	a := &surface.Surface{ID: "a", Seq: 1, VisibilityRatio: 0.7}
	b := &surface.Surface{ID: "b", Seq: 2, VisibilityRatio: 0.9}
	c := &surface.Surface{ID: "c", Seq: 3, VisibilityRatio: 0.7}

	list := []*surface.Surface{a, b, c}
	rankSurfaces(list)

	// Highest ratio first; equal ratios resolve to the newer registration.
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "c", list[1].ID)
	assert.Equal(t, "a", list[2].ID)
}

// scrollFeed moves the container in small steps so the monitor's sampler
// sees a continuous gesture rather than one jump.
func scrollFeed(container *simulate.Container, steps int, stepPx float64, interval time.Duration) {
	for i := 0; i < steps; i++ {
		container.ScrollBy(stepPx)
		time.Sleep(interval)
	}
}

func TestScrollPausesPlaybackUntilSettled(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	scrollEvents := make(chan events.Event, 16)
	coord.Events().Subscribe(events.TypeScrollState, func(ev events.Event) {
		select {
		case scrollEvents <- ev:
		default:
		}
	})

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)

	go scrollFeed(container, 10, 60, 20*time.Millisecond)

	// Playback pauses while the feed is moving.
	require.Eventually(t, func() bool { return !vid.Playing() }, waitFor, poll)

	// After the quiet period it resumes without any new user action.
	require.Eventually(t, vid.Playing, waitFor, poll)

	// The transitions were reported: first scrolling, eventually settled.
	var sawScrolling, sawSettled bool
	for len(scrollEvents) > 0 {
		ev := <-scrollEvents
		if ev.Scroll.Scrolling {
			sawScrolling = true
		} else {
			sawSettled = true
		}
	}
	assert.True(t, sawScrolling)
	assert.True(t, sawSettled)
}

func TestManualPlaySurvivesScrolling(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vidA := simulate.NewVideo("a")
	vidB := simulate.NewVideo("b")

	coord.RegisterVideo("a", vidA, container)
	coord.RegisterVideo("b", vidB, container)
	container.SetVisibility("a", 0.3)
	container.SetVisibility("b", 0.9)
	require.Eventually(t, vidB.Playing, waitFor, poll)

	// Manual play takes the slot from the automatic winner.
	require.NoError(t, coord.PlayVideo(context.Background(), "a"))
	require.Eventually(t, func() bool { return vidA.Playing() && !vidB.Playing() }, waitFor, poll)

	done := make(chan struct{})
	go func() {
		defer close(done)
		scrollFeed(container, 15, 60, 20*time.Millisecond)
	}()

	// The manual video keeps playing through the whole gesture.
	for {
		select {
		case <-done:
			assert.True(t, vidA.Playing())
			return
		default:
			assert.True(t, vidA.Playing(), "manual playback interrupted by scrolling")
			assert.False(t, vidB.Playing())
			time.Sleep(15 * time.Millisecond)
		}
	}
}

func TestPauseOnScrollCanBeDisabled(t *testing.T) {
	s := testSettings()
	s.PauseOnScroll = false
	coord := newTestCoordinator(t, s)
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)

	done := make(chan struct{})
	go func() {
		defer close(done)
		scrollFeed(container, 10, 60, 20*time.Millisecond)
	}()

	for {
		select {
		case <-done:
			assert.True(t, vid.Playing())
			return
		default:
			assert.True(t, vid.Playing(), "playback paused although pause-on-scroll is off")
			time.Sleep(15 * time.Millisecond)
		}
	}
}
