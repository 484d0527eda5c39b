package videofeed

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/marketloop/videofeed/internal/config"
	"github.com/marketloop/videofeed/internal/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	poll    = 10 * time.Millisecond
)

func testSettings() config.Settings {
	s := config.Default()
	s.MaxConcurrentVideos = 1
	s.ScrollPauseDelay = 120 * time.Millisecond
	s.ViewTrackingThreshold = 150 * time.Millisecond
	return s
}

func newTestCoordinator(t *testing.T, s config.Settings) *Coordinator {
	t.Helper()
	c := New(WithSettings(s), WithTickInterval(20*time.Millisecond))
	c.Start()
	t.Cleanup(c.Close)
	return c
}

func TestAutoplaysWhenVisibleAboveThreshold(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)

	require.Eventually(t, vid.Playing, waitFor, poll)
	assert.True(t, vid.Muted(), "autoplay must start muted")
	assert.Equal(t, "a", coord.CurrentVideo())

	st := coord.Stats()
	assert.Equal(t, 1, st.TotalVideos)
	assert.Equal(t, 1, st.PlayingVideos)
}

func TestNoAutoplayBelowThreshold(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.5) // threshold is 0.6

	time.Sleep(200 * time.Millisecond)
	assert.False(t, vid.Playing())
	assert.Equal(t, 0, vid.PlayCalls())
}

func TestPausesWhenVisibilityDrops(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)

	container.SetVisibility("a", 0.3)
	require.Eventually(t, func() bool { return !vid.Playing() }, waitFor, poll)
	assert.Equal(t, "", coord.CurrentVideo())
}

func TestMostVisibleVideoWinsTheSlot(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vidA := simulate.NewVideo("a")
	vidB := simulate.NewVideo("b")

	coord.RegisterVideo("a", vidA, container)
	coord.RegisterVideo("b", vidB, container)

	container.SetVisibility("a", 0.7)
	container.SetVisibility("b", 0.9)

	require.Eventually(t, vidB.Playing, waitFor, poll)
	assert.False(t, vidA.Playing())

	// A becomes more visible; the slot changes hands.
	container.SetVisibility("a", 1.0)
	require.Eventually(t, vidA.Playing, waitFor, poll)
	require.Eventually(t, func() bool { return !vidB.Playing() }, waitFor, poll)
}

func TestRecencyBreaksVisibilityTies(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vidA := simulate.NewVideo("a")
	vidB := simulate.NewVideo("b")

	coord.RegisterVideo("a", vidA, container)
	coord.RegisterVideo("b", vidB, container) // more recent

	container.SetVisibility("a", 0.9)
	container.SetVisibility("b", 0.9)

	require.Eventually(t, vidB.Playing, waitFor, poll)
	assert.False(t, vidA.Playing())
}

func TestConcurrencyBoundHolds(t *testing.T) {
	s := testSettings()
	s.MaxConcurrentVideos = 1
	coord := newTestCoordinator(t, s)
	container := simulate.NewContainer()

	ids := []string{"a", "b", "c", "d"}
	vids := make([]*simulate.Video, len(ids))
	for i, id := range ids {
		vids[i] = simulate.NewVideo(id)
		coord.RegisterVideo(id, vids[i], container)
	}

	stop := make(chan struct{})
	violations := make(chan int, 1)
	go func() {
		defer close(violations)
		for {
			select {
			case <-stop:
				return
			default:
			}
			playing := 0
			for _, v := range vids {
				if v.Playing() {
					playing++
				}
			}
			if playing > 1 {
				select {
				case violations <- playing:
				default:
				}
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 40; i++ {
		id := ids[rng.Intn(len(ids))]
		container.SetVisibility(id, float64(rng.Intn(101))/100)
		time.Sleep(5 * time.Millisecond)
	}

	close(stop)
	if n, ok := <-violations; ok {
		t.Fatalf("concurrency bound violated: %d videos playing at once", n)
	}
}

func TestManualPausePersistsUntilRecross(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)

	coord.PauseVideo("a")
	require.Eventually(t, func() bool { return !vid.Playing() }, waitFor, poll)
	calls := vid.PlayCalls()

	// Still fully visible; new evaluations must not resume it.
	container.SetVisibility("a", 1.0)
	time.Sleep(200 * time.Millisecond)
	assert.False(t, vid.Playing())
	assert.Equal(t, calls, vid.PlayCalls())

	// Leave the viewport and come back: a fresh crossing re-qualifies it.
	container.SetVisibility("a", 0.1)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)
}

func TestManualPlayWinsImmediately(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.3) // below autoplay threshold

	err := coord.PlayVideo(context.Background(), "a")
	require.NoError(t, err)
	require.Eventually(t, vid.Playing, waitFor, poll)
	assert.False(t, vid.Muted(), "intentional play on a default-muted video unmutes it")
}

func TestManualPlayForcePausedWhenFullyHidden(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.3)
	require.NoError(t, coord.PlayVideo(context.Background(), "a"))
	require.Eventually(t, vid.Playing, waitFor, poll)

	container.SetVisibility("a", 0)
	require.Eventually(t, func() bool { return !vid.Playing() }, waitFor, poll)
}

func TestPlayVideoUnknownID(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())

	err := coord.PlayVideo(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_REGISTERED")
}

func TestPauseAllVideos(t *testing.T) {
	s := testSettings()
	s.MaxConcurrentVideos = 2
	coord := newTestCoordinator(t, s)
	container := simulate.NewContainer()
	vidA := simulate.NewVideo("a")
	vidB := simulate.NewVideo("b")

	coord.RegisterVideo("a", vidA, container)
	coord.RegisterVideo("b", vidB, container)
	container.SetVisibility("a", 0.9)
	container.SetVisibility("b", 0.8)
	require.Eventually(t, func() bool { return vidA.Playing() && vidB.Playing() }, waitFor, poll)

	coord.PauseAllVideos()
	require.Eventually(t, func() bool { return !vidA.Playing() && !vidB.Playing() }, waitFor, poll)

	// Both are treated as manually paused: still visible, still stopped.
	container.SetVisibility("a", 1.0)
	container.SetVisibility("b", 1.0)
	time.Sleep(200 * time.Millisecond)
	assert.False(t, vidA.Playing())
	assert.False(t, vidB.Playing())
}

func TestPolicyBlockLatchesUntilRecross(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")
	vid.BlockAutoplay()

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)

	require.Eventually(t, func() bool { return vid.PlayCalls() == 1 }, waitFor, poll)
	assert.False(t, vid.Playing())

	// More visibility within the same dwell must not retry.
	container.SetVisibility("a", 1.0)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, vid.PlayCalls())

	// A fresh crossing clears the latch and the retry succeeds.
	vid.FailPlaysWith(nil)
	container.SetVisibility("a", 0.1)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)
}

func TestViewFiresExactlyOnce(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	views := make(chan time.Duration, 8)
	coord.OnVideoView(func(id string, viewTime time.Duration) {
		views <- viewTime
	})

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)

	select {
	case vt := <-views:
		assert.GreaterOrEqual(t, vt, 150*time.Millisecond)
	case <-time.After(waitFor):
		t.Fatal("view event never fired")
	}

	// Keep playing well past the threshold; no second event.
	time.Sleep(400 * time.Millisecond)
	select {
	case <-views:
		t.Fatal("view event fired more than once")
	default:
	}

	assert.Equal(t, 1, coord.Stats().ViewedVideos)
}

func TestEndedVideoReleasesSlotAndReplaysManually(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vidA := simulate.NewVideo("a")
	vidB := simulate.NewVideo("b")

	coord.RegisterVideo("a", vidA, container)
	coord.RegisterVideo("b", vidB, container)
	container.SetVisibility("a", 1.0)
	container.SetVisibility("b", 0.7)
	require.Eventually(t, vidA.Playing, waitFor, poll)

	vidA.End()
	// The freed slot goes to the next candidate; the ended video stays out.
	require.Eventually(t, vidB.Playing, waitFor, poll)
	assert.False(t, vidA.Playing())

	// An explicit gesture replays an ended video.
	require.NoError(t, coord.PlayVideo(context.Background(), "a"))
	require.Eventually(t, vidA.Playing, waitFor, poll)
}

func TestMediaErrorSurfacesEventAndManualRetry(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	errs := make(chan error, 4)
	coord.OnVideoError(func(id string, err error) { errs <- err })

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)

	vid.Fail(nil) // element reports an unclassified error
	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MEDIA_DECODE_ERROR")
	case <-time.After(waitFor):
		t.Fatal("error event never fired")
	}

	// No automatic retry for genuine errors, even though it stays visible.
	container.SetVisibility("a", 1.0)
	time.Sleep(200 * time.Millisecond)
	assert.False(t, vid.Playing())

	// The user's retry goes through.
	require.NoError(t, coord.PlayVideo(context.Background(), "a"))
	require.Eventually(t, vid.Playing, waitFor, poll)
}

func TestLastRegistrationWins(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid1 := simulate.NewVideo("a")
	vid2 := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid1, container)
	coord.RegisterVideo("a", vid2, container)
	container.SetVisibility("a", 0.9)

	require.Eventually(t, vid2.Playing, waitFor, poll)
	assert.Equal(t, 0, vid1.PlayCalls())
	assert.Equal(t, 1, coord.Stats().TotalVideos)
}

func TestStaleDisposerIsIgnored(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()

	dispose1 := coord.RegisterVideo("a", simulate.NewVideo("a"), container)
	vid2 := simulate.NewVideo("a")
	coord.RegisterVideo("a", vid2, container)

	dispose1() // belongs to the replaced registration
	container.SetVisibility("a", 0.9)

	require.Eventually(t, vid2.Playing, waitFor, poll)
	assert.Equal(t, 1, coord.Stats().TotalVideos)
}

func TestUnregisterStopsPlayback(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vidA := simulate.NewVideo("a")
	vidB := simulate.NewVideo("b")

	coord.RegisterVideo("a", vidA, container)
	coord.RegisterVideo("b", vidB, container)
	container.SetVisibility("a", 1.0)
	container.SetVisibility("b", 0.8)
	require.Eventually(t, vidA.Playing, waitFor, poll)

	coord.UnregisterVideo("a")
	require.Eventually(t, func() bool { return coord.Stats().TotalVideos == 1 }, waitFor, poll)
	assert.False(t, vidA.Playing(), "unregistering an occupied surface must pause its element")

	// The freed slot is filled on the next pass.
	require.Eventually(t, vidB.Playing, waitFor, poll)
}

func TestUpdateSettingsShrinksConcurrency(t *testing.T) {
	s := testSettings()
	s.MaxConcurrentVideos = 2
	coord := newTestCoordinator(t, s)
	container := simulate.NewContainer()
	vidA := simulate.NewVideo("a")
	vidB := simulate.NewVideo("b")

	coord.RegisterVideo("a", vidA, container)
	coord.RegisterVideo("b", vidB, container)
	container.SetVisibility("a", 0.9)
	container.SetVisibility("b", 0.7)
	require.Eventually(t, func() bool { return vidA.Playing() && vidB.Playing() }, waitFor, poll)

	one := 1
	coord.UpdateSettings(Partial{MaxConcurrentVideos: &one})
	require.Eventually(t, func() bool { return vidA.Playing() && !vidB.Playing() }, waitFor, poll)
	assert.Equal(t, 1, coord.Settings().MaxConcurrentVideos)
}

func TestDisablingStopsAutomaticPlayback(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)

	off := false
	coord.UpdateSettings(Partial{Enabled: &off})
	require.Eventually(t, func() bool { return !vid.Playing() }, waitFor, poll)

	// Manual play still works while automatic playback is disabled.
	require.NoError(t, coord.PlayVideo(context.Background(), "a"))
	require.Eventually(t, vid.Playing, waitFor, poll)
}

func TestReducedMotionSuppressesAutoplay(t *testing.T) {
	s := testSettings()
	coord := New(WithSettings(s), WithTickInterval(20*time.Millisecond), WithReducedMotion(true))
	coord.Start()
	t.Cleanup(coord.Close)

	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")
	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 1.0)

	time.Sleep(200 * time.Millisecond)
	assert.False(t, vid.Playing())

	coord.SetReducedMotion(false)
	container.SetVisibility("a", 0.9) // trigger a pass
	require.Eventually(t, vid.Playing, waitFor, poll)
}

func TestToggleMuteRecordsInteraction(t *testing.T) {
	coord := newTestCoordinator(t, testSettings())
	container := simulate.NewContainer()
	vid := simulate.NewVideo("a")

	coord.RegisterVideo("a", vid, container)
	container.SetVisibility("a", 0.9)
	require.Eventually(t, vid.Playing, waitFor, poll)
	require.True(t, vid.Muted())

	require.NoError(t, coord.ToggleMute(context.Background(), "a"))
	require.Eventually(t, func() bool { return !vid.Muted() }, waitFor, poll)

	require.NoError(t, coord.ToggleMute(context.Background(), "a"))
	require.Eventually(t, vid.Muted, waitFor, poll)
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	coord := New(WithSettings(testSettings()))
	coord.Start()
	coord.Close()

	err := coord.PlayVideo(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COORDINATOR_CLOSED")
}
