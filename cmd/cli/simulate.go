package main

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/marketloop/videofeed"
	"github.com/marketloop/videofeed/internal/config"
	"github.com/marketloop/videofeed/internal/simulate"
	"github.com/spf13/cobra"
)

var (
	simVideos        int
	simDuration      time.Duration
	simScrollEvery   time.Duration
	simMaxConcurrent int
	simSeed          uint64
)

const (
	itemHeight     = 600.0
	viewportHeight = 800.0
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated feed session locally",
	Long: `Generates a feed of fake videos, scrolls through it, and prints
every play, pause, and view decision the coordinator makes.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simVideos, "videos", 8, "number of videos in the feed")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 20*time.Second, "how long to run the session")
	simulateCmd.Flags().DurationVar(&simScrollEvery, "scroll-every", 4*time.Second, "dwell time between scroll gestures")
	simulateCmd.Flags().IntVar(&simMaxConcurrent, "max-concurrent", 1, "concurrent playback limit")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "random seed (0 = random)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simSeed != 0 {
		gofakeit.Seed(simSeed)
	}

	feed := simulate.NewFeed(simVideos, itemHeight, viewportHeight)
	items := feed.Items()

	settings := config.Default()
	settings.MaxConcurrentVideos = simMaxConcurrent

	coord := videofeed.New(
		videofeed.WithSettings(settings),
		videofeed.WithTickInterval(50*time.Millisecond),
	)
	coord.Start()
	defer coord.Close()

	titles := make(map[string]string, len(items))
	for _, item := range items {
		titles[item.ID] = fmt.Sprintf("%q by %s", item.Title, item.Creator)
	}
	name := func(id string) string {
		if t, ok := titles[id]; ok {
			return t
		}
		return id
	}

	coord.OnVideoPlay(func(id string) {
		fmt.Printf("  ▶ play  %s\n", name(id))
	})
	coord.OnVideoPause(func(id string) {
		fmt.Printf("  ⏸ pause %s\n", name(id))
	})
	coord.OnVideoView(func(id string, viewTime time.Duration) {
		fmt.Printf("  ✓ viewed %s after %s\n", name(id), viewTime.Round(time.Millisecond))
	})
	coord.OnVideoError(func(id string, err error) {
		fmt.Printf("  ✗ error %s: %v\n", name(id), err)
	})

	fmt.Printf("Simulating a feed of %d videos for %s\n\n", simVideos, simDuration)
	for i, item := range items {
		fmt.Printf("%2d. %s (%s)\n", i+1, name(item.ID), item.Duration)
		coord.RegisterVideo(item.ID, feed.Video(item.ID), feed.Container())
	}
	fmt.Println()

	feed.ScrollTo(0)

	deadline := time.Now().Add(simDuration)
	offset := 0.0
	for time.Now().Before(deadline) {
		time.Sleep(simScrollEvery)
		if time.Now().After(deadline) {
			break
		}

		offset += itemHeight
		fmt.Printf("-- scrolling to offset %.0f --\n", offset)
		// Step through the gesture so scroll sampling sees real movement.
		for step := 0; step < 10; step++ {
			feed.ScrollBy(itemHeight / 10)
			time.Sleep(30 * time.Millisecond)
		}
	}

	stats := coord.Stats()
	fmt.Printf("\nSession summary: %d videos, %d playing, %d viewed\n",
		stats.TotalVideos, stats.PlayingVideos, stats.ViewedVideos)
	return nil
}
