package videofeed

import (
	"time"

	"github.com/marketloop/videofeed/internal/config"
)

type options struct {
	settings      config.Settings
	thresholds    []float64
	tickInterval  time.Duration
	reducedMotion bool
	clock         func() time.Time
}

func defaultOptions() options {
	return options{
		settings:     config.Default(),
		tickInterval: 100 * time.Millisecond,
		clock:        time.Now,
	}
}

// Option configures a Coordinator at construction.
type Option func(*options)

// WithSettings seeds the coordinator's behavior settings. Missing
// validation is forgiving: out-of-range values are clamped, not rejected.
func WithSettings(s config.Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithThresholds overrides the visibility bucket boundaries.
func WithThresholds(thresholds []float64) Option {
	return func(o *options) { o.thresholds = thresholds }
}

// WithTickInterval sets the view-time accrual cadence. Shorter intervals
// tighten view tracking resolution at the cost of more wakeups.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithReducedMotion seeds the platform's reduced-motion preference. It can
// change at runtime through SetReducedMotion.
func WithReducedMotion(on bool) Option {
	return func(o *options) { o.reducedMotion = on }
}

// WithClock overrides the time source used for view accrual.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}
