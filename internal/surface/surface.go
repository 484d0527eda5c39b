// Package surface defines the video surface model and the collaborator
// contracts the coordinator issues commands through. The coordinator holds
// only non-owning references: a Surface never outlives the UI component
// that registered it.
package surface

import "time"

// State is the playback state of a single surface.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateEnded
	StateErrored
)

// String implements Stringer for State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MediaEventKind identifies a notification from the underlying media element.
type MediaEventKind int

const (
	MediaPlay MediaEventKind = iota
	MediaPause
	MediaEnded
	MediaError
	MediaTimeUpdate
)

// MediaEvent is a notification emitted by a VideoHandle.
type MediaEvent struct {
	Kind     MediaEventKind
	Position time.Duration
	Err      error
}

// VideoHandle is the contract a concrete video element must satisfy.
// Play returns a pending result: the channel yields nil once playback
// starts, or a classified error (internal/errors) when the attempt is
// rejected. The coordinator never blocks on it.
type VideoHandle interface {
	Play() <-chan error
	Pause()
	SetMuted(muted bool)
	Muted() bool

	// Subscribe registers a listener for media notifications. The returned
	// cancel is idempotent and must stop all future deliveries.
	Subscribe(fn func(MediaEvent)) (cancel func())
}

// ContainerHandle is the scrollable ancestor used for visibility
// computation and scroll sampling.
type ContainerHandle interface {
	// ObserveIntersection reports the surface's viewport intersection ratio
	// at the given thresholds. It returns CAPABILITY_UNAVAILABLE when the
	// platform has no intersection primitive.
	ObserveIntersection(id string, thresholds []float64, fn func(ratio float64)) (cancel func(), err error)

	// ScrollPosition samples the container's current scroll offset.
	// ok is false when the position cannot be read.
	ScrollPosition() (pos float64, ok bool)
}

// Surface is one mounted, playable video in the feed.
type Surface struct {
	ID        string
	Video     VideoHandle
	Container ContainerHandle

	// Seq orders registrations; higher is more recent. Recency breaks
	// ranking ties in favor of newly scrolled-into-view content.
	Seq uint64

	State           State
	VisibilityRatio float64

	// SeenVisibility distinguishes "no report yet" from a genuine zero
	// ratio; a manual play is never force-paused on an unreported surface.
	SeenVisibility bool

	// Manual overrides suppress automatic transitions until a qualifying
	// reset condition occurs.
	ManuallyPaused  bool
	ManuallyPlaying bool

	// AwaitingRecross holds a manual pause out of candidacy until the
	// surface drops below the visibility threshold and crosses back above.
	AwaitingRecross bool

	// AutoplayBlocked latches after a policy-blocked play so the engine
	// does not thrash retries; a fresh upward threshold crossing clears it.
	AutoplayBlocked bool

	// ViewAccumulated is total visible-and-playing time. ViewedFired
	// guarantees the viewed event is one-shot per surface instance.
	ViewAccumulated time.Duration
	ViewedFired     bool

	// PlayGen identifies the latest play attempt; results from older
	// generations are stale and dropped. Bumped on pause and unregister to
	// cancel pending reconciliation.
	PlayGen uint64

	// PendingReply, when non-nil, resolves the caller of a manual play once
	// the attempt concludes or is abandoned.
	PendingReply chan error

	// CancelMedia releases the media event subscription attached at
	// registration. Idempotent.
	CancelMedia func()
}

// Occupied reports whether the surface holds (or is about to hold) one of
// the concurrency slots.
func (s *Surface) Occupied() bool {
	return s.State == StatePlaying || s.State == StateLoading
}
