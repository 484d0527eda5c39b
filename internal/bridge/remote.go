package bridge

import (
	"sync"
	"time"

	"github.com/marketloop/videofeed/internal/errors"
	"github.com/marketloop/videofeed/internal/surface"
)

// playResultTimeout bounds how long a play command may stay unresolved
// before the bridge treats the client as unreachable for that attempt.
const playResultTimeout = 15 * time.Second

// remoteVideo implements surface.VideoHandle against a media element that
// lives in the connected client. Commands go out as protocol messages;
// results and media notifications come back on the session's read pump.
type remoteVideo struct {
	id      string
	session *Session

	mu      sync.Mutex
	muted   bool
	nextSub int
	subs    map[int]func(surface.MediaEvent)
	pending map[uint64]chan error
}

func newRemoteVideo(id string, session *Session) *remoteVideo {
	return &remoteVideo{
		id:      id,
		session: session,
		muted:   true, // elements arrive muted until told otherwise
		subs:    make(map[int]func(surface.MediaEvent)),
		pending: make(map[uint64]chan error),
	}
}

// Play implements surface.VideoHandle
func (v *remoteVideo) Play() <-chan error {
	attempt := v.session.nextAttempt()
	ch := make(chan error, 1)

	v.mu.Lock()
	v.pending[attempt] = ch
	v.mu.Unlock()

	if err := v.session.Send(NewMessage(MessageTypeCmdPlay, PlayCmdPayload{
		SurfaceID: v.id,
		AttemptID: attempt,
	})); err != nil {
		v.resolvePlay(attempt, errors.MediaNetwork(v.id, "feed session unavailable").WithCause(err))
		return ch
	}

	time.AfterFunc(playResultTimeout, func() {
		v.resolvePlay(attempt, errors.MediaNetwork(v.id, "play command timed out"))
	})
	return ch
}

// resolvePlay settles one attempt; later resolutions for the same attempt
// are dropped, so the timeout and a real result cannot both fire.
func (v *remoteVideo) resolvePlay(attempt uint64, err error) {
	v.mu.Lock()
	ch, ok := v.pending[attempt]
	if ok {
		delete(v.pending, attempt)
	}
	v.mu.Unlock()

	if ok {
		ch <- err
	}
}

// Pause implements surface.VideoHandle
func (v *remoteVideo) Pause() {
	_ = v.session.Send(NewMessage(MessageTypeCmdPause, SurfacePayload{SurfaceID: v.id}))
}

// SetMuted implements surface.VideoHandle
func (v *remoteVideo) SetMuted(muted bool) {
	v.mu.Lock()
	v.muted = muted
	v.mu.Unlock()
	_ = v.session.Send(NewMessage(MessageTypeCmdSetMuted, MutedCmdPayload{SurfaceID: v.id, Muted: muted}))
}

// Muted implements surface.VideoHandle
func (v *remoteVideo) Muted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

// Subscribe implements surface.VideoHandle
func (v *remoteVideo) Subscribe(fn func(surface.MediaEvent)) (cancel func()) {
	v.mu.Lock()
	v.nextSub++
	id := v.nextSub
	v.subs[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// dispatchMedia converts a protocol media event and fans it out.
func (v *remoteVideo) dispatchMedia(p MediaEventPayload) {
	var ev surface.MediaEvent
	switch p.Kind {
	case "play":
		ev.Kind = surface.MediaPlay
	case "pause":
		ev.Kind = surface.MediaPause
	case "ended":
		ev.Kind = surface.MediaEnded
	case "error":
		ev.Kind = surface.MediaError
		ev.Err = decodeError(v.id, p.Code, p.Message)
	case "timeupdate":
		ev.Kind = surface.MediaTimeUpdate
	default:
		return
	}

	v.mu.Lock()
	fns := make([]func(surface.MediaEvent), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// abort fails every pending attempt, used when the session closes.
func (v *remoteVideo) abort() {
	v.mu.Lock()
	pending := v.pending
	v.pending = make(map[uint64]chan error)
	v.mu.Unlock()

	for _, ch := range pending {
		ch <- errors.MediaNetwork(v.id, "feed session closed")
	}
}

// decodeError maps a wire error code back to the playback taxonomy.
func decodeError(surfaceID, code, message string) error {
	switch errors.ErrorCode(code) {
	case errors.ErrPolicyBlocked:
		return errors.PolicyBlocked(surfaceID)
	case errors.ErrMediaNetwork:
		return errors.MediaNetwork(surfaceID, message)
	default:
		if message == "" {
			message = "media element reported an error"
		}
		return errors.MediaDecode(surfaceID, message)
	}
}

// remoteContainer implements surface.ContainerHandle for the client's feed
// viewport. Visibility and scroll reports arrive on the read pump and are
// cached or dispatched here.
type remoteContainer struct {
	mu       sync.Mutex
	pos      float64
	havePos  bool
	watchers map[string]func(ratio float64)
}

func newRemoteContainer() *remoteContainer {
	return &remoteContainer{watchers: make(map[string]func(float64))}
}

// ObserveIntersection implements surface.ContainerHandle. The client does
// the actual intersection observation; the bridge only routes reports.
func (c *remoteContainer) ObserveIntersection(id string, thresholds []float64, fn func(ratio float64)) (cancel func(), err error) {
	c.mu.Lock()
	c.watchers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}, nil
}

// ScrollPosition implements surface.ContainerHandle
func (c *remoteContainer) ScrollPosition() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, c.havePos
}

func (c *remoteContainer) setScrollPosition(pos float64) {
	c.mu.Lock()
	c.pos = pos
	c.havePos = true
	c.mu.Unlock()
}

func (c *remoteContainer) dispatchVisibility(id string, ratio float64) {
	c.mu.Lock()
	fn := c.watchers[id]
	c.mu.Unlock()
	if fn != nil {
		fn(ratio)
	}
}
