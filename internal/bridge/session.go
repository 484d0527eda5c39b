package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/marketloop/videofeed"
	"github.com/marketloop/videofeed/internal/events"
	"github.com/marketloop/videofeed/internal/logger"
	"github.com/marketloop/videofeed/internal/metrics"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer
	readWait = 60 * time.Second

	// Send pings to peer with this period (must be less than readWait)
	pingPeriod = (readWait * 9) / 10

	// Push a stats snapshot to the client with this period
	statsPeriod = 2 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Send buffer size
	sendBufferSize = 256
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens    float64
	maxTokens float64
	refill    float64
	lastTime  time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(maxPerSecond),
		lastTime:  time.Now(),
	}
}

// Allow checks if an action is allowed and consumes a token
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.lastTime = now

	r.tokens += elapsed * r.refill
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Session is one connected feed client with its own Coordinator. The
// client's media elements and viewport exist remotely; their handles here
// relay over the connection.
type Session struct {
	ID string

	conn      *websocket.Conn
	coord     *videofeed.Coordinator
	container *remoteContainer

	// Buffered channel of outbound messages
	send chan []byte

	// Connection metadata
	ConnectedAt time.Time
	RemoteAddr  string
	UserAgent   string

	rateLimiter *RateLimiter
	met         *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	attemptSeq atomic.Uint64

	mu        sync.RWMutex
	closed    bool
	videos    map[string]*remoteVideo
	disposers map[string]func()

	unsubscribe []func()
	onClose     func(*Session)
}

// NewSession creates a session with a fresh coordinator built from opts.
func NewSession(conn *websocket.Conn, opts ...videofeed.Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          uuid.New().String(),
		conn:        conn,
		coord:       videofeed.New(opts...),
		container:   newRemoteContainer(),
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		rateLimiter: NewRateLimiter(200, 400),
		met:         metrics.Get(),
		ctx:         ctx,
		cancel:      cancel,
		videos:      make(map[string]*remoteVideo),
		disposers:   make(map[string]func()),
	}
	s.coord.Start()
	s.forwardEvents()
	return s
}

// Coordinator returns the session's coordinator for stats aggregation.
func (s *Session) Coordinator() *videofeed.Coordinator {
	return s.coord
}

func (s *Session) nextAttempt() uint64 {
	return s.attemptSeq.Add(1)
}

// forwardEvents mirrors coordinator events to the client.
func (s *Session) forwardEvents() {
	s.unsubscribe = append(s.unsubscribe,
		s.coord.OnVideoPlay(func(id string) {
			_ = s.Send(NewMessage(MessageTypeVideoPlay, SurfacePayload{SurfaceID: id}))
		}),
		s.coord.OnVideoPause(func(id string) {
			_ = s.Send(NewMessage(MessageTypeVideoPause, SurfacePayload{SurfaceID: id}))
		}),
		s.coord.OnVideoView(func(id string, viewTime time.Duration) {
			_ = s.Send(NewMessage(MessageTypeVideoView, ViewPayload{
				SurfaceID:  id,
				ViewTimeMs: viewTime.Milliseconds(),
			}))
		}),
		s.coord.OnVideoError(func(id string, err error) {
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			_ = s.Send(NewMessage(MessageTypeVideoError, MediaEventPayload{
				SurfaceID: id,
				Kind:      "error",
				Message:   msg,
			}))
		}),
		s.coord.Events().Subscribe(events.TypeScrollState, func(ev events.Event) {
			_ = s.Send(NewMessage(MessageTypeScrollState, ScrollStatePayload{
				Scrolling: ev.Scroll.Scrolling,
				Velocity:  ev.Scroll.Velocity,
			}))
		}),
	)
}

// ReadPump pumps messages from the connection into the coordinator
func (s *Session) ReadPump() {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		readCtx, readCancel := context.WithTimeout(s.ctx, readWait)
		_, data, err := s.conn.Read(readCtx)
		readCancel()

		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				logger.Log.Info("Feed session disconnected normally", logger.WithSessionID(s.ID))
			} else if s.ctx.Err() == nil {
				logger.Log.Error("Read error for feed session", logger.WithSessionID(s.ID), zap.Error(err))
			}
			return
		}

		if !s.rateLimiter.Allow() {
			s.SendError("rate_limited", "Too many messages, please slow down")
			continue
		}

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Log.Warn("Bridge JSON parse error", logger.WithSessionID(s.ID), zap.Error(err))
			s.SendError("invalid_json", "Failed to parse message")
			continue
		}

		s.met.BridgeMessagesTotal.WithLabelValues(message.Type, "in").Inc()
		s.handleMessage(&message)
	}
}

// WritePump pumps outbound messages plus pings and stats snapshots
func (s *Session) WritePump() {
	pingTicker := time.NewTicker(pingPeriod)
	statsTicker := time.NewTicker(statsPeriod)
	defer func() {
		pingTicker.Stop()
		statsTicker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.conn.Close(websocket.StatusGoingAway, "server shutdown")
			return

		case data, ok := <-s.send:
			if !ok {
				s.conn.Close(websocket.StatusNormalClosure, "closing")
				return
			}

			ctx, cancel := context.WithTimeout(s.ctx, writeWait)
			err := s.conn.Write(ctx, websocket.MessageText, data)
			cancel()

			if err != nil {
				logger.Log.Error("Write error for feed session", logger.WithSessionID(s.ID), zap.Error(err))
				return
			}

		case <-pingTicker.C:
			ctx, cancel := context.WithTimeout(s.ctx, writeWait)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				logger.Log.Warn("Ping failed for feed session", logger.WithSessionID(s.ID), zap.Error(err))
				return
			}

		case <-statsTicker.C:
			st := s.coord.Stats()
			_ = s.Send(NewMessage(MessageTypeStats, StatsPayload{
				TotalVideos:   st.TotalVideos,
				PlayingVideos: st.PlayingVideos,
				ViewedVideos:  st.ViewedVideos,
			}))
		}
	}
}

// handleMessage routes one inbound frame.
func (s *Session) handleMessage(message *Message) {
	switch message.Type {
	case MessageTypePing, "heartbeat":
		s.handlePing(message)

	case MessageTypeRegister:
		var p SurfacePayload
		if err := message.ParsePayload(&p); err != nil || p.SurfaceID == "" {
			s.SendError("invalid_payload", "register requires surface_id")
			return
		}
		s.registerSurface(p.SurfaceID)

	case MessageTypeUnregister:
		var p SurfacePayload
		if err := message.ParsePayload(&p); err != nil || p.SurfaceID == "" {
			s.SendError("invalid_payload", "unregister requires surface_id")
			return
		}
		s.unregisterSurface(p.SurfaceID)

	case MessageTypeVisibility:
		var p VisibilityPayload
		if err := message.ParsePayload(&p); err != nil {
			s.SendError("invalid_payload", "bad visibility payload")
			return
		}
		s.container.dispatchVisibility(p.SurfaceID, p.Ratio)

	case MessageTypeScrollPos:
		var p ScrollPosPayload
		if err := message.ParsePayload(&p); err != nil {
			s.SendError("invalid_payload", "bad scroll payload")
			return
		}
		s.container.setScrollPosition(p.Position)

	case MessageTypeMediaEvent:
		var p MediaEventPayload
		if err := message.ParsePayload(&p); err != nil {
			s.SendError("invalid_payload", "bad media event payload")
			return
		}
		if v := s.video(p.SurfaceID); v != nil {
			v.dispatchMedia(p)
		}

	case MessageTypePlayResult:
		var p PlayResultPayload
		if err := message.ParsePayload(&p); err != nil {
			s.SendError("invalid_payload", "bad play result payload")
			return
		}
		if v := s.video(p.SurfaceID); v != nil {
			var err error
			if p.Code != "" {
				err = decodeError(p.SurfaceID, p.Code, p.Message)
			}
			v.resolvePlay(p.AttemptID, err)
		}

	case MessageTypePlay:
		var p SurfacePayload
		if err := message.ParsePayload(&p); err != nil || p.SurfaceID == "" {
			s.SendError("invalid_payload", "play requires surface_id")
			return
		}
		// PlayVideo blocks until the attempt resolves; keep the pump free.
		go func() {
			if err := s.coord.PlayVideo(s.ctx, p.SurfaceID); err != nil {
				s.SendError("play_failed", err.Error())
			}
		}()

	case MessageTypePause:
		var p SurfacePayload
		if err := message.ParsePayload(&p); err != nil || p.SurfaceID == "" {
			s.SendError("invalid_payload", "pause requires surface_id")
			return
		}
		s.coord.PauseVideo(p.SurfaceID)

	case MessageTypePauseAll:
		s.coord.PauseAllVideos()

	case MessageTypeToggleMute:
		var p SurfacePayload
		if err := message.ParsePayload(&p); err != nil || p.SurfaceID == "" {
			s.SendError("invalid_payload", "toggle_mute requires surface_id")
			return
		}
		go func() {
			if err := s.coord.ToggleMute(s.ctx, p.SurfaceID); err != nil {
				s.SendError("toggle_mute_failed", err.Error())
			}
		}()

	case MessageTypeSettings:
		var p videofeed.Partial
		if err := message.ParsePayload(&p); err != nil {
			s.SendError("invalid_payload", "bad settings payload")
			return
		}
		s.coord.UpdateSettings(p)

	case MessageTypeReducedMotion:
		var p ReducedMotionPayload
		if err := message.ParsePayload(&p); err != nil {
			s.SendError("invalid_payload", "bad reduced motion payload")
			return
		}
		s.coord.SetReducedMotion(p.Enabled)

	default:
		logger.Log.Warn("Unknown bridge message type",
			logger.WithSessionID(s.ID),
			zap.String("type", message.Type))
		s.SendError("unknown_type", fmt.Sprintf("Unknown message type: %s", message.Type))
	}
}

func (s *Session) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	pong := NewMessage(MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    serverTime - ping.ClientTime,
	})
	if message.ID != "" {
		pong.ReplyTo = message.ID
	}

	// Best-effort pong response - connection may be closing
	_ = s.Send(pong)
}

func (s *Session) registerSurface(id string) {
	v := newRemoteVideo(id, s)

	s.mu.Lock()
	if prev, ok := s.videos[id]; ok {
		prev.abort()
	}
	s.videos[id] = v
	s.mu.Unlock()

	dispose := s.coord.RegisterVideo(id, v, s.container)

	s.mu.Lock()
	s.disposers[id] = dispose
	s.mu.Unlock()
}

func (s *Session) unregisterSurface(id string) {
	s.mu.Lock()
	v := s.videos[id]
	delete(s.videos, id)
	delete(s.disposers, id)
	s.mu.Unlock()

	s.coord.UnregisterVideo(id)
	if v != nil {
		v.abort()
	}
}

func (s *Session) video(id string) *remoteVideo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videos[id]
}

// Send queues one outbound message. Never blocks; a full buffer drops the
// frame rather than stalling the coordinator.
func (s *Session) Send(message *Message) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("session closed")
	}
	s.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case s.send <- data:
		s.met.BridgeMessagesTotal.WithLabelValues(message.Type, "out").Inc()
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("session shutting down")
	default:
		return fmt.Errorf("send buffer full")
	}
}

// SendError sends an error message to the client
func (s *Session) SendError(code, message string) {
	_ = s.Send(NewErrorMessage(code, message))
}

// Close tears the session down: remote handles abort their pending
// attempts, the coordinator closes, and the connection drops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	videos := make([]*remoteVideo, 0, len(s.videos))
	for _, v := range s.videos {
		videos = append(videos, v)
	}
	onClose := s.onClose
	s.mu.Unlock()

	s.cancel()
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	for _, v := range videos {
		v.abort()
	}
	s.coord.Close()
	s.conn.Close(websocket.StatusNormalClosure, "closing")

	if onClose != nil {
		onClose(s)
	}
}

// IsClosed reports whether the session has been torn down.
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
