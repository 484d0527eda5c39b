package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/marketloop/videofeed"
	"github.com/marketloop/videofeed/internal/logger"
	"github.com/marketloop/videofeed/internal/metrics"
	"go.uber.org/zap"
)

// Handler accepts feed client connections and tracks live sessions.
type Handler struct {
	opts []videofeed.Option
	met  *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHandler creates a handler; opts seed every session's coordinator.
func NewHandler(opts ...videofeed.Option) *Handler {
	return &Handler{
		opts:     opts,
		met:      metrics.Get(),
		sessions: make(map[string]*Session),
	}
}

// HandleWebSocket upgrades the request and runs the session until the
// client disconnects.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin policy is enforced by the CORS middleware
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	session := NewSession(conn, h.opts...)
	session.RemoteAddr = c.ClientIP()
	session.UserAgent = c.GetHeader("User-Agent")
	session.onClose = h.remove

	h.mu.Lock()
	h.sessions[session.ID] = session
	count := len(h.sessions)
	h.mu.Unlock()
	h.met.BridgeSessionsActive.Set(float64(count))

	logger.Log.Info("Feed session connected",
		logger.WithSessionID(session.ID),
		zap.String("remote_addr", session.RemoteAddr),
		zap.Int("active_sessions", count))

	session.Send(NewMessage(MessageTypeSystem, map[string]interface{}{
		"event":       "connected",
		"session_id":  session.ID,
		"server_time": time.Now().UTC().UnixMilli(),
	}))

	go session.WritePump()
	session.ReadPump() // blocks until the client disconnects
	session.Close()
}

func (h *Handler) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	count := len(h.sessions)
	h.mu.Unlock()
	h.met.BridgeSessionsActive.Set(float64(count))

	logger.Log.Info("Feed session closed",
		logger.WithSessionID(s.ID),
		zap.Duration("duration", time.Since(s.ConnectedAt)),
		zap.Int("active_sessions", count))
}

// SessionCount returns the number of live sessions.
func (h *Handler) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleStats reports aggregate coordinator stats across all sessions.
func (h *Handler) HandleStats(c *gin.Context) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	var agg videofeed.Stats
	perSession := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		st := s.Coordinator().Stats()
		agg.TotalVideos += st.TotalVideos
		agg.PlayingVideos += st.PlayingVideos
		agg.ViewedVideos += st.ViewedVideos
		perSession = append(perSession, gin.H{
			"session_id":     s.ID,
			"connected_at":   s.ConnectedAt,
			"total_videos":   st.TotalVideos,
			"playing_videos": st.PlayingVideos,
			"viewed_videos":  st.ViewedVideos,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions":  perSession,
		"aggregate": agg,
		"count":     len(sessions),
		"timestamp": time.Now().UTC(),
	})
}

// HandleSettings pushes a sparse settings update to every live session.
func (h *Handler) HandleSettings(c *gin.Context) {
	var p videofeed.Partial
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Coordinator().UpdateSettings(p)
	}

	c.JSON(http.StatusOK, gin.H{
		"updated_sessions": len(sessions),
		"timestamp":        time.Now().UTC(),
	})
}

// Shutdown closes every live session, bounded by ctx.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, s := range sessions {
			s.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
