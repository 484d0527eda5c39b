// Package bridge exposes a Coordinator to a remote feed client over
// WebSocket. The client owns the real media elements and viewport; the
// bridge relays visibility, scroll, and media notifications inward and
// playback commands outward, so the decision engine runs server-side
// against live client state.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON implements custom marshaling (always output as RFC3339)
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for the feed bridge protocol
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	// Client -> server: surface lifecycle and state reports
	MessageTypeRegister   = "register"
	MessageTypeUnregister = "unregister"
	MessageTypeVisibility = "visibility"
	MessageTypeScrollPos  = "scroll_position"
	MessageTypeMediaEvent = "media_event"
	MessageTypePlayResult = "play_result"

	// Client -> server: user actions and environment
	MessageTypePlay          = "play"
	MessageTypePause         = "pause"
	MessageTypePauseAll      = "pause_all"
	MessageTypeToggleMute    = "toggle_mute"
	MessageTypeSettings      = "update_settings"
	MessageTypeReducedMotion = "reduced_motion"

	// Server -> client: playback commands for the media elements
	MessageTypeCmdPlay     = "cmd_play"
	MessageTypeCmdPause    = "cmd_pause"
	MessageTypeCmdSetMuted = "cmd_set_muted"

	// Server -> client: coordinator events and state
	MessageTypeVideoPlay   = "video_play"
	MessageTypeVideoPause  = "video_pause"
	MessageTypeVideoView   = "video_view"
	MessageTypeVideoError  = "video_error"
	MessageTypeScrollState = "scroll_state"
	MessageTypeStats       = "stats"
)

// Message is one frame of the bridge protocol.
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique message identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SurfacePayload carries messages that only need a surface id.
type SurfacePayload struct {
	SurfaceID string `json:"surface_id"`
}

// VisibilityPayload reports a surface's viewport intersection ratio.
type VisibilityPayload struct {
	SurfaceID string  `json:"surface_id"`
	Ratio     float64 `json:"ratio"`
}

// ScrollPosPayload reports the feed container's scroll offset.
type ScrollPosPayload struct {
	Position float64 `json:"position"`
}

// MediaEventPayload reports a media element notification.
type MediaEventPayload struct {
	SurfaceID string `json:"surface_id"`
	Kind      string `json:"kind"` // "play", "pause", "ended", "error", "timeupdate"
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PlayCmdPayload tells the client to start one media element. AttemptID
// correlates the eventual play_result.
type PlayCmdPayload struct {
	SurfaceID string `json:"surface_id"`
	AttemptID uint64 `json:"attempt_id"`
}

// PlayResultPayload resolves a play command. An empty code means success.
type PlayResultPayload struct {
	SurfaceID string `json:"surface_id"`
	AttemptID uint64 `json:"attempt_id"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// MutedCmdPayload sets a media element's muted flag.
type MutedCmdPayload struct {
	SurfaceID string `json:"surface_id"`
	Muted     bool   `json:"muted"`
}

// ReducedMotionPayload reports the client's reduced-motion preference.
type ReducedMotionPayload struct {
	Enabled bool `json:"enabled"`
}

// ViewPayload announces a surface crossing the view threshold.
type ViewPayload struct {
	SurfaceID  string `json:"surface_id"`
	ViewTimeMs int64  `json:"view_time_ms"`
}

// ScrollStatePayload mirrors the coordinator's scroll state to the client.
type ScrollStatePayload struct {
	Scrolling bool    `json:"is_scrolling"`
	Velocity  float64 `json:"velocity"`
}

// StatsPayload mirrors coordinator counters to the client.
type StatsPayload struct {
	TotalVideos   int `json:"total_videos"`
	PlayingVideos int `json:"playing_videos"`
	ViewedVideos  int `json:"viewed_videos"`
}
