package gateway

import "encoding/json"

// Inbound frame names accepted by the session router.
const (
	frameHandshake   = "handshake"
	frameJoinRoom    = "join_room"
	frameLeaveRoom   = "leave_room"
	frameTypingStart = "typing_start"
	frameTypingStop  = "typing_stop"
	framePing        = "ping"
)

// Protocol error codes surfaced to the originating connection only.
const (
	codeMalformedFrame    = "malformed_frame"
	codeUnknownEvent      = "unknown_event"
	codeUnauthenticated   = "unauthenticated_action"
	codeAlreadyHandshaken = "already_authenticated"
	codeInvalidRoom       = "invalid_room"
)

// ClientFrame is the envelope of every inbound message. Payload fields are
// extracted lazily per frame type.
type ClientFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
