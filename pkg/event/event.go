// Package event defines the closed set of outbound events the gateway can
// put on the wire. Every deliverable carries a kind tag and a kind-specific
// payload variant, so consumers can match exhaustively instead of probing
// loosely-typed maps.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags an outbound event category.
type Kind string

const (
	// Connection lifecycle.
	KindConnectionSuccess Kind = "connection_success"
	KindConnectionError   Kind = "connection_error"
	KindError             Kind = "error"
	KindPong              Kind = "pong"

	// Room membership acks.
	KindRoomJoined Kind = "room_joined"
	KindRoomLeft   Kind = "room_left"

	// Message lifecycle.
	KindMessageSent     Kind = "message_sent"
	KindMessageUpdated  Kind = "message_updated"
	KindMessageDeleted  Kind = "message_deleted"
	KindReactionAdded   Kind = "reaction_added"
	KindReactionRemoved Kind = "reaction_removed"
	KindMessagesRead    Kind = "messages_read"

	// Typing indicators.
	KindTypingStart Kind = "typing_start"
	KindTypingStop  Kind = "typing_stop"

	// Presence.
	KindPresenceOnline  Kind = "presence_online"
	KindPresenceOffline Kind = "presence_offline"

	// Domain notifications.
	KindNotification      Kind = "notification"
	KindAppointmentUpdate Kind = "appointment_update"
	KindPaymentUpdate     Kind = "payment_update"

	// System announcements.
	KindAnnouncement Kind = "announcement"
)

// Payload is implemented by every outbound payload variant. The unexported
// method keeps the set closed to this package.
type Payload interface {
	kind() Kind
}

// Event is a single outbound deliverable. The delivery target (user, room or
// broadcast) is chosen by the dispatch call, not carried on the wire.
type Event struct {
	Kind      Kind      `json:"event"`
	Payload   Payload   `json:"payload,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// New stamps an event with the current time. The payload's kind wins; callers
// cannot mismatch a tag and a variant.
func New(p Payload) Event {
	return Event{Kind: p.kind(), Payload: p, Timestamp: time.Now().UTC()}
}

// Marshal renders the wire form of the event.
func (e Event) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Kind, err)
	}
	return b, nil
}
