package state

import (
	"time"

	"github.com/careconnect/realtime/pkg/transport"
	"github.com/google/uuid"
)

// RoomType classifies a room's lifecycle rules.
type RoomType string

const (
	// RoomPersonal is a user's individual mailbox. Created lazily on first
	// connection, never deleted, never left.
	RoomPersonal     RoomType = "personal"
	RoomConversation RoomType = "conversation"
	RoomAppointment  RoomType = "appointment"
	RoomGlobal       RoomType = "global"
)

// ValidRoomType reports whether t is one of the known room types.
func ValidRoomType(t RoomType) bool {
	switch t {
	case RoomPersonal, RoomConversation, RoomAppointment, RoomGlobal:
		return true
	}
	return false
}

// PersonalRoomID derives the deterministic mailbox room id for a user.
func PersonalRoomID(userID string) string { return "user:" + userID }

// ConversationRoomID derives the room id for a chat conversation.
func ConversationRoomID(conversationID string) string {
	return "conversation_" + conversationID
}

// Connection is the immutable identity of a single transport-layer
// connection. It is owned exclusively by the registry; rooms and typing state
// reference users, never connections.
type Connection struct {
	ID        uuid.UUID
	Link      transport.Link
	UserID    string
	CreatedAt time.Time
}

// User aggregates the live connections of one logical user. A User record
// exists iff the user has at least one live connection; presence is derived
// from that.
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection
}

// Room is a named delivery scope. Membership is a set of logical user ids,
// deliberately decoupled from connection lifecycle: a member stays a member
// across disconnects until an explicit leave.
type Room struct {
	ID       string
	Type     RoomType
	Members  map[string]struct{}
	Metadata map[string]string
}
