package state

import (
	"errors"
	"time"

	"github.com/careconnect/realtime/pkg/transport"
	"github.com/google/uuid"
)

var (
	// ErrAlreadyAdmitted is returned when a connection id is admitted twice.
	ErrAlreadyAdmitted = errors.New("connection is already admitted")
	// ErrConnectionLimit is returned in reject mode when a user is at their
	// per-user connection cap.
	ErrConnectionLimit = errors.New("user connection limit reached")
)

type Manager interface {
	// --- Connection Registry ---

	// Admit registers the connection under userID. wentOnline reports whether
	// this was the user's first live connection; the caller owes exactly one
	// presence broadcast when it is true.
	Admit(link transport.Link, userID string) (conn *Connection, wentOnline bool, err error)
	// Remove deregisters a connection. wentOffline reports whether this was
	// the user's last live connection; lastSeen is only meaningful then.
	// Removing an unknown connection is a no-op.
	Remove(connID uuid.UUID) (userID string, wentOffline bool, lastSeen time.Time)
	IsOnline(userID string) bool
	// ConnectionsOf returns the live links of a user, empty when offline.
	ConnectionsOf(userID string) []transport.Link
	// AllConnections returns every live link system-wide, skipping those
	// owned by excludeUserID when it is non-empty.
	AllConnections(excludeUserID string) []transport.Link
	ConnectionCount() int

	// --- Room Directory ---

	// Join idempotently adds the user to the room, creating it on first
	// reference with the supplied type and metadata. Re-supplied type and
	// metadata on later joins are ignored: first writer wins.
	Join(userID, roomID string, roomType RoomType, metadata map[string]string) error
	// Leave removes the user from the room's membership and reports whether
	// anything was actually removed. Unknown rooms, non-members and personal
	// rooms are silent no-ops.
	Leave(userID, roomID string) bool
	// MembersOf returns the room's member user ids, empty if the room does
	// not exist.
	MembersOf(roomID string) []string
	FindRoom(roomID string) (*Room, bool)
}
