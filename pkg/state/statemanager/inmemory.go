// Package statemanager holds the in-memory implementation of the connection
// registry and room directory.
package statemanager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/careconnect/realtime/pkg/state"
	"github.com/careconnect/realtime/pkg/transport"
	"github.com/google/uuid"
)

// LimitConfig is the per-user connection cap, enforced at admission since
// authentication happens in-band rather than at the HTTP layer.
type LimitConfig struct {
	MaxPerUser int
	// Mode is "reject" (refuse the new connection) or "cycle" (close the
	// user's oldest connection to make room).
	Mode string
}

const (
	LimitModeReject = "reject"
	LimitModeCycle  = "cycle"
)

// InMemoryManager tracks connections, users and rooms in three maps. Lock
// order is connMu -> userMu -> roomMu; no method acquires them in any other
// order, so operations spanning tables cannot deadlock.
type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	users map[string]*state.User
	rooms map[string]*state.Room

	connMu sync.RWMutex
	userMu sync.RWMutex
	roomMu sync.RWMutex

	limit  LimitConfig
	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger, limit LimitConfig) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]*state.User),
		rooms:  make(map[string]*state.Room),
		limit:  limit,
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) Admit(link transport.Link, userID string) (*state.Connection, bool, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.userMu.Lock()
	defer m.userMu.Unlock()

	connID := link.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, false, state.ErrAlreadyAdmitted
	}

	user, online := m.users[userID]
	if online && m.limit.MaxPerUser > 0 && len(user.Connections) >= m.limit.MaxPerUser {
		switch m.limit.Mode {
		case LimitModeCycle:
			oldest := oldestConnection(user)
			m.logger.Info("Cycling connection: closing oldest",
				slog.String("userID", userID),
				slog.String("connID", oldest.ID.String()),
			)
			// Close runs the onClose path, which re-enters Remove; it must
			// not happen while we hold the locks.
			go oldest.Link.Close(state.ErrConnectionLimit)
		default:
			return nil, false, state.ErrConnectionLimit
		}
	}

	conn := &state.Connection{
		ID:        connID,
		Link:      link,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = conn

	if !online {
		user = &state.User{
			ID:          userID,
			Connections: make(map[uuid.UUID]*state.Connection),
		}
		m.users[userID] = user
	}
	user.Connections[connID] = conn

	m.logger.Debug("Connection admitted",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
		slog.Int("userConnections", len(user.Connections)),
	)
	return conn, !online, nil
}

func (m *InMemoryManager) Remove(connID uuid.UUID) (string, bool, time.Time) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.userMu.Lock()
	defer m.userMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// already removed
		return "", false, time.Time{}
	}
	delete(m.conns, connID)

	user, ok := m.users[conn.UserID]
	if !ok {
		return conn.UserID, false, time.Time{}
	}
	delete(user.Connections, connID)
	m.logger.Debug("Connection removed",
		slog.String("connID", connID.String()),
		slog.String("userID", user.ID),
		slog.Int("userConnections", len(user.Connections)),
	)

	if len(user.Connections) > 0 {
		return user.ID, false, time.Time{}
	}
	// Last connection gone: the user entry goes with it, so presence can be
	// read straight off map membership.
	delete(m.users, user.ID)
	return user.ID, true, time.Now()
}

func (m *InMemoryManager) IsOnline(userID string) bool {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	_, ok := m.users[userID]
	return ok
}

func (m *InMemoryManager) ConnectionsOf(userID string) []transport.Link {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil
	}
	links := make([]transport.Link, 0, len(user.Connections))
	for _, c := range user.Connections {
		links = append(links, c.Link)
	}
	return links
}

func (m *InMemoryManager) AllConnections(excludeUserID string) []transport.Link {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	links := make([]transport.Link, 0, len(m.conns))
	for _, c := range m.conns {
		if excludeUserID != "" && c.UserID == excludeUserID {
			continue
		}
		links = append(links, c.Link)
	}
	return links
}

func (m *InMemoryManager) ConnectionCount() int {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return len(m.conns)
}

// --- Room Directory ---

func (m *InMemoryManager) Join(userID, roomID string, roomType state.RoomType, metadata map[string]string) error {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:      roomID,
			Type:    roomType,
			Members: make(map[string]struct{}),
		}
		if len(metadata) > 0 {
			room.Metadata = make(map[string]string, len(metadata))
			for k, v := range metadata {
				room.Metadata[k] = v
			}
		}
		m.rooms[roomID] = room
		m.logger.Debug("Room created",
			slog.String("roomID", roomID),
			slog.String("roomType", string(roomType)),
		)
	}

	if _, member := room.Members[userID]; member {
		// Re-join is a no-op.
		return nil
	}
	room.Members[userID] = struct{}{}
	m.logger.Debug("User joined room", slog.String("userID", userID), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) Leave(userID, roomID string) bool {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		m.logger.Debug("Leave of unknown room ignored",
			slog.String("userID", userID),
			slog.String("roomID", roomID),
		)
		return false
	}
	if room.Type == state.RoomPersonal {
		// Personal rooms are a permanent mailbox and cannot be left.
		return false
	}
	if _, member := room.Members[userID]; !member {
		return false
	}
	delete(room.Members, userID)
	m.logger.Debug("User left room", slog.String("userID", userID), slog.String("roomID", roomID))

	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
	}
	return true
}

func (m *InMemoryManager) MembersOf(roomID string) []string {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(room.Members))
	for id := range room.Members {
		members = append(members, id)
	}
	return members
}

func (m *InMemoryManager) FindRoom(roomID string) (*state.Room, bool) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

func oldestConnection(user *state.User) *state.Connection {
	var oldest *state.Connection
	for _, c := range user.Connections {
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	return oldest
}
