// Package gateway translates the inbound wire protocol into calls against
// the registry, room directory, typing tracker and dispatcher, and owns the
// per-connection authentication state machine.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/careconnect/realtime/pkg/auth"
	"github.com/careconnect/realtime/pkg/event"
	"github.com/careconnect/realtime/pkg/state"
	"github.com/careconnect/realtime/pkg/transport"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// SessionState is the connection's position in the handshake lifecycle:
// Unauthenticated -> Authenticated -> Closed. Closed is terminal.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateClosed
)

// Announcer is the slice of the dispatcher the session uses for presence
// transitions.
type Announcer interface {
	AnnounceOnline(userID string)
	AnnounceOffline(userID string, lastSeen time.Time)
}

// TypingTracker is the slice of the typing tracker the session drives.
type TypingTracker interface {
	Start(conversationID, userID string)
	Stop(conversationID, userID string)
}

// Session is the protocol handler bound to one transport connection. Its
// HandleFrame and HandleClose methods plug into the transport callbacks.
type Session struct {
	logger    *slog.Logger
	link      transport.Link
	manager   state.Manager
	announcer Announcer
	typing    TypingTracker
	verifier  auth.Verifier
	directory auth.UserDirectory

	mu     sync.Mutex
	st     SessionState
	userID string
}

func NewSession(
	logger *slog.Logger,
	link transport.Link,
	manager state.Manager,
	announcer Announcer,
	typing TypingTracker,
	verifier auth.Verifier,
	directory auth.UserDirectory,
) *Session {
	return &Session{
		logger:    logger.With(slog.String("component", "gateway_session"), slog.String("connID", link.ID().String())),
		link:      link,
		manager:   manager,
		announcer: announcer,
		typing:    typing,
		verifier:  verifier,
		directory: directory,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// HandleFrame routes one inbound frame. It is the transport's MessageHandler
// and runs on the connection's read goroutine.
func (s *Session) HandleFrame(ctx context.Context, connID uuid.UUID, msg []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		s.logger.Warn("Failed to unmarshal client frame", slog.Any("error", err))
		s.sendError(codeMalformedFrame, "frame is not a valid JSON envelope")
		return
	}

	switch frame.Event {
	case framePing:
		// Liveness probes are answered in any state.
		s.send(event.New(event.Pong{}))
	case frameHandshake:
		s.handleHandshake(ctx, frame)
	default:
		s.handleAuthenticated(frame)
	}
}

func (s *Session) handleHandshake(ctx context.Context, frame ClientFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.st {
	case StateClosed:
		return
	case StateAuthenticated:
		s.sendError(codeAlreadyHandshaken, "connection is already authenticated")
		return
	}

	token := gjson.GetBytes(frame.Payload, "token").String()
	identity, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Warn("Handshake rejected: token verification failed", slog.Any("error", err))
		s.failHandshake("authentication failed", err)
		return
	}

	record, err := s.directory.ResolveUser(ctx, identity.Subject)
	if err != nil {
		s.logger.Warn("Handshake rejected: unknown subject", slog.String("subject", identity.Subject), slog.Any("error", err))
		s.failHandshake("unknown user", err)
		return
	}

	conn, wentOnline, err := s.manager.Admit(s.link, record.ID)
	if err != nil {
		s.logger.Warn("Handshake rejected: admission failed", slog.String("userID", record.ID), slog.Any("error", err))
		s.failHandshake("connection not admitted", err)
		return
	}

	// The personal room doubles as the user's addressable mailbox; it is
	// created lazily here and never deleted.
	if err := s.manager.Join(record.ID, state.PersonalRoomID(record.ID), state.RoomPersonal, nil); err != nil {
		s.logger.Error("Failed to join personal room", slog.String("userID", record.ID), slog.Any("error", err))
	}

	s.st = StateAuthenticated
	s.userID = record.ID
	s.send(event.New(event.ConnectionSuccess{UserID: record.ID, ConnID: conn.ID.String()}))
	s.logger.Info("Session authenticated", slog.String("userID", record.ID))

	if wentOnline {
		s.announcer.AnnounceOnline(record.ID)
	}
}

// failHandshake must be called with s.mu held.
func (s *Session) failHandshake(reason string, err error) {
	s.send(event.New(event.ConnectionError{Reason: reason}))
	s.st = StateClosed
	go s.link.Close(err)
}

func (s *Session) handleAuthenticated(frame ClientFrame) {
	s.mu.Lock()
	st, userID := s.st, s.userID
	s.mu.Unlock()

	switch st {
	case StateClosed:
		return
	case StateUnauthenticated:
		// Recoverable: reject the single frame, leave the connection open.
		s.sendError(codeUnauthenticated, "handshake required before '"+frame.Event+"'")
		return
	}

	switch frame.Event {
	case frameJoinRoom:
		s.handleJoinRoom(userID, frame)
	case frameLeaveRoom:
		s.handleLeaveRoom(userID, frame)
	case frameTypingStart, frameTypingStop:
		conversationID := gjson.GetBytes(frame.Payload, "conversationId").String()
		if conversationID == "" {
			s.sendError(codeMalformedFrame, "missing conversationId")
			return
		}
		if frame.Event == frameTypingStart {
			s.typing.Start(conversationID, userID)
		} else {
			s.typing.Stop(conversationID, userID)
		}
	default:
		s.logger.Warn("Received unknown event", slog.String("event", frame.Event))
		s.sendError(codeUnknownEvent, "unknown event '"+frame.Event+"'")
	}
}

func (s *Session) handleJoinRoom(userID string, frame ClientFrame) {
	roomID := gjson.GetBytes(frame.Payload, "roomId").String()
	roomType := state.RoomType(gjson.GetBytes(frame.Payload, "roomType").String())
	if roomID == "" || !state.ValidRoomType(roomType) {
		s.sendError(codeMalformedFrame, "join_room requires roomId and a valid roomType")
		return
	}
	// Personal rooms are created by admission, never by client request.
	if roomType == state.RoomPersonal {
		s.sendError(codeInvalidRoom, "personal rooms cannot be joined explicitly")
		return
	}

	var metadata map[string]string
	if meta := gjson.GetBytes(frame.Payload, "metadata"); meta.IsObject() {
		metadata = make(map[string]string)
		meta.ForEach(func(key, value gjson.Result) bool {
			metadata[key.String()] = value.String()
			return true
		})
	}

	if err := s.manager.Join(userID, roomID, roomType, metadata); err != nil {
		s.logger.Error("Join failed", slog.String("roomID", roomID), slog.Any("error", err))
		return
	}
	s.send(event.New(event.RoomJoined{RoomID: roomID}))
}

func (s *Session) handleLeaveRoom(userID string, frame ClientFrame) {
	roomID := gjson.GetBytes(frame.Payload, "roomId").String()
	if roomID == "" {
		s.sendError(codeMalformedFrame, "leave_room requires roomId")
		return
	}
	// Non-member and unknown-room leaves are silent; so is any attempt to
	// leave the personal mailbox.
	if s.manager.Leave(userID, roomID) {
		s.send(event.New(event.RoomLeft{RoomID: roomID}))
	}
}

// HandleClose is the transport's OnCloseHandler. Deregistration is
// synchronous: once this returns, no subsequent dispatch can target the
// connection. Typing entries are deliberately left alone; they are
// conversation-scoped and expire on their own TTL.
func (s *Session) HandleClose(connID uuid.UUID, err error) {
	s.mu.Lock()
	prev := s.st
	s.st = StateClosed
	s.mu.Unlock()

	if prev != StateAuthenticated {
		return
	}
	userID, wentOffline, lastSeen := s.manager.Remove(connID)
	s.logger.Info("Session closed",
		slog.String("userID", userID),
		slog.Bool("wentOffline", wentOffline),
		slog.Any("reason", err),
	)
	if wentOffline {
		s.announcer.AnnounceOffline(userID, lastSeen)
	}
}

func (s *Session) send(ev event.Event) {
	msg, err := ev.Marshal()
	if err != nil {
		s.logger.Error("Failed to marshal outbound event", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
		return
	}
	s.link.Send(msg)
}

func (s *Session) sendError(code, message string) {
	s.send(event.New(event.Error{Code: code, Message: message}))
}
