// Package notify is the facade external domain services push through. The
// chat, appointment and payment services own persistence and validation;
// this surface owns nothing but delivery.
package notify

import (
	"log/slog"

	"github.com/careconnect/realtime/pkg/dispatch"
	"github.com/careconnect/realtime/pkg/event"
	"github.com/careconnect/realtime/pkg/state"
	"github.com/google/uuid"
)

type Service struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func NewService(dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "notify_service")),
	}
}

// --- Message lifecycle (chat service) ---

func (s *Service) MessageSent(msg event.Message) {
	s.dispatcher.SendToRoom(state.ConversationRoomID(msg.ConversationID), event.New(event.MessageSent{Message: msg}))
}

func (s *Service) MessageUpdated(msg event.Message) {
	s.dispatcher.SendToRoom(state.ConversationRoomID(msg.ConversationID), event.New(event.MessageUpdated{Message: msg}))
}

func (s *Service) MessageDeleted(conversationID, messageID string) {
	s.dispatcher.SendToRoom(state.ConversationRoomID(conversationID), event.New(event.MessageDeleted{
		MessageID:      messageID,
		ConversationID: conversationID,
	}))
}

func (s *Service) ReactionAdded(conversationID, messageID, userID, emoji string) {
	s.dispatcher.SendToRoom(state.ConversationRoomID(conversationID), event.New(event.ReactionAdded{
		MessageID:      messageID,
		ConversationID: conversationID,
		UserID:         userID,
		Emoji:          emoji,
	}))
}

func (s *Service) ReactionRemoved(conversationID, messageID, userID, emoji string) {
	s.dispatcher.SendToRoom(state.ConversationRoomID(conversationID), event.New(event.ReactionRemoved{
		MessageID:      messageID,
		ConversationID: conversationID,
		UserID:         userID,
		Emoji:          emoji,
	}))
}

func (s *Service) MessagesRead(conversationID, readerID string, messageIDs []string) {
	s.dispatcher.SendToRoomExcept(state.ConversationRoomID(conversationID), event.New(event.MessagesRead{
		ConversationID: conversationID,
		ReaderID:       readerID,
		MessageIDs:     messageIDs,
	}), readerID)
}

// --- Domain notifications ---

// NotifyUser pushes a generic notification to the user's mailbox. An id is
// stamped here so consumers can dedupe across reconnects.
func (s *Service) NotifyUser(userID, title, body, topic string) {
	s.dispatcher.SendToUser(userID, event.New(event.Notification{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
		Body:   body,
		Topic:  topic,
	}))
}

// AppointmentChanged fans an appointment lifecycle change out to each party.
func (s *Service) AppointmentChanged(update event.AppointmentUpdate, userIDs ...string) {
	ev := event.New(update)
	for _, userID := range userIDs {
		s.dispatcher.SendToUser(userID, ev)
	}
}

func (s *Service) PaymentChanged(userID string, update event.PaymentUpdate) {
	s.dispatcher.SendToUser(userID, event.New(update))
}

// Announce broadcasts a system announcement to every live connection,
// optionally excluding one user.
func (s *Service) Announce(text string, excludeUserID ...string) {
	s.dispatcher.Broadcast(event.New(event.Announcement{Text: text}), excludeUserID...)
}
