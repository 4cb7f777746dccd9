package event

import "time"

type ConnectionSuccess struct {
	UserID string `json:"userId"`
	ConnID string `json:"connId"`
}

func (ConnectionSuccess) kind() Kind { return KindConnectionSuccess }

type ConnectionError struct {
	Reason string `json:"reason"`
}

func (ConnectionError) kind() Kind { return KindConnectionError }

// Error is the protocol-level rejection of a single inbound frame.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) kind() Kind { return KindError }

type Pong struct{}

func (Pong) kind() Kind { return KindPong }

type RoomJoined struct {
	RoomID string `json:"roomId"`
}

func (RoomJoined) kind() Kind { return KindRoomJoined }

type RoomLeft struct {
	RoomID string `json:"roomId"`
}

func (RoomLeft) kind() Kind { return KindRoomLeft }

// Message is the chat-message shape shared by the message lifecycle events.
// The realtime core never validates or stores it; the chat service owns both.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
}

type MessageSent struct {
	Message Message `json:"message"`
}

func (MessageSent) kind() Kind { return KindMessageSent }

type MessageUpdated struct {
	Message Message `json:"message"`
}

func (MessageUpdated) kind() Kind { return KindMessageUpdated }

type MessageDeleted struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

func (MessageDeleted) kind() Kind { return KindMessageDeleted }

type ReactionAdded struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Emoji          string `json:"emoji"`
}

func (ReactionAdded) kind() Kind { return KindReactionAdded }

type ReactionRemoved struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Emoji          string `json:"emoji"`
}

func (ReactionRemoved) kind() Kind { return KindReactionRemoved }

type MessagesRead struct {
	ConversationID string   `json:"conversationId"`
	ReaderID       string   `json:"readerId"`
	MessageIDs     []string `json:"messageIds"`
}

func (MessagesRead) kind() Kind { return KindMessagesRead }

type TypingStart struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (TypingStart) kind() Kind { return KindTypingStart }

type TypingStop struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (TypingStop) kind() Kind { return KindTypingStop }

type PresenceOnline struct {
	UserID string `json:"userId"`
}

func (PresenceOnline) kind() Kind { return KindPresenceOnline }

type PresenceOffline struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

func (PresenceOffline) kind() Kind { return KindPresenceOffline }

type Notification struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Topic  string `json:"topic,omitempty"`
}

func (Notification) kind() Kind { return KindNotification }

type AppointmentUpdate struct {
	AppointmentID string    `json:"appointmentId"`
	Status        string    `json:"status"`
	CaregiverID   string    `json:"caregiverId,omitempty"`
	ClientID      string    `json:"clientId,omitempty"`
	ScheduledAt   time.Time `json:"scheduledAt,omitempty"`
}

func (AppointmentUpdate) kind() Kind { return KindAppointmentUpdate }

type PaymentUpdate struct {
	PaymentID     string `json:"paymentId"`
	AppointmentID string `json:"appointmentId,omitempty"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amountCents,omitempty"`
	Currency      string `json:"currency,omitempty"`
}

func (PaymentUpdate) kind() Kind { return KindPaymentUpdate }

type Announcement struct {
	Text string `json:"text"`
}

func (Announcement) kind() Kind { return KindAnnouncement }
