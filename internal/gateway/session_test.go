package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/careconnect/realtime/internal/gateway"
	"github.com/careconnect/realtime/pkg/auth"
	"github.com/careconnect/realtime/pkg/dispatch"
	"github.com/careconnect/realtime/pkg/event"
	"github.com/careconnect/realtime/pkg/metrics"
	"github.com/careconnect/realtime/pkg/state"
	"github.com/careconnect/realtime/pkg/state/statemanager"
	"github.com/careconnect/realtime/pkg/typing"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const (
	testSecret = "test-secret"
	testTTL    = 100 * time.Millisecond
)

type fakeLink struct {
	id   uuid.UUID
	done chan struct{}

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{id: uuid.New(), done: make(chan struct{})}
}

func (f *fakeLink) ID() uuid.UUID { return f.id }

func (f *fakeLink) Send(msg []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeLink) Close(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

func (f *fakeLink) Done() <-chan struct{} { return f.done }

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeLink) received(kind event.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msg := range f.sent {
		if gjson.GetBytes(msg, "event").String() == string(kind) {
			n++
		}
	}
	return n
}

func (f *fakeLink) lastErrorCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if gjson.GetBytes(f.sent[i], "event").String() == string(event.KindError) {
			return gjson.GetBytes(f.sent[i], "payload.code").String()
		}
	}
	return ""
}

// fixture wires a real registry, dispatcher and typing tracker behind the
// sessions under test; only the transport is faked.
type fixture struct {
	manager    *statemanager.InMemoryManager
	dispatcher *dispatch.Dispatcher
	tracker    *typing.Tracker
	verifier   auth.Verifier
	directory  auth.UserDirectory
	logger     *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := statemanager.NewInMemoryManager(logger, statemanager.LimitConfig{})
	dispatcher := dispatch.New(manager, metrics.New(prometheus.NewRegistry()), logger)
	return &fixture{
		manager:    manager,
		dispatcher: dispatcher,
		tracker:    typing.NewTracker(dispatcher, testTTL, logger),
		verifier:   auth.NewJWTVerifier(testSecret),
		directory:  auth.PassthroughDirectory(),
		logger:     logger,
	}
}

func (f *fixture) newSession(link *fakeLink) *gateway.Session {
	return gateway.NewSession(f.logger, link, f.manager, f.dispatcher, f.tracker, f.verifier, f.directory)
}

func signToken(t *testing.T, subject, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func frame(t *testing.T, eventName string, payload map[string]any) []byte {
	t.Helper()
	env := map[string]any{"event": eventName}
	if payload != nil {
		env["payload"] = payload
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return b
}

func (f *fixture) handshake(t *testing.T, s *gateway.Session, link *fakeLink, userID string) {
	t.Helper()
	s.HandleFrame(context.Background(), link.ID(), frame(t, "handshake", map[string]any{
		"token": signToken(t, userID, testSecret),
	}))
	require.Equal(t, gateway.StateAuthenticated, s.State())
}

// connect spins up an authenticated session for userID.
func (f *fixture) connect(t *testing.T, userID string) (*gateway.Session, *fakeLink) {
	t.Helper()
	link := newFakeLink()
	s := f.newSession(link)
	f.handshake(t, s, link, userID)
	return s, link
}

func TestHandshakeSuccess(t *testing.T) {
	f := newFixture(t)
	link := newFakeLink()
	s := f.newSession(link)

	s.HandleFrame(context.Background(), link.ID(), frame(t, "handshake", map[string]any{
		"token": signToken(t, "alice", testSecret),
	}))

	assert.Equal(t, gateway.StateAuthenticated, s.State())
	assert.Equal(t, 1, link.received(event.KindConnectionSuccess))
	assert.True(t, f.manager.IsOnline("alice"))
	assert.Contains(t, f.manager.MembersOf(state.PersonalRoomID("alice")), "alice",
		"admission auto-joins the personal room")
	assert.False(t, link.isClosed())
}

func TestHandshakeInvalidTokenClosesConnection(t *testing.T) {
	f := newFixture(t)
	link := newFakeLink()
	s := f.newSession(link)

	s.HandleFrame(context.Background(), link.ID(), frame(t, "handshake", map[string]any{
		"token": signToken(t, "alice", "wrong-secret"),
	}))

	assert.Equal(t, gateway.StateClosed, s.State())
	assert.Equal(t, 1, link.received(event.KindConnectionError))
	assert.False(t, f.manager.IsOnline("alice"))

	select {
	case <-link.Done():
	case <-time.After(time.Second):
		t.Fatal("expected transport to be closed after failed authentication")
	}
}

func TestUnauthenticatedActionIsRejectedButRecoverable(t *testing.T) {
	f := newFixture(t)
	link := newFakeLink()
	s := f.newSession(link)

	s.HandleFrame(context.Background(), link.ID(), frame(t, "join_room", map[string]any{
		"roomId": "conversation_42", "roomType": "conversation",
	}))

	assert.Equal(t, gateway.StateUnauthenticated, s.State())
	assert.Equal(t, "unauthenticated_action", link.lastErrorCode())
	assert.False(t, link.isClosed(), "connection stays open after a rejected frame")

	// The same connection can still complete the handshake.
	f.handshake(t, s, link, "alice")
}

func TestPingAnsweredInAnyState(t *testing.T) {
	f := newFixture(t)
	link := newFakeLink()
	s := f.newSession(link)

	s.HandleFrame(context.Background(), link.ID(), frame(t, "ping", nil))
	assert.Equal(t, 1, link.received(event.KindPong))

	f.handshake(t, s, link, "alice")
	s.HandleFrame(context.Background(), link.ID(), frame(t, "ping", nil))
	assert.Equal(t, 2, link.received(event.KindPong))
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	f := newFixture(t)
	s, link := f.connect(t, "bob")

	s.HandleFrame(context.Background(), link.ID(), []byte("{not json"))
	assert.Equal(t, "malformed_frame", link.lastErrorCode())

	s.HandleFrame(context.Background(), link.ID(), frame(t, "self_destruct", nil))
	assert.Equal(t, "unknown_event", link.lastErrorCode())
	assert.False(t, link.isClosed())
}

func TestPresenceOnlineFiresOncePerUser(t *testing.T) {
	f := newFixture(t)
	_, observer := f.connect(t, "observer")

	f.connect(t, "alice")
	assert.Equal(t, 1, observer.received(event.KindPresenceOnline))

	// Second device: no additional online broadcast.
	f.connect(t, "alice")
	assert.Equal(t, 1, observer.received(event.KindPresenceOnline))
}

func TestOfflineFiresOnlyOnLastDisconnect(t *testing.T) {
	f := newFixture(t)
	_, observer := f.connect(t, "observer")

	s1, l1 := f.connect(t, "alice")
	s2, l2 := f.connect(t, "alice")

	s1.HandleClose(l1.ID(), nil)
	assert.Equal(t, 0, observer.received(event.KindPresenceOffline),
		"closing one of two connections must not broadcast offline")

	s2.HandleClose(l2.ID(), nil)
	assert.Equal(t, 1, observer.received(event.KindPresenceOffline))
	assert.False(t, f.manager.IsOnline("alice"))
}

func TestJoinAndLeaveAcks(t *testing.T) {
	f := newFixture(t)
	s, link := f.connect(t, "alice")

	s.HandleFrame(context.Background(), link.ID(), frame(t, "join_room", map[string]any{
		"roomId": "conversation_42", "roomType": "conversation",
	}))
	assert.Equal(t, 1, link.received(event.KindRoomJoined))
	assert.Contains(t, f.manager.MembersOf("conversation_42"), "alice")

	// Re-join: membership unchanged, but the ack is still sent.
	s.HandleFrame(context.Background(), link.ID(), frame(t, "join_room", map[string]any{
		"roomId": "conversation_42", "roomType": "conversation",
	}))
	assert.Len(t, f.manager.MembersOf("conversation_42"), 1)

	s.HandleFrame(context.Background(), link.ID(), frame(t, "leave_room", map[string]any{
		"roomId": "conversation_42",
	}))
	assert.Equal(t, 1, link.received(event.KindRoomLeft))
	assert.Empty(t, f.manager.MembersOf("conversation_42"))
}

func TestLeavePersonalRoomIsNoop(t *testing.T) {
	f := newFixture(t)
	s, link := f.connect(t, "alice")
	roomID := state.PersonalRoomID("alice")

	s.HandleFrame(context.Background(), link.ID(), frame(t, "leave_room", map[string]any{
		"roomId": roomID,
	}))

	assert.Equal(t, 0, link.received(event.KindRoomLeft))
	assert.Contains(t, f.manager.MembersOf(roomID), "alice")
}

func TestJoinPersonalRoomTypeRejected(t *testing.T) {
	f := newFixture(t)
	s, link := f.connect(t, "alice")

	s.HandleFrame(context.Background(), link.ID(), frame(t, "join_room", map[string]any{
		"roomId": "user:bob", "roomType": "personal",
	}))

	assert.Equal(t, "invalid_room", link.lastErrorCode())
	assert.NotContains(t, f.manager.MembersOf("user:bob"), "alice")
}

func TestTypingFramesRouteToConversation(t *testing.T) {
	f := newFixture(t)
	alice, aliceLink := f.connect(t, "alice")
	_, bobLink := f.connect(t, "bob")

	joinConversation(t, f, "alice", "42")
	joinConversation(t, f, "bob", "42")

	alice.HandleFrame(context.Background(), aliceLink.ID(), frame(t, "typing_start", map[string]any{
		"conversationId": "42",
	}))
	assert.Equal(t, 1, bobLink.received(event.KindTypingStart))
	assert.Equal(t, 0, aliceLink.received(event.KindTypingStart), "originator is excluded")

	alice.HandleFrame(context.Background(), aliceLink.ID(), frame(t, "typing_stop", map[string]any{
		"conversationId": "42",
	}))
	assert.Equal(t, 1, bobLink.received(event.KindTypingStop))
}

// Typing indicators are conversation-scoped, not connection-scoped: a user's
// disconnect leaves their typing entry alone until its TTL fires. This is a
// deliberate design choice, asserted here so it cannot regress silently.
func TestDisconnectDoesNotClearTypingEntries(t *testing.T) {
	f := newFixture(t)
	alice, aliceLink := f.connect(t, "alice")
	_, bobLink := f.connect(t, "bob")

	joinConversation(t, f, "alice", "42")
	joinConversation(t, f, "bob", "42")

	alice.HandleFrame(context.Background(), aliceLink.ID(), frame(t, "typing_start", map[string]any{
		"conversationId": "42",
	}))
	require.True(t, f.tracker.IsTyping("42", "alice"))

	alice.HandleClose(aliceLink.ID(), nil)
	assert.True(t, f.tracker.IsTyping("42", "alice"),
		"disconnect must not clear typing entries")

	// The indicator dies by TTL, producing exactly one stop for the room.
	require.Eventually(t, func() bool {
		return bobLink.received(event.KindTypingStop) == 1
	}, 5*testTTL, testTTL/10)
	time.Sleep(2 * testTTL)
	assert.Equal(t, 1, bobLink.received(event.KindTypingStop))
}

// End-to-end walk of the multi-device conversation scenario.
func TestConversationScenario(t *testing.T) {
	f := newFixture(t)
	_, observer := f.connect(t, "observer")

	// A connects once: online fires once. A second device adds nothing.
	a1Sess, a1 := f.connect(t, "alice")
	a2Sess, a2 := f.connect(t, "alice")
	assert.Equal(t, 1, observer.received(event.KindPresenceOnline))

	joinConversation(t, f, "alice", "42")
	assert.ElementsMatch(t, []string{"alice"}, f.manager.MembersOf("conversation_42"))

	_, b := f.connect(t, "bob")
	joinConversation(t, f, "bob", "42")
	assert.ElementsMatch(t, []string{"alice", "bob"}, f.manager.MembersOf("conversation_42"))

	// A domain service pushes a message into the conversation.
	f.dispatcher.SendToRoom("conversation_42", event.New(event.MessageSent{Message: event.Message{
		ID: "m1", ConversationID: "42", SenderID: "bob", Content: "hi",
	}}))
	assert.Equal(t, 1, a1.received(event.KindMessageSent))
	assert.Equal(t, 1, a2.received(event.KindMessageSent))
	assert.Equal(t, 1, b.received(event.KindMessageSent))
	assert.Equal(t, 0, observer.received(event.KindMessageSent))

	// A closes everything: room membership is untouched by disconnects.
	a1Sess.HandleClose(a1.ID(), nil)
	a2Sess.HandleClose(a2.ID(), nil)
	assert.False(t, f.manager.IsOnline("alice"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, f.manager.MembersOf("conversation_42"))
}

func joinConversation(t *testing.T, f *fixture, userID, conversationID string) {
	t.Helper()
	require.NoError(t, f.manager.Join(userID, state.ConversationRoomID(conversationID), state.RoomConversation, nil))
}
