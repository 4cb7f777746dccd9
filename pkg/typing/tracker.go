// Package typing tracks which users are flagged as typing in which
// conversation, with automatic per-entry expiry.
package typing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/careconnect/realtime/pkg/event"
	"github.com/careconnect/realtime/pkg/state"
)

// DefaultTTL is the window after which an un-renewed typing indicator is
// treated as stopped.
const DefaultTTL = 3 * time.Second

// Broadcaster is the slice of the dispatch API the tracker needs: room
// fan-out with the originating user excluded.
type Broadcaster interface {
	SendToRoomExcept(roomID string, ev event.Event, exceptUserID string)
}

// Tracker keeps at most one active entry per (conversation, user). An entry
// dies by explicit stop or by TTL expiry, whichever comes first, and either
// way exactly one typing_stop broadcast is emitted.
//
// Typing entries are conversation-scoped, not connection-scoped: a user's
// disconnect does not clear their entries. Their indicator simply times out.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]map[string]*time.Timer // conversationID -> userID -> TTL timer

	ttl        time.Duration
	dispatcher Broadcaster
	logger     *slog.Logger
}

func NewTracker(dispatcher Broadcaster, ttl time.Duration, logger *slog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		entries:    make(map[string]map[string]*time.Timer),
		ttl:        ttl,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "typing_tracker")),
	}
}

// Start flags the user as typing. A fresh entry broadcasts typing_start to
// the conversation excluding the originator; an existing entry only has its
// TTL renewed, without re-broadcasting.
func (t *Tracker) Start(conversationID, userID string) {
	t.mu.Lock()
	room := t.entries[conversationID]
	if room == nil {
		room = make(map[string]*time.Timer)
		t.entries[conversationID] = room
	}

	if old, ok := room[userID]; ok {
		// Renew by swapping in a fresh timer. Stopping the old one may lose
		// the race with its own firing; the expiry path checks timer identity
		// under the lock, so a stale firing becomes a no-op.
		old.Stop()
		var tm *time.Timer
		tm = time.AfterFunc(t.ttl, func() { t.expire(conversationID, userID, tm) })
		room[userID] = tm
		t.mu.Unlock()
		return
	}

	var tm *time.Timer
	tm = time.AfterFunc(t.ttl, func() { t.expire(conversationID, userID, tm) })
	room[userID] = tm
	t.mu.Unlock()

	t.logger.Debug("Typing started", slog.String("conversationID", conversationID), slog.String("userID", userID))
	t.broadcast(event.TypingStart{ConversationID: conversationID, UserID: userID}, conversationID, userID)
}

// Stop clears the user's typing entry and broadcasts typing_stop. A missing
// entry (never started, already stopped, or already expired) is a no-op.
func (t *Tracker) Stop(conversationID, userID string) {
	t.mu.Lock()
	room := t.entries[conversationID]
	tm, ok := room[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	tm.Stop()
	t.remove(conversationID, userID)
	t.mu.Unlock()

	t.logger.Debug("Typing stopped", slog.String("conversationID", conversationID), slog.String("userID", userID))
	t.broadcast(event.TypingStop{ConversationID: conversationID, UserID: userID}, conversationID, userID)
}

// IsTyping reports whether the user currently has an active entry.
func (t *Tracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[conversationID][userID]
	return ok
}

// expire is the TTL path. It shares Stop's single-emission guarantee: the
// entry is removed under the lock, so whichever path gets there first wins
// and the other finds nothing to do.
func (t *Tracker) expire(conversationID, userID string, tm *time.Timer) {
	t.mu.Lock()
	cur, ok := t.entries[conversationID][userID]
	if !ok || cur != tm {
		// Entry was explicitly stopped, or renewed with a newer timer.
		t.mu.Unlock()
		return
	}
	t.remove(conversationID, userID)
	t.mu.Unlock()

	t.logger.Debug("Typing indicator expired", slog.String("conversationID", conversationID), slog.String("userID", userID))
	t.broadcast(event.TypingStop{ConversationID: conversationID, UserID: userID}, conversationID, userID)
}

// remove must be called with t.mu held.
func (t *Tracker) remove(conversationID, userID string) {
	room := t.entries[conversationID]
	delete(room, userID)
	if len(room) == 0 {
		delete(t.entries, conversationID)
	}
}

func (t *Tracker) broadcast(p event.Payload, conversationID, userID string) {
	t.dispatcher.SendToRoomExcept(state.ConversationRoomID(conversationID), event.New(p), userID)
}
