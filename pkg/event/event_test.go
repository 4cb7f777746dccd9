package event_test

import (
	"testing"

	"github.com/careconnect/realtime/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewStampsKindFromPayload(t *testing.T) {
	ev := event.New(event.TypingStart{ConversationID: "42", UserID: "alice"})

	assert.Equal(t, event.KindTypingStart, ev.Kind)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestMarshalWireShape(t *testing.T) {
	ev := event.New(event.PresenceOnline{UserID: "alice"})

	b, err := ev.Marshal()
	require.NoError(t, err)

	assert.Equal(t, "presence_online", gjson.GetBytes(b, "event").String())
	assert.Equal(t, "alice", gjson.GetBytes(b, "payload.userId").String())
	assert.True(t, gjson.GetBytes(b, "ts").Exists())
}
