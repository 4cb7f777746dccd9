package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newUnrunConnection builds a connection whose pumps are never started, so
// the send channel acts as an inspectable buffer. The WaitGroup is
// pre-incremented to balance the Done() in Close.
func newUnrunConnection(cfg ConnectionConfig) (*Connection, *sync.WaitGroup) {
	var wg sync.WaitGroup
	wg.Add(1)
	c := NewConnection(context.Background(), &wg, nil, cfg, nil, nil, newTestLogger())
	return c, &wg
}

func TestSendPreservesOrderInBuffer(t *testing.T) {
	c, _ := newUnrunConnection(ConnectionConfig{SendBuffer: 8})

	require.True(t, c.Send([]byte("one")))
	require.True(t, c.Send([]byte("two")))
	require.True(t, c.Send([]byte("three")))

	assert.Equal(t, "one", string(<-c.send))
	assert.Equal(t, "two", string(<-c.send))
	assert.Equal(t, "three", string(<-c.send))
}

func TestSendDropPolicyDiscardsOnOverflow(t *testing.T) {
	c, _ := newUnrunConnection(ConnectionConfig{SendBuffer: 2, Overflow: OverflowDrop})

	require.True(t, c.Send([]byte("a")))
	require.True(t, c.Send([]byte("b")))

	assert.False(t, c.Send([]byte("c")), "overflow must be reported to the caller")
	assert.Len(t, c.send, 2, "the overflowing message is discarded, earlier ones stay queued")

	select {
	case <-c.Done():
		t.Fatal("drop policy must not close the connection")
	default:
	}
}

func TestSendDisconnectPolicyClosesSlowConsumer(t *testing.T) {
	c, _ := newUnrunConnection(ConnectionConfig{SendBuffer: 1, Overflow: OverflowDisconnect})

	require.True(t, c.Send([]byte("a")))
	assert.False(t, c.Send([]byte("b")))

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("disconnect policy must close the slow consumer")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	c, wg := newUnrunConnection(ConnectionConfig{SendBuffer: 4})

	c.Close(nil)
	wg.Wait()

	assert.False(t, c.Send([]byte("late")))
}

func TestCloseIsIdempotent(t *testing.T) {
	var closes int
	c, _ := newUnrunConnection(ConnectionConfig{SendBuffer: 1})
	c.SetOnCloseHandler(func(_ uuid.UUID, _ error) { closes++ })

	c.Close(nil)
	c.Close(nil)

	assert.Equal(t, 1, closes)
	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}
