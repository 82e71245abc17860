package wsreg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchcore/dispatchcore/core/logging"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

// fakeConn is a minimal Conn double: it yields a fixed sequence of
// incoming frames, then a normal CloseError, and records outgoing
// writes.
type fakeConn struct {
	mu       sync.Mutex
	incoming [][]byte
	idx      int
	writes   [][]byte
	closed   bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.incoming) {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	p := f.incoming[f.idx]
	f.idx++
	return websocket.TextMessage, p, nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestLifecycleEmitsConnectMessagesDisconnectInOrder(t *testing.T) {
	conn := &fakeConn{incoming: [][]byte{[]byte("hello"), []byte("world")}}

	var mu sync.Mutex
	var kinds []message.WSFrameKind
	dispatch := func(_ context.Context, m *message.Message) {
		mu.Lock()
		kinds = append(kinds, m.WSFrame)
		mu.Unlock()
	}

	r := New(0, dispatch, logging.Noop())
	r.Accept(context.Background(), conn, "/ws/chat", rctx.NewCMS())

	assert.Equal(t, []message.WSFrameKind{
		message.WSConnect, message.WSText, message.WSText, message.WSDisconnect,
	}, kinds)
	assert.True(t, conn.closed)
	assert.Equal(t, 0, r.Count(), "session must be unregistered once the lifecycle task returns")
}

func TestGroupOperations(t *testing.T) {
	conn := &fakeConn{}
	r := New(0, func(context.Context, *message.Message) {}, logging.Noop())

	s := newSession("room-test-session", conn, "/ws/chat", rctx.NewCMS())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	id := s.ID

	assert.True(t, r.AddToGroup(id, "room-1"))
	assert.False(t, r.AddToGroup("unknown-session", "room-1"))

	sessions := r.GroupSessions("room-1")
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)

	delivered := r.SendToGroup("room-1", []byte("hi"), message.WSText)
	assert.Equal(t, 1, delivered)
	assert.Len(t, conn.writes, 1)

	r.RemoveFromGroup(id, "room-1")
	assert.Empty(t, r.GroupSessions("room-1"))
}

func TestSendNoOpsAfterClose(t *testing.T) {
	conn := &fakeConn{}
	s := newSession("s1", conn, "/ws/chat", rctx.NewCMS())
	require.NoError(t, s.Close())
	assert.NoError(t, s.SendText([]byte("late")))
	assert.Empty(t, conn.writes, "send after close must no-op, not write")
}

func TestHeartbeatStopsWhenSessionCloses(t *testing.T) {
	conn := &fakeConn{}
	r := New(5*time.Millisecond, func(context.Context, *message.Message) {}, logging.Noop())

	done := make(chan struct{})
	go func() {
		r.Accept(context.Background(), conn, "/ws/chat", rctx.NewCMS())
		close(done)
	}()
	<-done

	assert.True(t, conn.closed)
}
