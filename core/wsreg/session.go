// Package wsreg implements the WebSocket Session Registry (spec §3.5,
// §3.6, §4.5): session lifecycle, heartbeat, group membership, and
// best-effort broadcast/group fan-out.
//
// Grounded on streamspace's internal/websocket/hub.go register/
// unregister/broadcast Hub (the registry shape: session/group indexes,
// here guarded by a mutex and mutated from any goroutine rather than by
// one owning goroutine reading channels) and on
// bclib/listener/http/websocket_session_manager.py (original_source) for
// the exact group/broadcast operation semantics spec.md §4.5 carries
// over unchanged.
package wsreg

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

// Conn is the subset of *websocket.Conn a Session needs; satisfied
// directly by the real type, narrowed here so tests can fake a socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// DispatchFunc delivers one inbound WebSocket Message to the Routing
// Dispatcher. The lifecycle task awaits it before reading the next frame
// (spec §4.5, §5: "handler invocations for its messages occur in receipt
// order").
type DispatchFunc func(ctx context.Context, msg *message.Message)

const closeGracePeriod = 2500 * time.Millisecond

// Session wraps one live WebSocket connection. All sends serialize
// through sendMu (spec §5: "per-session socket... all writes serialize
// through... a per-session send lock"). URL and CMS are captured once from
// the upgrade request and reused for every frame the session dispatches
// (spec §3.5: "peer metadata (url, headers), cms-object snapshot from the
// upgrade request"), mirroring the original's connect-time
// self.url/self.cms_object.
type Session struct {
	ID  string
	URL string
	CMS rctx.CMS

	conn   Conn
	sendMu sync.Mutex

	closedMu sync.Mutex
	closed   bool
}

func newSession(id string, conn Conn, url string, cms rctx.CMS) *Session {
	return &Session{ID: id, conn: conn, URL: url, CMS: cms}
}

func (s *Session) isClosed() bool {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	return s.closed
}

func (s *Session) markClosed() {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	s.closed = true
}

// SendText no-ops if the socket is already closed rather than raising
// (spec §4.5: "all send operations must no-op when the socket is already
// closed").
func (s *Session) SendText(data []byte) error {
	if s.isClosed() {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// SendBytes sends a binary frame, same no-op-on-closed contract as
// SendText.
func (s *Session) SendBytes(data []byte) error {
	if s.isClosed() {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendJSON marshals v and sends it as a text frame.
func (s *Session) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SendText(data)
}

// Close sends a close frame (best-effort) and closes the underlying
// socket exactly once.
func (s *Session) Close() error {
	if s.isClosed() {
		return nil
	}
	s.markClosed()
	s.sendMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	s.sendMu.Unlock()
	return s.conn.Close()
}

func newSessionID() string {
	return uuid.NewString()
}
