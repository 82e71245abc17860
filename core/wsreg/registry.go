package wsreg

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dispatchcore/dispatchcore/core/logging"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/observability"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

// Registry owns the session-id->Session and group->session-id-set
// indexes (spec §3.5, §3.6).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	groups   map[string]map[string]struct{}

	heartbeatInterval time.Duration
	log               logging.Logger
	dispatch          DispatchFunc
}

// New returns a Registry that delivers inbound frames to dispatch and
// pings every heartbeatInterval while a session is open.
func New(heartbeatInterval time.Duration, dispatch DispatchFunc, log logging.Logger) *Registry {
	return &Registry{
		sessions:          make(map[string]*Session),
		groups:            make(map[string]map[string]struct{}),
		heartbeatInterval: heartbeatInterval,
		dispatch:          dispatch,
		log:               log,
	}
}

// Accept runs the full session lifecycle (spec §4.5) for one freshly
// upgraded connection: mint an id, register, run the lifecycle task, and
// unregister on return. It blocks until the connection closes. url and cms
// are the upgrade request's URL and cms-object snapshot (spec §3.5),
// captured once and reused by every frame this session dispatches.
func (r *Registry) Accept(ctx context.Context, conn Conn, url string, cms rctx.CMS) {
	id := newSessionID()
	s := newSession(id, conn, url, cms)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	observability.SetActiveSessions(r.Count())

	defer func() {
		r.Remove(id)
		observability.SetActiveSessions(r.Count())
	}()

	r.runLifecycle(ctx, s)
}

// runLifecycle implements spec §4.5's per-session lifecycle task: emit
// CONNECT, start the heartbeat, read frames until closed, emit
// DISCONNECT on exit.
func (r *Registry) runLifecycle(ctx context.Context, s *Session) {
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.dispatch(lctx, &message.Message{
		Variant:   message.VariantWebSocket,
		SessionID: s.ID,
		WSFrame:   message.WSConnect,
	})

	var hbWG sync.WaitGroup
	if r.heartbeatInterval > 0 {
		hbWG.Add(1)
		go func() {
			defer hbWG.Done()
			r.heartbeatLoop(lctx, s)
		}()
	}

	closeCode := 0
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				closeCode = ce.Code
			} else {
				r.dispatch(lctx, &message.Message{
					Variant:   message.VariantWebSocket,
					SessionID: s.ID,
					WSFrame:   message.WSError,
				})
			}
			break
		}

		kind := message.WSBinary
		if mt == websocket.TextMessage {
			kind = message.WSText
		}
		r.dispatch(lctx, &message.Message{
			Variant:   message.VariantWebSocket,
			SessionID: s.ID,
			WSFrame:   kind,
			Payload:   data,
		})
	}

	cancel()
	hbWG.Wait()

	r.dispatch(context.WithoutCancel(ctx), &message.Message{
		Variant:   message.VariantWebSocket,
		SessionID: s.ID,
		WSFrame:   message.WSDisconnect,
		Payload:   closeCodePayload(closeCode),
	})

	_ = s.Close()
}

func closeCodePayload(code int) []byte {
	if code == 0 {
		return nil
	}
	return []byte{byte(code >> 8), byte(code)}
}

func (r *Registry) heartbeatLoop(ctx context.Context, s *Session) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isClosed() {
				return
			}
			s.sendMu.Lock()
			_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(closeGracePeriod))
			s.sendMu.Unlock()
		}
	}
}

// Count returns the number of currently registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Get returns a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes a session from the registry and from every group it
// belonged to.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	for group, members := range r.groups {
		if _, ok := members[id]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(r.groups, group)
			}
		}
	}
}

// AddToGroup creates the group if absent and adds session_id to it;
// returns false if the session is unknown (spec §4.5 "add").
func (r *Registry) AddToGroup(sessionID, group string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]struct{})
		r.groups[group] = members
	}
	members[sessionID] = struct{}{}
	return true
}

// RemoveFromGroup removes session_id from group, deleting the group if
// it becomes empty (spec §4.5 "remove").
func (r *Registry) RemoveFromGroup(sessionID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// GroupSessions returns a snapshot of the sessions currently in group,
// pruning ids whose sessions are gone and deleting the group if it
// becomes empty (spec §4.5 "get_group_sessions").
func (r *Registry) GroupSessions(group string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.groups[group]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(members))
	for id := range members {
		s, ok := r.sessions[id]
		if !ok {
			delete(members, id)
			continue
		}
		out = append(out, s)
	}
	if len(members) == 0 {
		delete(r.groups, group)
	}
	return out
}

// SendToGroup fans a message out to every session in group, best-effort:
// one session's send failure does not abort the rest. Returns the count
// of successful deliveries (spec §4.5 "send_to_group").
func (r *Registry) SendToGroup(group string, data []byte, kind message.WSFrameKind) int {
	sessions := r.GroupSessions(group)
	delivered := 0
	for _, s := range sessions {
		if sendFrame(s, data, kind) == nil {
			delivered++
		}
	}
	observability.RecordGroupBroadcast(group, delivered)
	return delivered
}

// Broadcast fans a message out to every registered session, same
// best-effort contract as SendToGroup.
func (r *Registry) Broadcast(data []byte, kind message.WSFrameKind) int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range sessions {
		if sendFrame(s, data, kind) == nil {
			delivered++
		}
	}
	observability.RecordGroupBroadcast("*", delivered)
	return delivered
}

func sendFrame(s *Session, data []byte, kind message.WSFrameKind) error {
	if kind == message.WSBinary {
		return s.SendBytes(data)
	}
	return s.SendText(data)
}
