// Package websocket implements the WebSocket half of the HTTP listener's
// upgrade contract (spec §4.6: "same HTTP endpoint; when the request
// negotiates an upgrade, delegates to the Session Registry").
package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dispatchcore/dispatchcore/core/dispatch"
	"github.com/dispatchcore/dispatchcore/core/logging"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/rctx"
	"github.com/dispatchcore/dispatchcore/core/wsreg"
	transporthttp "github.com/dispatchcore/dispatchcore/transport/http"
)

// Listener upgrades negotiating HTTP requests and hands the resulting
// connection to a wsreg.Registry for the rest of its lifetime.
type Listener struct {
	upgrader   websocket.Upgrader
	registry   *wsreg.Registry
	dispatcher *dispatch.Dispatcher
	log        logging.Logger
}

// New builds a Listener backed by registry, dispatching inbound frames
// to d. heartbeatInterval configures the registry's ping cadence (spec
// §4.5 step 2).
func New(d *dispatch.Dispatcher, log logging.Logger, heartbeatInterval time.Duration) *Listener {
	l := &Listener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		dispatcher: d,
		log:        log,
	}
	l.registry = wsreg.New(heartbeatInterval, l.deliver, log)
	return l
}

// Registry exposes the session registry for group/broadcast operations
// invoked from handlers via the DI container.
func (l *Listener) Registry() *wsreg.Registry { return l.registry }

// Upgrade satisfies transport/http.UpgradeHandler: it completes the
// WebSocket handshake and runs the session's full lifecycle, blocking
// until the connection closes (spec §4.5 steps 1-5). The upgrade
// request's URL and cms-object snapshot are captured once here and
// carried by the Session for the rest of its lifetime (spec §3.5), the
// same way the original captures self.url/self.cms_object at connect
// time instead of re-deriving them per frame.
func (l *Listener) Upgrade(w http.ResponseWriter, r *http.Request) {
	url := r.URL.String()
	cms, err := transporthttp.BuildCMS(r)
	if err != nil {
		l.log.Warn("websocket upgrade cms snapshot failed", "error", err)
		return
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	l.registry.Accept(r.Context(), conn, url, cms)
}

// deliver wraps one Session-lifecycle frame as a dispatch Message and
// hands it to the Dispatcher. WebSocket messages have no response sink
// (spec §3.4): the handler replies, if at all, through the Session
// itself (obtained from the DI container / registry by session id). The
// dispatch URL is the session's connect-time URL (spec §3.5), not a
// synthetic path derived from the frame kind: every endpoint a client
// upgraded on stays routable for every frame of that session's
// lifetime, matching the original's WebSocketMessage.cms_object/url
// always resolving back to the owning session's connect-time snapshot.
func (l *Listener) deliver(ctx context.Context, msg *message.Message) {
	s, ok := l.registry.Get(msg.SessionID)

	url := "/ws/" + string(msg.WSFrame)
	var cms rctx.CMS
	if ok && s.URL != "" {
		url = s.URL
	}
	if ok && s.CMS != nil {
		cms = cloneCMSWithFrame(s.CMS, msg)
	} else {
		cms = rctx.NewCMS()
	}

	reqInfo := cms["request"].(map[string]any)
	reqInfo["method"] = "WEBSOCKET"
	reqInfo["session_id"] = msg.SessionID
	reqInfo["frame"] = string(msg.WSFrame)

	l.dispatcher.Dispatch(ctx, msg, cms, url)
}

// cloneCMSWithFrame shallow-copies a session's stored cms-object snapshot
// and its "request" sub-map so that per-frame overlay fields (session_id,
// frame, method) never mutate the snapshot shared across every frame of
// that session (spec §3.5).
func cloneCMSWithFrame(src rctx.CMS, msg *message.Message) rctx.CMS {
	out := make(rctx.CMS, len(src))
	for k, v := range src {
		out[k] = v
	}
	reqInfo := make(map[string]any)
	if orig, ok := src["request"].(map[string]any); ok {
		for k, v := range orig {
			reqInfo[k] = v
		}
	}
	out["request"] = reqInfo
	return out
}
