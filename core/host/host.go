// Package host composes the DI container, the Routing Dispatcher, and the
// four transport listeners into one runnable process (spec §4.3 hosted
// startup, §5 concurrency/shutdown model, §6.6 host options).
//
// Grounded on cmd/main.go's (Jeeves-core's own gRPC kernel binary)
// construct -> register -> start -> block-on-signal -> graceful-stop
// bootstrap shape: a Host here plays the role that NewKernel +
// grpc.NewEngineServer + grpc.StartBackground play there, generalized
// from one gRPC server to four heterogeneous listeners that must all
// start together and all stop together.
package host

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dispatchcore/dispatchcore/core/config"
	"github.com/dispatchcore/dispatchcore/core/di"
	"github.com/dispatchcore/dispatchcore/core/dispatch"
	"github.com/dispatchcore/dispatchcore/core/logging"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/wsreg"
	transportamqp "github.com/dispatchcore/dispatchcore/transport/amqp"
	transporthttp "github.com/dispatchcore/dispatchcore/transport/http"
	transporttcp "github.com/dispatchcore/dispatchcore/transport/tcp"
	transportws "github.com/dispatchcore/dispatchcore/transport/websocket"
)

// defaultHeartbeatInterval is the WebSocket ping cadence (spec §4.5 step
// 2); the options map has no key for it, so every Host uses this value.
const defaultHeartbeatInterval = 30 * time.Second

// Host owns one Container, one Dispatcher, and every transport listener
// built from the parsed Options. Registration (handlers, services) must
// happen before Start; after Start the descriptor table is read-only
// (spec §4.3, §5).
type Host struct {
	Container  *di.Container
	Dispatcher *dispatch.Dispatcher

	opts *config.Options
	log  logging.Logger

	wsListener    *transportws.Listener
	httpListener  *transporthttp.Listener
	tcpListener   *transporttcp.Listener
	amqpListeners []*transportamqp.Listener

	started  []any // hosted instances, in start order, for StopHosted
	wg       sync.WaitGroup
	runErrMu sync.Mutex
	runErr   error
}

// New builds a Host from a raw options map (spec §6.6). The Container and
// Dispatcher are ready for handler/service registration immediately;
// listeners are constructed here but not started until Start is called.
// New returns an error if any configured AMQP listener's queue/exchange
// option is ambiguous (spec §6.4: exactly one of the two is required).
func New(raw map[string]any, log logging.Logger) (*Host, error) {
	opts := config.FromMap(raw)
	config.Set(opts)

	container := di.New()
	d := dispatch.New(container, log)
	d.SetRequestLogging(opts.LogRequest, opts.LogError)

	h := &Host{
		Container:  container,
		Dispatcher: d,
		opts:       opts,
		log:        log,
	}

	heartbeat := defaultHeartbeatInterval
	h.wsListener = transportws.New(d, log, heartbeat)
	h.httpListener = transporthttp.New(d, log, h.wsListener.Upgrade)
	h.tcpListener = transporttcp.New(d, log)
	for _, r := range opts.Rabbit {
		l, err := transportamqp.New(r, d, log)
		if err != nil {
			return nil, fmt.Errorf("host: %w", err)
		}
		h.amqpListeners = append(h.amqpListeners, l)
	}

	return h, nil
}

// WebSocketRegistry exposes the session registry so application code can
// register it in the container (e.g. for broadcast-capable handlers) or
// reach it directly during setup.
func (h *Host) WebSocketRegistry() *wsreg.Registry {
	return h.wsListener.Registry()
}

// ConfigureRouter wires the Dispatcher's context-type detector from the
// parsed Router option (spec §4.4, §9 open question (b)): an explicit map
// wins over auto-detection; a single string configures a fixed variant.
func (h *Host) ConfigureRouter() error {
	switch r := h.opts.Router.(type) {
	case nil:
		h.Dispatcher.BuildAutoDetector()
		return nil
	case string:
		h.Dispatcher.SetSingleVariant(message.Variant(r))
		return nil
	case map[string][]string:
		routes := make(map[message.Variant][]string, len(r))
		for k, v := range r {
			routes[message.Variant(k)] = v
		}
		return h.Dispatcher.SetRouterMap(routes)
	case map[string]any:
		routes := make(map[message.Variant][]string, len(r))
		for k, v := range r {
			patterns, ok := v.([]string)
			if !ok {
				if items, ok := v.([]any); ok {
					for _, it := range items {
						if s, ok := it.(string); ok {
							patterns = append(patterns, s)
						}
					}
				}
			}
			routes[message.Variant(k)] = patterns
		}
		return h.Dispatcher.SetRouterMap(routes)
	default:
		return fmt.Errorf("host: unrecognized router option type %T", h.opts.Router)
	}
}

// Start brings the Host fully up (spec §5): hosted services first, in
// priority order, then every configured listener concurrently. It
// returns once every listener has been launched; listener failures after
// that point are reported through Wait.
func (h *Host) Start(ctx context.Context) error {
	started, err := di.StartHosted(ctx, h.Container)
	if err != nil {
		return fmt.Errorf("host: starting hosted services: %w", err)
	}
	h.started = started

	for _, addr := range h.opts.HTTPAddrs {
		addr := addr
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.httpListener.ListenAndServe(ctx, addr, h.opts.SSL); err != nil {
				h.recordErr(fmt.Errorf("http listener %s: %w", addr, err))
			}
		}()
		h.log.Info("http_listener_started", "addr", addr)
	}

	for _, addr := range h.opts.TCPAddrs {
		addr := addr
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.tcpListener.ListenAndServe(ctx, addr); err != nil {
				h.recordErr(fmt.Errorf("tcp listener %s: %w", addr, err))
			}
		}()
		h.log.Info("tcp_listener_started", "addr", addr)
	}

	for _, l := range h.amqpListeners {
		l := l
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := l.Run(ctx); err != nil {
				h.recordErr(fmt.Errorf("amqp listener: %w", err))
			}
		}()
	}
	if len(h.amqpListeners) > 0 {
		h.log.Info("amqp_listeners_started", "count", len(h.amqpListeners))
	}

	return nil
}

// Wait blocks until every listener goroutine has returned (normally
// because ctx was canceled) and returns the first listener error
// encountered, if any.
func (h *Host) Wait() error {
	h.wg.Wait()
	h.runErrMu.Lock()
	defer h.runErrMu.Unlock()
	return h.runErr
}

// Stop performs the graceful-shutdown half of spec §5: listener
// goroutines are expected to already be unwinding (the caller canceled
// the context passed to Start), so Stop waits for them and then stops
// hosted services in the reverse of their start order.
func (h *Host) Stop(ctx context.Context) error {
	h.wg.Wait()
	return di.StopHosted(ctx, h.started)
}

func (h *Host) recordErr(err error) {
	h.log.Error("listener_failed", "error", err)
	h.runErrMu.Lock()
	defer h.runErrMu.Unlock()
	if h.runErr == nil {
		h.runErr = err
	}
}

// MetricsHandler returns the Prometheus /metrics http.Handler so an
// embedding program can mount it next to its own routes; it exposes the
// same registry core/observability's metrics are recorded against.
func MetricsHandler() http.Handler {
	return transporthttp.MetricsHandler()
}
