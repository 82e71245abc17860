// Package dispatch implements the Routing Dispatcher (spec §4.4): the
// context-type detector, the handler registry keyed by Context variant,
// and the dispatch loop that turns one Message into a Context, selects a
// handler by predicate-chain match, runs it via its Injection Plan, and
// writes the response.
//
// Grounded on commbus/bus.go's Publish/Send/QuerySync single-handler
// dispatch-by-type shape (adapted here from a pub/sub bus into a
// predicate-guarded router) and on coreengine/kernel/services.go's
// Dispatch() "resolve then invoke then wrap result" sequencing.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/gobwas/glob"

	"github.com/dispatchcore/dispatchcore/core/di"
	dcerrors "github.com/dispatchcore/dispatchcore/core/errors"
	"github.com/dispatchcore/dispatchcore/core/logging"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/observability"
	"github.com/dispatchcore/dispatchcore/core/predicate"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

// HandlerFunc is the business-logic callable a Handler invokes once its
// predicate chain matches and its parameters have been resolved. Its
// return value is written through the Context's response helper unless
// the Context has switched to streaming mode (spec §4.4 step 5).
type HandlerFunc func(ctx context.Context, rc *rctx.Context, args map[string]any) (any, error)

// Handler is one registered (Context-variant, predicate-chain, callable,
// injection-plan) tuple (spec §3.7).
type Handler struct {
	Variant message.Variant
	Chain   predicate.Chain
	Params  []di.ParamSpec
	Fn      HandlerFunc

	// plan is the Injection Plan compiled once from Params when the
	// handler is registered (spec §4.2: "once per target"), reused on
	// every dispatch instead of being recompiled per call.
	plan *di.Plan
}

// detectorFunc maps an incoming URL to the Context variant that should
// handle it; ok is false for a URL no configuration recognizes.
type detectorFunc func(url string) (message.Variant, bool)

// Dispatcher owns the handler registry and the context-type detector
// (spec §4.4). One Dispatcher serves one Host.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[message.Variant][]*Handler
	order    []message.Variant // first-registered variant order, for the single-variant fallback

	container *di.Container
	log       logging.Logger

	detector detectorFunc

	// logRequest/logError gate the per-request/per-error log lines emitted
	// by Dispatch/respondError (spec §6.6's log_request/log_error host
	// options). Both default true, matching config.Default().
	logRequest bool
	logError   bool
}

// New returns a Dispatcher with no handlers and no detector; call
// Register for every handler, then one of SetSingleVariant/SetRouterMap/
// BuildAutoDetector before serving traffic.
func New(container *di.Container, log logging.Logger) *Dispatcher {
	return &Dispatcher{
		handlers:   make(map[message.Variant][]*Handler),
		container:  container,
		log:        log,
		logRequest: true,
		logError:   true,
	}
}

// SetRequestLogging configures whether Dispatch emits a per-request log
// line and whether respondError emits a per-error log line (spec §6.6's
// log_request/log_error host options). Called once by the Host after
// parsing its Options.
func (d *Dispatcher) SetRequestLogging(logRequest, logError bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logRequest = logRequest
	d.logError = logError
}

// Register appends a handler to its variant's ordered list (spec §3.7:
// "within a variant, registration order is preserved and is the
// evaluation order for predicate selection").
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.handlers[h.Variant]; !seen {
		d.order = append(d.order, h.Variant)
	}
	hh := h
	if plan, err := di.NewPlan(h.Params); err == nil {
		hh.plan = plan
	}
	d.handlers[h.Variant] = append(d.handlers[h.Variant], &hh)
}

// SetSingleVariant configures the detector to resolve every URL to one
// fixed Context variant (spec §4.4 "user supplies a single context type
// name").
func (d *Dispatcher) SetSingleVariant(v message.Variant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector = func(string) (message.Variant, bool) { return v, true }
}

// SetRouterMap configures the detector from an explicit
// {context-name -> glob patterns} map (spec §4.4 "user supplies a map").
// Each variant's patterns are scanned in the order given; the order in
// which different variants are tried follows Go map iteration and is not
// defined, so a URL matched by patterns of two variants may resolve to
// either. This is the "explicit router map wins" resolution of spec.md
// §9's open question (b).
func (d *Dispatcher) SetRouterMap(routes map[message.Variant][]string) error {
	type routeGlob struct {
		variant message.Variant
		g       glob.Glob
	}
	var compiled []routeGlob
	for variant, patterns := range routes {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return fmt.Errorf("dispatch: invalid glob %q for %s: %w", p, variant, err)
			}
			compiled = append(compiled, routeGlob{variant: variant, g: g})
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector = func(url string) (message.Variant, bool) {
		for _, rg := range compiled {
			if rg.g.Match(url) {
				return rg.variant, true
			}
		}
		return "", false
	}
	return nil
}

// BuildAutoDetector generates the detector by scanning each registered
// handler's chain for a predicate.PatternPredicate (spec §4.4 "otherwise,
// the detector is auto-generated by scanning each handler's URL predicate
// for its pattern"). When exactly one variant is registered, everything
// resolves to it regardless of pattern match.
func (d *Dispatcher) BuildAutoDetector() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.order) == 1 {
		only := d.order[0]
		d.detector = func(string) (message.Variant, bool) { return only, true }
		return
	}

	type patternRoute struct {
		variant  message.Variant
		compiled glob.Glob
	}
	var routes []patternRoute
	for _, variant := range d.order {
		for _, h := range d.handlers[variant] {
			for _, p := range h.Chain {
				pp, ok := p.(predicate.PatternPredicate)
				if !ok {
					continue
				}
				g, err := glob.Compile(globFromRoutePattern(pp.Pattern()), '/')
				if err != nil {
					continue
				}
				routes = append(routes, patternRoute{variant: variant, compiled: g})
			}
		}
	}

	d.detector = func(url string) (message.Variant, bool) {
		for _, r := range routes {
			if r.compiled.Match(url) {
				return r.variant, true
			}
		}
		return "", false
	}
}

// globFromRoutePattern turns a url() pattern's named/greedy segments into
// a glob pattern usable for coarse variant detection (it does not need to
// recover capture names, only to decide whether a URL belongs to a
// variant).
func globFromRoutePattern(pattern string) string {
	out := make([]byte, 0, len(pattern))
	segStart := 0
	flush := func(seg string) {
		if len(seg) > 0 && seg[0] == ':' {
			out = append(out, '*')
			return
		}
		out = append(out, seg...)
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '/' {
			flush(pattern[segStart:i])
			out = append(out, '/')
			segStart = i + 1
		}
	}
	flush(pattern[segStart:])
	return string(out)
}

// DispatchOption customizes one call to Dispatch; currently only used to
// attach a transport's rctx.StreamHook to the freshly built Context.
type DispatchOption func(*rctx.Context)

// WithStreamHook attaches h to the Context this Dispatch call builds,
// enabling spec §4.4.1's streaming transition for transports that
// support it (HTTP only).
func WithStreamHook(h rctx.StreamHook) DispatchOption {
	return func(rc *rctx.Context) { rc.WithStreamHook(h) }
}

// Dispatch runs the full dispatch loop for one Message (spec §4.4 steps
// 1-6). url is the request's path as seen by the detector and by url()
// predicates; cms is the fully assembled cms-object for this request.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *message.Message, cms rctx.CMS, url string, opts ...DispatchOption) {
	d.mu.RLock()
	logRequest := d.logRequest
	d.mu.RUnlock()
	if logRequest {
		d.log.Info("dispatch_request", "variant", string(msg.Variant), "session_id", msg.SessionID, "url", url)
	}

	variant, ok := d.resolveVariant(url)
	if !ok {
		observability.RecordHandlerInvocation("no_handler")
		d.respondError(msg, nil, dcerrors.NotFound("no context variant matches this request"))
		return
	}

	scope := d.container.CreateScope()
	defer scope.ClearScope()

	rc := rctx.New(msg, cms, url, variant, scope)
	for _, opt := range opts {
		opt(rc)
	}

	d.mu.RLock()
	candidates := d.handlers[variant]
	d.mu.RUnlock()

	var matched *Handler
	for _, h := range candidates {
		ok, err := h.Chain.Eval(ctx, rc)
		if err != nil {
			observability.RecordHandlerInvocation("error")
			d.respondError(msg, rc, err)
			return
		}
		if ok {
			matched = h
			break
		}
	}
	if matched == nil {
		observability.RecordHandlerInvocation("no_handler")
		d.respondError(msg, rc, dcerrors.NotFound("no handler matched this request"))
		return
	}

	observability.RecordHandlerInvocation("ok")
	d.invoke(ctx, matched, rc)
}

func (d *Dispatcher) resolveVariant(url string) (message.Variant, bool) {
	d.mu.RLock()
	detector := d.detector
	d.mu.RUnlock()
	if detector == nil {
		return "", false
	}
	return detector(url)
}

func (d *Dispatcher) invoke(ctx context.Context, h *Handler, rc *rctx.Context) {
	c := d.container
	if sc, ok := rc.Scope.(*di.Container); ok {
		c = sc
	}
	args, err := resolveArgs(c, h, rc)
	if err != nil {
		d.respondError(rc.Msg, rc, dcerrors.ResolutionError("handler arguments", err))
		return
	}

	result, err := h.Fn(ctx, rc, args)
	if err != nil {
		d.respondError(rc.Msg, rc, err)
		return
	}

	if rc.IsStreaming() {
		// The handler already wrote its body through the StreamHook; the
		// sink still gets a (nil) reply so listeners blocked on it unblock.
		_ = rc.Drain()
		rc.Msg.Reply(nil)
		return
	}
	rc.Respond(result)
}

// resolveArgs builds the kwargs map an Injection Plan resolves against:
// URL-captured segments (the natural source of a handler's named
// parameters) plus the raw cms-object and Context, available to any
// parameter declared with a Value strategy and no type conversion. It
// reuses h's Plan, compiled once at Register time, rather than
// recompiling it on every dispatch (spec §4.2).
func resolveArgs(c *di.Container, h *Handler, rc *rctx.Context) (map[string]any, error) {
	kwargs := make(map[string]any, len(rc.Segments)+2)
	for k, v := range rc.Segments {
		kwargs[k] = v
	}
	kwargs["cms"] = rc.CMS
	kwargs["context"] = rc
	if h.plan != nil {
		return h.plan.Resolve(c, kwargs)
	}
	return di.ResolveParams(c, h.Params, kwargs)
}

func (d *Dispatcher) respondError(msg *message.Message, rc *rctx.Context, err error) {
	de, ok := dcerrors.As(err)
	if !ok {
		de = dcerrors.InternalServerError(err.Error())
	}

	d.mu.RLock()
	logError := d.logError
	d.mu.RUnlock()
	if logError {
		d.log.Error("dispatch_error", "kind", string(de.Kind), "status", de.Status(), "message", de.Message, "session_id", msg.SessionID)
	}

	if rc != nil {
		rc.RespondError(de)
		return
	}
	msg.Reply(&message.Response{
		Status: de.Status(),
		Body:   map[string]any{"error": string(de.Kind), "message": de.Message},
	})
}
