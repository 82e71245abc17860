// Package predicate implements the composable boolean tests over a
// Request Context that the Routing Dispatcher uses to select a handler
// (spec §4.1). Within one handler's chain, predicates are AND-joined and
// a failing predicate short-circuits; across handlers of the same
// Context variant, the first fully-matching chain wins (spec §4.4).
package predicate

import (
	"context"
	"strings"

	dcerrors "github.com/dispatchcore/dispatchcore/core/errors"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

// Predicate evaluates a Context and reports match/no-match. Evaluation
// may be synchronous or asynchronous (both satisfy this single
// interface); a returned *dcerrors.DispatchError short-circuits the
// request, not just the chain (spec §7: "errors raised inside predicates
// short-circuit the chain and are surfaced as the final response").
// Predicate evaluation must never mutate cross-request state; it may
// only write URL captures into the live Context (spec §4.1).
type Predicate interface {
	Eval(ctx context.Context, rc *rctx.Context) (bool, error)
}

// Func adapts a plain function to Predicate.
type Func func(ctx context.Context, rc *rctx.Context) (bool, error)

func (f Func) Eval(ctx context.Context, rc *rctx.Context) (bool, error) { return f(ctx, rc) }

// Chain is an ordered, AND-joined sequence of predicates: a handler's
// full guard condition.
type Chain []Predicate

// Eval runs every predicate in order, short-circuiting on the first
// false result or error.
func (c Chain) Eval(ctx context.Context, rc *rctx.Context) (bool, error) {
	for _, p := range c {
		ok, err := p.Eval(ctx, rc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// And builds a Chain from individual predicates; sugar for constructing a
// handler's guard inline.
func And(preds ...Predicate) Chain { return Chain(preds) }

// Or is a supplemental combinator (see SPEC_FULL.md "Module A") letting
// one chain express alternation instead of duplicate handler
// registrations. It is pure boolean sugar over the Predicate contract,
// not new dispatch semantics.
func Or(preds ...Predicate) Predicate {
	return Func(func(ctx context.Context, rc *rctx.Context) (bool, error) {
		for _, p := range preds {
			ok, err := p.Eval(ctx, rc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not negates a predicate. Errors propagate unchanged (a short-circuiting
// error is not something Not can "negate away").
func Not(p Predicate) Predicate {
	return Func(func(ctx context.Context, rc *rctx.Context) (bool, error) {
		ok, err := p.Eval(ctx, rc)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}

// Callback adapts an arbitrary sync or async predicate function (spec
// §4.1 "callback(fn)").
func Callback(fn func(ctx context.Context, rc *rctx.Context) (bool, error)) Predicate {
	return Func(fn)
}

// PatternPredicate is implemented by predicates that carry a literal URL
// pattern (currently only URL()), letting the Routing Dispatcher's
// auto-scan context-type detector (spec §4.4) recover route patterns from
// a registered handler's chain without reflecting over closures.
type PatternPredicate interface {
	Pattern() string
}

type urlPredicate struct {
	pattern  string
	compiled compiledPattern
}

// Pattern returns the literal pattern this predicate was built from.
func (u *urlPredicate) Pattern() string { return u.pattern }

// Eval matches rc.URL case-insensitively, writing captured segments into
// rc.Segments on success.
func (u *urlPredicate) Eval(_ context.Context, rc *rctx.Context) (bool, error) {
	captures, ok := u.compiled.match(rc.URL)
	if !ok {
		return false, nil
	}
	for k, v := range captures {
		rc.Segments[k] = v
	}
	return true, nil
}

// URL matches pattern (spec §4.1, §6.2) against rc.URL case-insensitively.
// On match it writes captured segments into rc.Segments.
func URL(pattern string) Predicate {
	return &urlPredicate{pattern: pattern, compiled: compilePattern(pattern)}
}

// Equal evaluates a dotted-path expression against the Context's
// cms-object (falling back to the small method/url header for the few
// non-body paths, per SPEC_FULL.md's original_source-grounded supplement)
// and compares it to value.
func Equal(expr string, value any) Predicate {
	return Func(func(_ context.Context, rc *rctx.Context) (bool, error) {
		actual, ok := resolveExpr(rc, expr)
		if !ok {
			return false, nil
		}
		return actual == value, nil
	})
}

// InList evaluates expr and reports whether the resulting value is one of
// values.
func InList(expr string, values ...any) Predicate {
	return Func(func(_ context.Context, rc *rctx.Context) (bool, error) {
		actual, ok := resolveExpr(rc, expr)
		if !ok {
			return false, nil
		}
		for _, v := range values {
			if actual == v {
				return true, nil
			}
		}
		return false, nil
	})
}

// resolveExpr roots a dotted-path lookup at the cms-object, falling back
// to method/url header fields for paths not present in the body.
func resolveExpr(rc *rctx.Context, expr string) (any, bool) {
	if v, ok := rc.CMS.Get(expr); ok {
		return v, true
	}
	switch expr {
	case "method":
		if m, ok := rc.CMS.Get("request.method"); ok {
			return m, true
		}
	case "url":
		return rc.URL, true
	}
	return nil, false
}

// methodEqual matches the cms-object's request method case-insensitively.
func methodEqual(method string) Predicate {
	return Func(func(_ context.Context, rc *rctx.Context) (bool, error) {
		actual, ok := rc.CMS.GetString("request.method")
		if !ok {
			return false, nil
		}
		return strings.EqualFold(actual, method), nil
	})
}

// methodAndURL is the "shorthand for (method-equal AND url)" contract of
// spec §4.1.
func methodAndURL(method, pattern string) Predicate {
	return And(methodEqual(method), URL(pattern))
}

func Get(pattern string) Predicate     { return methodAndURL("GET", pattern) }
func Post(pattern string) Predicate    { return methodAndURL("POST", pattern) }
func Put(pattern string) Predicate     { return methodAndURL("PUT", pattern) }
func Delete(pattern string) Predicate  { return methodAndURL("DELETE", pattern) }
func Patch(pattern string) Predicate   { return methodAndURL("PATCH", pattern) }
func Head(pattern string) Predicate    { return methodAndURL("HEAD", pattern) }
func Options(pattern string) Predicate { return methodAndURL("OPTIONS", pattern) }

// Deny is a convenience predicate that always short-circuits with the
// given DispatchError; useful inside Callback-built authorization guards.
func Deny(err *dcerrors.DispatchError) Predicate {
	return Func(func(context.Context, *rctx.Context) (bool, error) {
		return false, err
	})
}
