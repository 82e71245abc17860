// Package rctx implements the polymorphic Request Context (spec §3.3)
// and the cms-object it carries (spec §6.5).
package rctx

import "github.com/dispatchcore/dispatchcore/core/typeutil"

// CMS is the nested, string-keyed map every Listener assembles and every
// Predicate/handler reads. Canonical top-level keys (spec §6.5):
// "request" (method, full url, raw url, path, query, client ip, request
// id, host, port), "headers", "cookie", "form", "body", "cms" (server
// timestamps). Multi-valued fields become lists, matching
// original_source's context_factory.py.
type CMS map[string]any

// NewCMS returns an empty cms-object with the canonical top-level keys
// pre-populated as empty maps, so predicate/handler code can always index
// into them without a nil check.
func NewCMS() CMS {
	return CMS{
		"request": map[string]any{},
		"headers": map[string]any{},
		"cookie":  map[string]any{},
		"form":    map[string]any{},
		"body":    map[string]any{},
		"cms":     map[string]any{},
	}
}

// Get performs a dotted-path lookup rooted at the cms-object (spec §4.1's
// "dotted-path expression"), e.g. Get("body.user.role").
func (c CMS) Get(path string) (any, bool) {
	return typeutil.GetNestedValue(map[string]any(c), path)
}

// GetString is Get with a string conversion.
func (c CMS) GetString(path string) (string, bool) {
	return typeutil.GetNestedString(map[string]any(c), path)
}
