// Package di implements the dependency-injection container (spec §3.1,
// §4.3): three usable service lifetimes plus the hosted variant,
// multi-implementation ordered descriptor lists, generic-parameterized
// service keys cached by (base type, tag), and the pre-compiled
// per-target Injection Plan (spec §3.2, §4.2).
//
// Go has no runtime access to a compiled function's parameter names, so
// unlike a reflective host language the Injection Plan here is not
// discovered by introspecting an arbitrary callable; it is declared once,
// explicitly, at registration time (spec §9's redesign guidance: "require
// handlers to... resolve dependencies explicitly via container getters;
// or code-generate per-handler resolver functions from registration-time
// declarations" — this package takes the explicit-declaration option).
// The Plan is still analyzed exactly once and reused on every call,
// preserving spec §3.2's invariant.
package di

import "reflect"

// Lifetime is one of the four service lifetimes (spec §3.1).
type Lifetime int

const (
	Singleton Lifetime = iota
	Scoped
	Transient
	Hosted
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	case Hosted:
		return "hosted"
	default:
		return "unknown"
	}
}

// ServiceKey identifies a registered service: a base type identity,
// optionally parameterized by a generic string tag (spec §3.1, §9's
// "model as (base service type, tag) pairs").
type ServiceKey struct {
	Base reflect.Type
	Tag  string
}

// KeyOf builds an untagged ServiceKey for a Go type, e.g.
// KeyOf[Cache]().
func KeyOf[T any]() ServiceKey {
	return ServiceKey{Base: reflect.TypeOf((*T)(nil)).Elem()}
}

// Tagged builds a generic-parameterized ServiceKey, e.g.
// Tagged[Options]("db").
func Tagged[T any](tag string) ServiceKey {
	return ServiceKey{Base: reflect.TypeOf((*T)(nil)).Elem(), Tag: tag}
}

// StrategyKind is one of the three Injection Plan parameter strategies
// (spec §3.2).
type StrategyKind int

const (
	// StrategyValue resolves from caller-supplied named arguments, with
	// scalar/collection type conversion (spec §4.2).
	StrategyValue StrategyKind = iota
	// StrategyService resolves one instance from the container, possibly
	// carrying a generic tag.
	StrategyService
	// StrategyServiceList resolves every registered implementation of a
	// service type, in registration order.
	StrategyServiceList
)

// ParamSpec declares one parameter's resolution strategy, registered once
// per target and reused on every invocation (spec §3.2's Injection Plan).
type ParamSpec struct {
	Name     string
	Strategy StrategyKind

	// Key is used when Strategy is StrategyService or StrategyServiceList;
	// for StrategyServiceList, Key.Base names the element service type.
	Key ServiceKey

	// ValueKind is used when Strategy is StrategyValue: the target
	// scalar/collection kind driving the conversion rules of spec §4.2
	// (string→int/float, scalar→collection promotion). Zero value
	// (reflect.Invalid) means "pass through unconverted".
	ValueKind reflect.Kind

	// Optional marks a parameter that, if unresolved, yields no entry in
	// the built argument map rather than an error (spec §4.2: "a failure
	// to resolve an optional parameter yields no entry").
	Optional bool
}

// BuildFunc constructs an instance from its resolved argument map. Args
// contains one entry per ParamSpec that successfully resolved (missing
// optional parameters are simply absent).
type BuildFunc func(args map[string]any) (any, error)

// FactoryFunc is the "factory closure" implementation form (spec §3.1):
// it receives the container itself (to resolve further dependencies) and
// the caller-supplied kwargs, including "generic_type_args" when the key
// carries a generic tag (spec §4.3.2b).
type FactoryFunc func(c *Container, kwargs map[string]any) (any, error)

// Descriptor is one Service Descriptor (spec §3.1): at most one of
// {Build, Factory, Instance} is set; Hosted implies Singleton-style
// caching plus an eager-start flag, expressed here by Lifetime == Hosted.
type Descriptor struct {
	Key      ServiceKey
	Lifetime Lifetime
	Priority int // ordering hint for hosted startup (spec §3.1, §4.3)

	Params  []ParamSpec
	Build   BuildFunc
	Factory FactoryFunc
	Instance any

	// plan is the Injection Plan compiled once from Params at Register
	// time and reused by every construct call (spec §4.2: "once per
	// target"), never rebuilt per resolution.
	plan *Plan

	// seq is a stable per-descriptor registration counter, assigned once
	// at Register time, used as the same-priority tiebreak for hosted
	// startup ordering (spec §8 "Hosted priority"). It must not be derived
	// from map iteration, which Go does not guarantee an order for.
	seq int

	// instance caches a non-generic singleton/hosted instance. Populated
	// lazily under the shared table's singletonMu.
	instance any
	built    bool
}

func (d *Descriptor) implCount() int {
	n := 0
	if d.Build != nil {
		n++
	}
	if d.Factory != nil {
		n++
	}
	if d.Instance != nil {
		n++
	}
	return n
}
