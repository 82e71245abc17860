package di

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/dispatchcore/dispatchcore/core/typeutil"
)

// Plan is the pre-compiled per-descriptor parameter-resolution strategy
// (spec §3.2). It is built once, at registration time, from a
// Descriptor's declared Params, and reused for every resolution of that
// Descriptor (the invariant spec §3.2 requires).
type Plan struct {
	params []ParamSpec
}

// newPlan validates a declared parameter list and returns the reusable
// Plan. Validation: Service/ServiceList params must carry a Key; Value
// params default to "pass through unconverted" when ValueKind is zero.
func newPlan(params []ParamSpec) (*Plan, error) {
	for _, p := range params {
		if p.Strategy != StrategyValue && p.Key.Base == nil {
			return nil, fmt.Errorf("di: param %q needs a ServiceKey for strategy %v", p.Name, p.Strategy)
		}
	}
	return &Plan{params: params}, nil
}

// resolve executes the plan against a container and a caller-supplied
// kwargs map, producing the full argument map for the target (spec
// §4.2's execution contract). Errors are returned wrapped with the
// offending parameter name.
func (p *Plan) resolve(c *Container, kwargs map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(p.params))
	for _, spec := range p.params {
		switch spec.Strategy {
		case StrategyValue:
			raw, ok := lookupKwarg(kwargs, spec.Name)
			if !ok {
				// spec §4.2: an unresolved parameter yields no entry; the
				// call site relies on the language default.
				continue
			}
			converted, err := convertValue(raw, spec.ValueKind)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", spec.Name, err)
			}
			args[spec.Name] = converted

		case StrategyService:
			v, err := c.Get(spec.Key, kwargs)
			if err != nil {
				if spec.Optional {
					continue
				}
				return nil, fmt.Errorf("parameter %q: %w", spec.Name, err)
			}
			args[spec.Name] = v

		case StrategyServiceList:
			vs, err := c.GetAll(spec.Key.Base)
			if err != nil {
				if spec.Optional {
					continue
				}
				return nil, fmt.Errorf("parameter %q: %w", spec.Name, err)
			}
			args[spec.Name] = vs
		}
	}
	return args, nil
}

// NewPlan compiles params into a reusable Plan (spec §4.2: "once per
// target"). Exported so callers outside this package that cache a Plan on
// their own registration record (the Routing Dispatcher caching one per
// Handler) can compile once at registration time and call Resolve on every
// invocation instead of recompiling.
func NewPlan(params []ParamSpec) (*Plan, error) {
	return newPlan(params)
}

// Resolve is the exported counterpart to resolve, for callers holding a
// Plan built via NewPlan.
func (p *Plan) Resolve(c *Container, kwargs map[string]any) (map[string]any, error) {
	return p.resolve(c, kwargs)
}

// ResolveParams compiles params into a Plan and resolves it once against
// c and kwargs. Kept for callers with no registration record to cache a
// Plan on; prefer NewPlan+Resolve when the same target is invoked
// repeatedly (spec §4.2's "once per target" invariant).
func ResolveParams(c *Container, params []ParamSpec, kwargs map[string]any) (map[string]any, error) {
	plan, err := newPlan(params)
	if err != nil {
		return nil, err
	}
	return plan.resolve(c, kwargs)
}

func lookupKwarg(kwargs map[string]any, name string) (any, bool) {
	if kwargs == nil {
		return nil, false
	}
	v, ok := kwargs[name]
	return v, ok
}

// convertValue applies spec §4.2's Value-strategy conversion rules:
// integer and float parse the string form; collection parameters accept
// any iterable; scalar-to-collection promotion wraps the scalar.
// Grounded on coreengine/typeutil's SafeInt/SafeFloat64 multi-type
// switches, extended here with the string-parse step those helpers
// intentionally omit (they only coerce already-numeric JSON types).
func convertValue(raw any, kind reflect.Kind) (any, error) {
	switch kind {
	case reflect.Invalid:
		return raw, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if s, ok := raw.(string); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as int: %w", s, err)
			}
			return int(n), nil
		}
		n, ok := typeutil.SafeInt(raw)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to int", raw)
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		if s, ok := raw.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as float: %w", s, err)
			}
			return f, nil
		}
		f, ok := typeutil.SafeFloat64(raw)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to float64", raw)
		}
		return f, nil
	case reflect.Bool:
		if s, ok := raw.(string); ok {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as bool: %w", s, err)
			}
			return b, nil
		}
		b, ok := typeutil.SafeBool(raw)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to bool", raw)
		}
		return b, nil
	case reflect.Slice, reflect.Array:
		return typeutil.PromoteToSlice(raw), nil
	case reflect.String:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil
	default:
		return raw, nil
	}
}
