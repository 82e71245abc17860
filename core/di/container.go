package di

import (
	"fmt"
	"reflect"
	"sync"
)

// shared is the descriptor table and the container-wide (singleton)
// instance caches; every scope created from a root Container shares one
// shared instance, per spec §4.3's "create_scope returns a new container
// that shares the descriptor table with the parent".
type shared struct {
	mu          sync.RWMutex
	descriptors map[reflect.Type][]*Descriptor
	nextSeq     int // next stable registration-order counter, assigned in Register

	singletonMu sync.Mutex
	generics    map[ServiceKey]any // keyed by (base, tag) for generic singletons
}

// Container is a DI container or a scope view over one. Registration
// happens only on the root container before listening starts; after
// startup, descriptor lists are read-only (spec §4.3, §5).
type Container struct {
	sh *shared

	scopedMu  sync.Mutex
	scoped    map[ServiceKey]any
	isRoot    bool
}

// New returns a fresh root Container with no registrations.
func New() *Container {
	return &Container{
		sh: &shared{
			descriptors: make(map[reflect.Type][]*Descriptor),
			generics:    make(map[ServiceKey]any),
		},
		scoped: make(map[ServiceKey]any),
		isRoot: true,
	}
}

// Register appends a Descriptor to the list keyed by its base service
// type (spec §3.1: "the container stores descriptors as an ordered list
// per service key to support multiple implementations").
func (c *Container) Register(d Descriptor) error {
	if !c.isRoot {
		return fmt.Errorf("di: registration only allowed on the root container")
	}
	if d.Key.Base == nil {
		return fmt.Errorf("di: descriptor missing a ServiceKey")
	}
	if d.implCount() > 1 {
		return fmt.Errorf("di: descriptor for %s must set at most one of Build/Factory/Instance", d.Key.Base)
	}
	plan, err := newPlan(d.Params)
	if err != nil {
		return err
	}

	desc := d
	desc.plan = plan
	c.sh.mu.Lock()
	desc.seq = c.sh.nextSeq
	c.sh.nextSeq++
	c.sh.descriptors[d.Key.Base] = append(c.sh.descriptors[d.Key.Base], &desc)
	c.sh.mu.Unlock()
	return nil
}

// Singleton registers a service constructed at most once per container.
func (c *Container) Singleton(key ServiceKey, build BuildFunc, params ...ParamSpec) error {
	return c.Register(Descriptor{Key: key, Lifetime: Singleton, Build: build, Params: params})
}

// Hosted registers a singleton that is eagerly instantiated and started
// at Host startup rather than on first resolution (spec §3.1, §4.3).
func (c *Container) Hosted(key ServiceKey, priority int, build BuildFunc, params ...ParamSpec) error {
	return c.Register(Descriptor{Key: key, Lifetime: Hosted, Priority: priority, Build: build, Params: params})
}

// Scoped registers a service constructed at most once per request scope.
func (c *Container) Scoped(key ServiceKey, build BuildFunc, params ...ParamSpec) error {
	return c.Register(Descriptor{Key: key, Lifetime: Scoped, Build: build, Params: params})
}

// Transient registers a service constructed on every resolution.
func (c *Container) Transient(key ServiceKey, build BuildFunc, params ...ParamSpec) error {
	return c.Register(Descriptor{Key: key, Lifetime: Transient, Build: build, Params: params})
}

// RegisterInstance registers a pre-built singleton instance.
func (c *Container) RegisterInstance(key ServiceKey, instance any) error {
	return c.Register(Descriptor{Key: key, Lifetime: Singleton, Instance: instance})
}

// RegisterFactory registers a factory-closure implementation under the
// given lifetime.
func (c *Container) RegisterFactory(key ServiceKey, lifetime Lifetime, priority int, factory FactoryFunc) error {
	return c.Register(Descriptor{Key: key, Lifetime: lifetime, Priority: priority, Factory: factory})
}

// descriptorsFor returns the ordered descriptor list for a base type
// under the shared (read-only post-startup) table.
func (c *Container) descriptorsFor(base reflect.Type) []*Descriptor {
	c.sh.mu.RLock()
	defer c.sh.mu.RUnlock()
	return c.sh.descriptors[base]
}

// Get resolves key against the first-registered descriptor for its base
// type (spec §4.3.2.c), dispatching on lifetime (spec §4.3.2.d). The key
// parameter is typed any (rather than ServiceKey) so that *Container
// satisfies rctx.Scope without rctx importing this package.
func (c *Container) Get(key any, kwargs map[string]any) (any, error) {
	sk, ok := key.(ServiceKey)
	if !ok {
		return nil, fmt.Errorf("di: Get expects a ServiceKey, got %T", key)
	}
	descs := c.descriptorsFor(sk.Base)
	if len(descs) == 0 {
		return nil, fmt.Errorf("di: no descriptor registered for %s", sk.Base)
	}
	d := descs[0]
	return c.resolve(d, sk.Tag, kwargs)
}

// GetAll resolves every registered implementation of base, in
// registration order, each per its own lifetime (spec §4.3.1, §8
// "Multi-implementation ordering").
func (c *Container) GetAll(base reflect.Type) ([]any, error) {
	descs := c.descriptorsFor(base)
	out := make([]any, 0, len(descs))
	for _, d := range descs {
		v, err := c.resolve(d, "", nil)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Container) resolve(d *Descriptor, tag string, kwargs map[string]any) (any, error) {
	switch d.Lifetime {
	case Transient:
		return c.construct(d, tag, kwargs)

	case Singleton, Hosted:
		if tag == "" {
			// The lock is not held while constructing, so a build that
			// resolves further singletons does not deadlock; if two
			// resolutions race, the first stored instance is returned.
			c.sh.singletonMu.Lock()
			built, inst := d.built, d.instance
			c.sh.singletonMu.Unlock()
			if built {
				return inst, nil
			}
			v, err := c.construct(d, tag, kwargs)
			if err != nil {
				return nil, err
			}
			c.sh.singletonMu.Lock()
			defer c.sh.singletonMu.Unlock()
			if d.built {
				return d.instance, nil
			}
			d.instance, d.built = v, true
			return v, nil
		}
		gk := ServiceKey{Base: d.Key.Base, Tag: tag}
		c.sh.singletonMu.Lock()
		defer c.sh.singletonMu.Unlock()
		if v, ok := c.sh.generics[gk]; ok {
			return v, nil
		}
		v, err := c.construct(d, tag, kwargs)
		if err != nil {
			return nil, err
		}
		c.sh.generics[gk] = v
		return v, nil

	case Scoped:
		sk := ServiceKey{Base: d.Key.Base, Tag: tag}
		c.scopedMu.Lock()
		defer c.scopedMu.Unlock()
		if v, ok := c.scoped[sk]; ok {
			return v, nil
		}
		v, err := c.construct(d, tag, kwargs)
		if err != nil {
			return nil, err
		}
		c.scoped[sk] = v
		return v, nil

	default:
		return nil, fmt.Errorf("di: unknown lifetime %v", d.Lifetime)
	}
}

// construct builds one instance per spec §4.3.3: instance, else factory,
// else the implementation's own (precompiled) Injection Plan against the
// same container.
func (c *Container) construct(d *Descriptor, tag string, kwargs map[string]any) (any, error) {
	if d.Instance != nil {
		return d.Instance, nil
	}
	if d.Factory != nil {
		fkwargs := kwargs
		if tag != "" {
			fkwargs = mergeKwargs(kwargs, map[string]any{"generic_type_args": []string{tag}})
		}
		return d.Factory(c, fkwargs)
	}
	if d.Build != nil {
		args, err := d.plan.resolve(c, kwargs)
		if err != nil {
			return nil, fmt.Errorf("di: resolving %s: %w", d.Key.Base, err)
		}
		return d.Build(args)
	}
	return nil, fmt.Errorf("di: descriptor for %s has no implementation", d.Key.Base)
}

func mergeKwargs(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// CreateScope returns a new container sharing the descriptor table and
// singleton/generic-singleton caches with the parent, but owning its own
// scoped-instance map (spec §4.3's scoping contract). Nested scope
// creation is permitted.
func (c *Container) CreateScope() *Container {
	return &Container{
		sh:     c.sh,
		scoped: make(map[ServiceKey]any),
		isRoot: false,
	}
}

// ClearScope empties this container's scoped-instance map. Scope lifetime
// must strictly enclose the request it serves.
func (c *Container) ClearScope() {
	c.scopedMu.Lock()
	defer c.scopedMu.Unlock()
	c.scoped = make(map[ServiceKey]any)
}

// Close implements rctx.Scope by clearing the scope at end of request.
func (c *Container) Close() { c.ClearScope() }
