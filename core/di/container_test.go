package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Cache struct{ id int }

type Greeter interface{ Greet() string }

type englishGreeter struct{}

func (englishGreeter) Greet() string { return "hello" }

type frenchGreeter struct{}

func (frenchGreeter) Greet() string { return "bonjour" }

func TestSingletonUniqueness(t *testing.T) {
	c := New()
	n := 0
	require.NoError(t, c.Singleton(KeyOf[Cache](), func(map[string]any) (any, error) {
		n++
		return &Cache{id: n}, nil
	}))

	a, err := c.Get(KeyOf[Cache](), nil)
	require.NoError(t, err)
	b, err := c.Get(KeyOf[Cache](), nil)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, n, "build func must run exactly once")
}

func TestGenericSingletonCachingByTag(t *testing.T) {
	c := New()
	require.NoError(t, c.Singleton(ServiceKey{Base: KeyOf[Cache]().Base}, func(args map[string]any) (any, error) {
		return &Cache{id: len(args)}, nil
	}))

	a1, err := c.Get(Tagged[Cache]("a"), nil)
	require.NoError(t, err)
	a2, err := c.Get(Tagged[Cache]("a"), nil)
	require.NoError(t, err)
	b, err := c.Get(Tagged[Cache]("b"), nil)
	require.NoError(t, err)

	assert.Same(t, a1, a2, "same tag must resolve to the same cached instance")
	assert.NotSame(t, a1, b, "different tags must not share an instance")
}

func TestScopedInstancesPerScope(t *testing.T) {
	c := New()
	require.NoError(t, c.Scoped(KeyOf[Cache](), func(map[string]any) (any, error) {
		return &Cache{}, nil
	}))

	scope1 := c.CreateScope()
	a1, _ := scope1.Get(KeyOf[Cache](), nil)
	a2, _ := scope1.Get(KeyOf[Cache](), nil)
	assert.Same(t, a1, a2, "same scope must reuse its scoped instance")

	scope2 := c.CreateScope()
	b, _ := scope2.Get(KeyOf[Cache](), nil)
	assert.NotSame(t, a1, b, "different scopes must not share a scoped instance")

	scope1.ClearScope()
	a3, _ := scope1.Get(KeyOf[Cache](), nil)
	assert.NotSame(t, a1, a3, "ClearScope must drop the cached scoped instance")
}

func TestTransientAlwaysConstructs(t *testing.T) {
	c := New()
	n := 0
	require.NoError(t, c.Transient(KeyOf[Cache](), func(map[string]any) (any, error) {
		n++
		return &Cache{id: n}, nil
	}))

	a, _ := c.Get(KeyOf[Cache](), nil)
	b, _ := c.Get(KeyOf[Cache](), nil)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, n)
}

func TestMultiImplementationOrdering(t *testing.T) {
	c := New()
	require.NoError(t, c.Singleton(KeyOf[Greeter](), func(map[string]any) (any, error) {
		return englishGreeter{}, nil
	}))
	require.NoError(t, c.Singleton(KeyOf[Greeter](), func(map[string]any) (any, error) {
		return frenchGreeter{}, nil
	}))

	first, err := c.Get(KeyOf[Greeter](), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", first.(Greeter).Greet(), "Get must resolve the first-registered implementation")

	all, err := c.GetAll(KeyOf[Greeter]().Base)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "hello", all[0].(Greeter).Greet())
	assert.Equal(t, "bonjour", all[1].(Greeter).Greet())
}

func TestPlanInjectsValueAndServiceParams(t *testing.T) {
	c := New()
	require.NoError(t, c.Singleton(KeyOf[Cache](), func(map[string]any) (any, error) {
		return &Cache{id: 99}, nil
	}))

	type Widget struct {
		Name  string
		Cache *Cache
	}

	require.NoError(t, c.Singleton(KeyOf[Widget](), func(args map[string]any) (any, error) {
		return &Widget{Name: args["name"].(string), Cache: args["cache"].(*Cache)}, nil
	}, []ParamSpec{
		{Name: "name", Strategy: StrategyValue},
		{Name: "cache", Strategy: StrategyService, Key: KeyOf[Cache]()},
	}...))

	v, err := c.Get(KeyOf[Widget](), map[string]any{"name": "gizmo"})
	require.NoError(t, err)
	w := v.(*Widget)
	assert.Equal(t, "gizmo", w.Name)
	assert.Equal(t, 99, w.Cache.id)
}

func TestOptionalServiceParamSkipsOnFailure(t *testing.T) {
	c := New()

	type Widget struct{ Cache *Cache }

	require.NoError(t, c.Singleton(KeyOf[Widget](), func(args map[string]any) (any, error) {
		w := &Widget{}
		if v, ok := args["cache"]; ok {
			w.Cache = v.(*Cache)
		}
		return w, nil
	}, ParamSpec{Name: "cache", Strategy: StrategyService, Key: KeyOf[Cache](), Optional: true}))

	v, err := c.Get(KeyOf[Widget](), nil)
	require.NoError(t, err)
	assert.Nil(t, v.(*Widget).Cache)
}

type orderedHosted struct {
	name  string
	order *[]string
}

func (h *orderedHosted) Start(context.Context) error {
	*h.order = append(*h.order, h.name)
	return nil
}

func (h *orderedHosted) Stop(context.Context) error {
	*h.order = append(*h.order, "stop:"+h.name)
	return nil
}

type orderedHostedB struct {
	name  string
	order *[]string
}

func (h *orderedHostedB) Start(context.Context) error {
	*h.order = append(*h.order, h.name)
	return nil
}

// TestHostedPriorityOrderingAcrossDistinctTypes registers several distinct
// base types (not just distinct tags of one type) at the same priority,
// the case the descriptor table spreads across multiple map buckets.
// StartHosted is run repeatedly against the same container: a tiebreak
// derived from map-ranging order would be free to vary run to run, while
// one derived from a stable per-descriptor registration sequence would
// not.
func TestHostedPriorityOrderingAcrossDistinctTypes(t *testing.T) {
	c := New()
	var order []string

	require.NoError(t, c.Hosted(Tagged[orderedHosted]("first"), 0, func(map[string]any) (any, error) {
		return &orderedHosted{name: "first", order: &order}, nil
	}))
	require.NoError(t, c.Hosted(Tagged[orderedHostedB]("second"), 0, func(map[string]any) (any, error) {
		return &orderedHostedB{name: "second", order: &order}, nil
	}))
	require.NoError(t, c.Hosted(Tagged[orderedHosted]("third"), 0, func(map[string]any) (any, error) {
		return &orderedHosted{name: "third", order: &order}, nil
	}))
	require.NoError(t, c.Hosted(Tagged[orderedHostedB]("fourth"), 0, func(map[string]any) (any, error) {
		return &orderedHostedB{name: "fourth", order: &order}, nil
	}))

	want := []string{"first", "second", "third", "fourth"}
	for i := 0; i < 20; i++ {
		order = nil
		_, err := StartHosted(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, want, order, "same-priority start order across distinct base types must be registration order on every run")
	}
}

func TestHostedPriorityOrdering(t *testing.T) {
	c := New()
	var order []string

	require.NoError(t, c.Hosted(Tagged[orderedHosted]("zero-a"), 0, func(map[string]any) (any, error) {
		return &orderedHosted{name: "zero-a", order: &order}, nil
	}))
	require.NoError(t, c.Hosted(Tagged[orderedHosted]("p1"), 5, func(map[string]any) (any, error) {
		return &orderedHosted{name: "p1", order: &order}, nil
	}))
	require.NoError(t, c.Hosted(Tagged[orderedHosted]("zero-b"), 0, func(map[string]any) (any, error) {
		return &orderedHosted{name: "zero-b", order: &order}, nil
	}))
	require.NoError(t, c.Hosted(Tagged[orderedHosted]("p2"), 10, func(map[string]any) (any, error) {
		return &orderedHosted{name: "p2", order: &order}, nil
	}))

	started, err := StartHosted(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1", "zero-a", "zero-b"}, order)

	require.NoError(t, StopHosted(context.Background(), started))
	assert.Equal(t, []string{
		"p2", "p1", "zero-a", "zero-b",
		"stop:zero-b", "stop:zero-a", "stop:p1", "stop:p2",
	}, order)
}
