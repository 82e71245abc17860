package predicate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcerrors "github.com/dispatchcore/dispatchcore/core/errors"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

func newCtx(method, url string) *rctx.Context {
	cms := rctx.NewCMS()
	cms["request"] = map[string]any{"method": method}
	return rctx.New(&message.Message{}, cms, url, message.VariantHTTPRest, nil)
}

func TestRouteCapture(t *testing.T) {
	rc := newCtx("GET", "/a/42/b/p/q")
	p := URL("/a/:x/b/:*y")
	ok, err := p.Eval(context.Background(), rc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"x": "42", "y": "p/q"}, rc.Segments)
}

func TestURLCaseInsensitive(t *testing.T) {
	rc := newCtx("GET", "/Users/42")
	ok, err := URL("/users/:id").Eval(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", rc.Segments["id"])
}

func TestURLNoMatchWrongLength(t *testing.T) {
	rc := newCtx("GET", "/a/1/2")
	ok, _ := URL("/a/:x").Eval(context.Background(), rc)
	assert.False(t, ok)
}

func TestAndChainShortCircuits(t *testing.T) {
	calledSecond := false
	second := Func(func(context.Context, *rctx.Context) (bool, error) {
		calledSecond = true
		return true, nil
	})
	chain := And(Func(func(context.Context, *rctx.Context) (bool, error) { return false, nil }), second)

	ok, err := chain.Eval(context.Background(), newCtx("GET", "/x"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, calledSecond, "AND chain must short-circuit on first failing predicate")
}

func TestAndChainAllMustPass(t *testing.T) {
	chain := And(
		Func(func(context.Context, *rctx.Context) (bool, error) { return true, nil }),
		Func(func(context.Context, *rctx.Context) (bool, error) { return true, nil }),
	)
	ok, err := chain.Eval(context.Background(), newCtx("GET", "/x"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetShorthand(t *testing.T) {
	rc := newCtx("GET", "/users/7")
	ok, err := Get("/users/:id").Eval(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", rc.Segments["id"])

	rc2 := newCtx("POST", "/users/7")
	ok2, err2 := Get("/users/:id").Eval(context.Background(), rc2)
	require.NoError(t, err2)
	assert.False(t, ok2, "method mismatch must fail the shorthand")
}

func TestEqualAndInList(t *testing.T) {
	cms := rctx.NewCMS()
	cms["body"] = map[string]any{"role": "admin"}
	rc := rctx.New(&message.Message{}, cms, "/x", message.VariantHTTPRest, nil)

	ok, err := Equal("body.role", "admin").Eval(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, ok)

	ok2, err2 := InList("body.role", "user", "admin").Eval(context.Background(), rc)
	require.NoError(t, err2)
	assert.True(t, ok2)

	ok3, _ := InList("body.role", "user", "guest").Eval(context.Background(), rc)
	assert.False(t, ok3)
}

func TestOrCombinator(t *testing.T) {
	rc := newCtx("GET", "/b")
	p := Or(URL("/a"), URL("/b"))
	ok, err := p.Eval(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotCombinator(t *testing.T) {
	rc := newCtx("GET", "/a")
	ok, err := Not(URL("/a")).Eval(context.Background(), rc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredicateErrorShortCircuitsChain(t *testing.T) {
	boom := dcerrors.Unauthorized("nope")
	chain := And(Func(func(context.Context, *rctx.Context) (bool, error) { return false, boom }))
	ok, err := chain.Eval(context.Background(), newCtx("GET", "/x"))
	assert.False(t, ok)
	assert.Equal(t, boom, err)
}
