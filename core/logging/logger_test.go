package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindReturnsNewLogger(t *testing.T) {
	base := New(slog.LevelInfo)
	bound := base.Bind("request_id", "abc")
	assert.NotSame(t, base, bound)
}

func TestContextRoundTrip(t *testing.T) {
	l := Noop()
	ctx := Into(context.Background(), l)
	assert.Equal(t, l, From(ctx))
	assert.NotNil(t, From(context.Background()))
}
