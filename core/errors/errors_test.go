package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, 400, BadRequest("bad").Status())
	assert.Equal(t, 401, Unauthorized("no").Status())
	assert.Equal(t, 403, Forbidden("nope").Status())
	assert.Equal(t, 404, NotFound("gone").Status())
	assert.Equal(t, 500, InternalServerError("oops").Status())
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(cause, "context")
	assert.Equal(t, KindInternalServerError, wrapped.Kind)
	assert.ErrorIs(t, wrapped, cause)
}

func TestAs(t *testing.T) {
	de := NotFound("missing")
	got, ok := As(de)
	assert.True(t, ok)
	assert.Same(t, de, got)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestResolutionError(t *testing.T) {
	cause := errors.New("cannot build")
	de := ResolutionError("db", cause)
	assert.Equal(t, KindInternalServerError, de.Kind)
	assert.Contains(t, de.Error(), "db")
}
