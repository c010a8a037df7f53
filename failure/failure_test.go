package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_ContextErrorsAbort(t *testing.T) {
	err := Wrap(Internal, context.DeadlineExceeded, "commit")
	assert.Equal(t, Aborted, err.Kind)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	err = Wrap(Internal, fmt.Errorf("load: %w", context.Canceled), "load")
	assert.Equal(t, Aborted, err.Kind)
}

func TestFromAndKindOf(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.Equal(t, Kind(""), KindOf(nil))

	foreign := errors.New("boom")
	assert.Equal(t, Internal, KindOf(foreign))
	assert.True(t, errors.Is(From(foreign), foreign))

	wrapped := fmt.Errorf("ctx: %w", New(NotFound, "asset '%v' not found", "AAA"))
	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.Equal(t, "asset 'AAA' not found", From(wrapped).Message)
	assert.True(t, errors.Is(wrapped, New(NotFound, "")))
	assert.False(t, errors.Is(wrapped, New(Unauthorized, "")))
}
