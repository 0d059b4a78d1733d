package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(NotFound, "backup not found")
	assert.Equal(t, "NOT_FOUND: backup not found", err.Error())
}

func TestWithPath(t *testing.T) {
	err := New(ConfigValidationError, "unrecognized top-level key").WithPath("proxies")
	assert.Equal(t, "CONFIG_VALIDATION_ERROR: unrecognized top-level key (proxies)", err.Error())
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Internal, "lock acquire failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	err := New(BadRequest, "duplicate tag")
	assert.Equal(t, BadRequest, CodeOf(err))

	wrapped := fmt.Errorf("writing config: %w", err)
	assert.Equal(t, BadRequest, CodeOf(wrapped))

	assert.Equal(t, Internal, CodeOf(errors.New("plain error")))
}

func TestIs(t *testing.T) {
	err := New(SingboxValidationError, "unknown inbound type: bogus")
	assert.True(t, Is(err, SingboxValidationError))
	assert.False(t, Is(err, ProcessError))
}
