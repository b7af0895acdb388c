package herr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	t.Parallel()

	base := NewOutOfRange(100, 50)
	wrapped := fmt.Errorf("recording failed: %w", base)

	assert.True(t, Is(wrapped, OutOfRange))
	assert.False(t, Is(wrapped, FormatError))
}

func TestWithHintChainsOntoError(t *testing.T) {
	t.Parallel()

	err := NewFormatError("bad cookie %x", 0)
	hinted := WithHint(err, "truncated file?")

	var typed *Error
	require.True(t, errors.As(hinted, &typed))
	assert.Equal(t, "truncated file?", typed.Hint())
	assert.Contains(t, hinted.Error(), "truncated file?")
}

func TestWithHintOnNonErextErrorIsNoop(t *testing.T) {
	t.Parallel()
	plain := errors.New("plain")
	assert.Equal(t, plain, WithHint(plain, "ignored"))
}

func TestIoErrorUnwrapsCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("disk full")
	err := NewIoError(cause)
	assert.ErrorIs(t, err, cause)
}
