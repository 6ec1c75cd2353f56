package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, KindTimeout, KindOf(New(KindTimeout, "deadline hit")))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.Equal(t, KindUnknown, KindOf(nil))

	// Classification survives additional wrapping.
	inner := New(KindConflict, "revision moved")
	wrapped := fmt.Errorf("write doc: %w", inner)
	require.Equal(t, KindConflict, KindOf(wrapped))
}

func TestWrapKeepsCauseChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindTransport, cause, "fetch %s", "docs/runbook.md")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "Transport")
	require.Contains(t, err.Error(), "docs/runbook.md")
	require.Contains(t, err.Error(), "connection reset")
}

func TestWrapNilIsNil(t *testing.T) {
	require.Nil(t, Wrap(KindTransport, nil, "noop"))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(New(KindTimeout, "t")))
	require.True(t, IsRetryable(New(KindRateLimited, "r")))
	require.True(t, IsRetryable(New(KindTransport, "x")))

	require.False(t, IsRetryable(New(KindValidation, "v")))
	require.False(t, IsRetryable(New(KindConflict, "c")))
	require.False(t, IsRetryable(New(KindUnsafe, "u")))
	require.False(t, IsRetryable(errors.New("plain")))
}
