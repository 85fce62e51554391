package corefail

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFatal(t *testing.T) {
	assert.True(t, DecoderUnavailable.Fatal())
	assert.True(t, ConfigInvalid.Fatal())
	assert.True(t, UnsupportedSource.Fatal())
	assert.False(t, Backpressure.Fatal())
	assert.False(t, InferenceTransient.Fatal())
}

func TestError_MessageWithAndWithoutCause(t *testing.T) {
	plain := New("op.do", Backpressure)
	assert.Equal(t, "op.do: backpressure", plain.Error())

	wrapped := Wrap("op.do", InferenceTransient, errors.New("connection reset"))
	assert.Equal(t, "op.do: inference_transient: connection reset", wrapped.Error())
}

func TestIs_MatchesThroughWrapping(t *testing.T) {
	base := New("cascade.run", StageBudgetExceeded)
	wrapped := fmt.Errorf("processing frame 42: %w", base)

	assert.True(t, Is(wrapped, StageBudgetExceeded))
	assert.False(t, Is(wrapped, Backpressure))
	assert.False(t, Is(errors.New("unrelated"), Backpressure))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap("inference.Dial", SourceUnreachable, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}
