package resilience

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
)

type flakyChat struct {
	failures int
	calls    int
}

func (f *flakyChat) Chat(ctx context.Context, _ []llm.Message) (string, error) { return "", nil }

func (f *flakyChat) Generate(_ context.Context, prompt, _ string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errTransient
	}
	return "echo: " + prompt, nil
}

func (f *flakyChat) Name() string { return "flaky" }

func TestWrapChatRetriesTransientErrors(t *testing.T) {
	inner := &flakyChat{failures: 2}
	wrapped := WrapChat(inner, fastRetry(3), nil)

	out, err := wrapped.Generate(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "flaky", wrapped.Name())
	assert.Equal(t, StateClosed, wrapped.CircuitBreaker().State())
}
