package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

// stubEmbedder 按配置返回固定数量的向量。
type stubEmbedder struct {
	drop  int
	dim   int
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	n := len(texts) - s.drop
	out := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		v := make([]float32, s.dim)
		v[0] = float32(i)
		out = append(out, v)
	}
	return out, nil
}

func (s *stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vs, err := s.Embed(ctx, []string{text})
	if err != nil || len(vs) == 0 {
		return nil, err
	}
	return vs[0], nil
}

func (s *stubEmbedder) Name() string { return "stub" }

func TestOrderedEmbedderAcceptsMatchingCount(t *testing.T) {
	e := NewOrderedEmbedder(&stubEmbedder{dim: 4}, 4)

	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "顺序必须与输入一致")
	}
}

func TestOrderedEmbedderRejectsMismatch(t *testing.T) {
	tests := []struct {
		name string
		stub *stubEmbedder
		dim  int
	}{
		{"少返回一个向量", &stubEmbedder{drop: 1, dim: 4}, 4},
		{"维度不一致", &stubEmbedder{dim: 3}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrderedEmbedder(tt.stub, tt.dim).Embed(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrContractViolation)
			assert.False(t, errors.IsRetryable(err))
		})
	}
}

func TestOrderedEmbedderClassifiesTransportErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      *errors.Errno
		retryable bool
	}{
		{"网络错误", fmt.Errorf("dial tcp: connection refused"), errors.ErrEmbeddingUnavailable, true},
		{"服务端错误", &httpclient.StatusError{StatusCode: http.StatusBadGateway}, errors.ErrEmbeddingUnavailable, true},
		{"输入被拒绝", &httpclient.StatusError{StatusCode: http.StatusBadRequest}, errors.ErrEmbeddingRejected, false},
		{"上下文取消", context.Canceled, errors.ErrRequestTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrderedEmbedder(&stubEmbedder{err: tt.err}, 0).Embed(context.Background(), []string{"q"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, stderrors.Is(err, tt.err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestOrderedEmbedderEmptyInput(t *testing.T) {
	stub := &stubEmbedder{dim: 2}
	_, err := NewOrderedEmbedder(stub, 0).Embed(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidParam)
	assert.Zero(t, stub.calls)
}

func TestRegistry(t *testing.T) {
	RegisterEmbeddingProvider("test-embed", func(cfg *Config) (EmbeddingProvider, error) {
		return &stubEmbedder{dim: 1}, nil
	})

	p, err := NewEmbeddingProvider("test-embed", &Config{})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())

	_, err = NewEmbeddingProvider("missing", &Config{})
	assert.Error(t, err)
	_, err = NewChatProvider("missing", &Config{})
	assert.Error(t, err)

	assert.Contains(t, ListProviders(), "test-embed")
}

func TestBuildMessages(t *testing.T) {
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hi"}}, BuildMessages("hi", ""))

	msgs := BuildMessages("hi", "be brief")
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
}
