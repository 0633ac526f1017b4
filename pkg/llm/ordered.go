package llm

import (
	"context"
	stderrors "errors"

	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

// OrderedEmbedder 包装任意 EmbeddingProvider，校验返回向量与输入一一对应。
//
// 数量或维度不一致时返回 ErrContractViolation，不会尝试按位置对齐。
// 供应商传输失败映射为可重试的 ErrEmbeddingUnavailable，供应商拒绝输入映射为 ErrEmbeddingRejected。
type OrderedEmbedder struct {
	provider  EmbeddingProvider
	dimension int
}

// NewOrderedEmbedder 创建校验包装器。dimension 为 0 时不校验维度。
func NewOrderedEmbedder(provider EmbeddingProvider, dimension int) *OrderedEmbedder {
	return &OrderedEmbedder{provider: provider, dimension: dimension}
}

// Embed 批量生成向量。
func (e *OrderedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.ErrInvalidParam.WithMessage("embedding input must not be empty")
	}

	vectors, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil, classifyEmbeddingError(err)
	}

	if len(vectors) != len(texts) {
		return nil, errors.ErrContractViolation.WithMessagef(
			"embedding provider %s returned %d vectors for %d inputs", e.provider.Name(), len(vectors), len(texts))
	}

	for i, v := range vectors {
		if len(v) == 0 {
			return nil, errors.ErrContractViolation.WithMessagef("embedding %d is empty", i)
		}
		if e.dimension > 0 && len(v) != e.dimension {
			return nil, errors.ErrContractViolation.WithMessagef(
				"embedding %d has dimension %d, expected %d", i, len(v), e.dimension)
		}
	}

	return vectors, nil
}

// EmbedSingle 以单元素批次生成查询向量。
func (e *OrderedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Name 返回底层供应商名称。
func (e *OrderedEmbedder) Name() string {
	return e.provider.Name()
}

func classifyEmbeddingError(err error) error {
	var errno *errors.Errno
	if stderrors.As(err, &errno) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrRequestTimeout.WithCause(err)
	}
	if httpclient.IsClientError(err) {
		return errors.ErrEmbeddingRejected.WithCause(err)
	}
	return errors.ErrEmbeddingUnavailable.WithCause(err)
}

var _ EmbeddingProvider = (*OrderedEmbedder)(nil)
