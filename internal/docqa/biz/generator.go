package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
)

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// SystemPrompt 系统提示词。
	SystemPrompt string
}

// Generator 负责答案与摘要生成。
type Generator struct {
	chat    llm.ChatProvider
	config  *GeneratorConfig
	metrics *metrics.Metrics
}

// NewGenerator 创建生成器实例。
func NewGenerator(chat llm.ChatProvider, config *GeneratorConfig, m *metrics.Metrics) *Generator {
	return &Generator{chat: chat, config: config, metrics: m}
}

// Answer 根据提示生成答案。
func (g *Generator) Answer(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, "answer", prompt)
}

// Summarize 生成文档摘要。
func (g *Generator) Summarize(ctx context.Context, chunks []*model.Chunk) (string, error) {
	prompt, err := BuildSummaryPrompt(chunks)
	if err != nil {
		return "", err
	}
	return g.generate(ctx, "summarize", prompt)
}

func (g *Generator) generate(ctx context.Context, operation, prompt string) (out string, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.generate",
		tracing.String("docqa.operation", operation),
		tracing.String(tracing.AttrProvider, g.chat.Name()))
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	out, err = g.chat.Generate(ctx, prompt, g.config.SystemPrompt)
	g.metrics.RecordLLMCall(operation, time.Since(start), err)
	if err != nil {
		return "", errors.ErrCompletionUnavailable.WithCause(err)
	}
	return strings.TrimSpace(out), nil
}
