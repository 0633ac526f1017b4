package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// ExpansionKeyPrefix prefixes the keys of an expansion set: translation_0, translation_1, ...
const ExpansionKeyPrefix = "translation_"

const expansionSystemPrompt = "You rewrite search queries. Reply with a JSON array of strings and nothing else."

// ExpanderConfig 查询改写配置。
type ExpanderConfig struct {
	// Count 期望的改写数量。
	Count int
}

// Expander 使用 Chat 模型生成查询的多种表述。
type Expander struct {
	chat    llm.ChatProvider
	config  *ExpanderConfig
	metrics *metrics.Metrics
}

// NewExpander 创建查询改写器。
func NewExpander(chat llm.ChatProvider, config *ExpanderConfig, m *metrics.Metrics) *Expander {
	if config == nil || config.Count <= 0 {
		config = &ExpanderConfig{Count: 3}
	}
	return &Expander{chat: chat, config: config, metrics: m}
}

type expansionPayload struct {
	Task      string `json:"task"`
	Count     int    `json:"count"`
	UserQuery string `json:"user_query"`
	Format    string `json:"format"`
}

// Expand 返回 translation_i 到改写文本的映射。
// 模型输出无法解析为字符串数组时返回 ErrExpansionMalformed。
func (e *Expander) Expand(ctx context.Context, query string) (expansions map[string]string, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.expand",
		tracing.String(tracing.AttrProvider, e.chat.Name()))
	defer func() { tracing.End(span, err) }()

	prompt, err := json.MarshalStrict(expansionPayload{
		Task: fmt.Sprintf("Rewrite user_query in %d different ways that preserve its meaning, "+
			"to improve retrieval of relevant document passages.", e.config.Count),
		Count:     e.config.Count,
		UserQuery: query,
		Format:    fmt.Sprintf("A JSON array of exactly %d strings. No prose, no code fences, no keys.", e.config.Count),
	})
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}

	start := time.Now()
	output, err := e.chat.Generate(ctx, string(prompt), expansionSystemPrompt)
	e.metrics.RecordLLMCall("expand", time.Since(start), err)
	if err != nil {
		return nil, errors.ErrCompletionUnavailable.WithCause(err)
	}

	phrasings, err := textutil.ParseStringArray(output)
	if err != nil {
		return nil, errors.ErrExpansionMalformed.WithCause(err)
	}

	expansions = make(map[string]string, e.config.Count)
	for _, p := range phrasings {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(expansions) == e.config.Count {
			break
		}
		expansions[fmt.Sprintf("%s%d", ExpansionKeyPrefix, len(expansions))] = p
	}
	if len(expansions) == 0 {
		return nil, errors.ErrExpansionMalformed.WithMessage("query expansion returned no phrasings")
	}
	if len(expansions) < e.config.Count {
		logger.Debugw("query expansion returned fewer phrasings than requested",
			"requested", e.config.Count,
			"received", len(expansions),
		)
	}
	return expansions, nil
}

// OrderedExpansions returns the phrasings of an expansion set ordered by index.
func OrderedExpansions(expansions map[string]string) []string {
	out := make([]string, 0, len(expansions))
	for i := 0; len(out) < len(expansions); i++ {
		v, ok := expansions[fmt.Sprintf("%s%d", ExpansionKeyPrefix, i)]
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}
