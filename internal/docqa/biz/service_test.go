package biz

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

type decodedAnswerPrompt struct {
	UserQuery      string `json:"user_query"`
	DocumentChunks []struct {
		Label      string `json:"label"`
		DocumentID string `json:"document_id"`
		Text       string `json:"text"`
	} `json:"document_chunks"`
	RelatedPhrasings []string `json:"related_phrasings"`
	Instructions     []string `json:"instructions"`
}

func decodeAnswerPrompt(t *testing.T, prompt string) decodedAnswerPrompt {
	t.Helper()
	var p decodedAnswerPrompt
	require.NoError(t, json.Unmarshal([]byte(prompt), &p))
	return p
}

func seedNumbered(t *testing.T, env *testEnv) {
	env.seedChunks(t, "doc_n", []*model.Chunk{
		{DocumentID: "doc_n", Seq: 0, Content: "three", VectorID: "3"},
		{DocumentID: "doc_n", Seq: 1, Content: "seven", VectorID: "7"},
		{DocumentID: "doc_n", Seq: 2, Content: "nine", VectorID: "9"},
	})
}

func TestAnswerQueryOrdersChunksByDistance(t *testing.T) {
	env := newTestEnv(t, nil)
	env.meta.shuffle = true
	seedNumbered(t, env)
	env.vectors.hits = []store.Hit{
		{VectorID: "7", DocumentID: "doc_n", Distance: 0.12},
		{VectorID: "3", DocumentID: "doc_n", Distance: 0.35},
		{VectorID: "9", DocumentID: "doc_n", Distance: 0.80},
	}

	result, err := env.service.AnswerQuery(context.Background(), "which numbers?")
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", result.Answer)
	assert.False(t, result.Cached)

	require.Len(t, result.Sources, 3)
	assert.Equal(t, "7", result.Sources[0].VectorID)
	assert.Equal(t, "3", result.Sources[1].VectorID)
	assert.Equal(t, "9", result.Sources[2].VectorID)

	prompts := env.chat.answerPrompts()
	require.Len(t, prompts, 1)
	p := decodeAnswerPrompt(t, prompts[0])
	assert.Equal(t, "which numbers?", p.UserQuery)
	require.Len(t, p.DocumentChunks, 3)
	assert.Equal(t, "seven", p.DocumentChunks[0].Text)
	assert.Equal(t, "chunk_1", p.DocumentChunks[0].Label)
	assert.Equal(t, "three", p.DocumentChunks[1].Text)
	assert.Equal(t, "nine", p.DocumentChunks[2].Text)
	assert.Equal(t, "doc_n", p.DocumentChunks[2].DocumentID)
	assert.Equal(t, 1, env.vectors.activations, "检索前加载集合")
}

func TestAnswerQueryZeroHits(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.service.AnswerQuery(context.Background(), "anything")
	require.NoError(t, err, "没有命中不是错误")
	assert.Equal(t, NotFoundPhrase, result.Answer)
	assert.Empty(t, result.Sources)
	assert.Empty(t, env.chat.answerPrompts())
}

func TestAnswerQueryDropsOrphanHits(t *testing.T) {
	env := newTestEnv(t, nil)
	seedNumbered(t, env)
	env.vectors.hits = []store.Hit{
		{VectorID: "ghost", Distance: 0.01},
		{VectorID: "9", Distance: 0.2},
	}

	result, err := env.service.AnswerQuery(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "9", result.Sources[0].VectorID)
}

func TestAnswerQueryOnlyOrphanHits(t *testing.T) {
	env := newTestEnv(t, nil)
	env.vectors.hits = []store.Hit{{VectorID: "ghost", Distance: 0.01}}

	result, err := env.service.AnswerQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, NotFoundPhrase, result.Answer)
}

func TestAnswerQueryEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.service.AnswerQuery(context.Background(), "   ")
	assert.ErrorIs(t, err, errors.ErrEmptyQuery)
}

func TestAnswerQueryWithExpansions(t *testing.T) {
	env := newTestEnv(t, func(cfg *ServiceConfig) { cfg.Expansion = true })
	seedNumbered(t, env)
	env.vectors.hits = []store.Hit{{VectorID: "3", Distance: 0.1}}

	result, err := env.service.AnswerQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"translation_0": "p0",
		"translation_1": "p1",
		"translation_2": "p2",
	}, result.Expansions)

	p := decodeAnswerPrompt(t, env.chat.answerPrompts()[0])
	assert.Equal(t, []string{"p0", "p1", "p2"}, p.RelatedPhrasings)
	// 未开启融合时只检索原始查询
	assert.Equal(t, []string{"q"}, env.embedder.texts[len(env.embedder.texts)-1])
}

func TestAnswerQueryExpansionFuse(t *testing.T) {
	env := newTestEnv(t, func(cfg *ServiceConfig) {
		cfg.Expansion = true
		cfg.ExpansionFuse = true
	})
	seedNumbered(t, env)
	env.vectors.hits = []store.Hit{{VectorID: "3", Distance: 0.1}}

	result, err := env.service.AnswerQuery(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, result.Sources, 1, "多路检索结果去重")
	assert.Equal(t, []string{"q", "p0", "p1", "p2"}, env.embedder.texts[len(env.embedder.texts)-1])
}

func TestAnswerQueryExpansionDegrades(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
	}{
		{"非严格模式退化为原始查询", false},
		{"严格模式返回错误", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *ServiceConfig) {
				cfg.Expansion = true
				cfg.ExpansionStrict = tt.strict
			})
			env.chat.expansion = "1. first\n2. second"
			seedNumbered(t, env)
			env.vectors.hits = []store.Hit{{VectorID: "3", Distance: 0.1}}

			result, err := env.service.AnswerQuery(context.Background(), "q")
			if tt.strict {
				assert.ErrorIs(t, err, errors.ErrExpansionMalformed)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, result.Expansions)
			assert.Equal(t, "grounded answer", result.Answer)
		})
	}
}

func TestAnswerQueryCompletionUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	seedNumbered(t, env)
	env.vectors.hits = []store.Hit{{VectorID: "3", Distance: 0.1}}
	cause := stderrors.New("503 from provider")
	env.chat.err = cause

	_, err := env.service.AnswerQuery(context.Background(), "q")
	assert.ErrorIs(t, err, errors.ErrCompletionUnavailable)
	assert.ErrorIs(t, err, cause, "保留原始错误")
}

func TestSummarizeDocumentOrdersChunks(t *testing.T) {
	env := newTestEnv(t, nil)
	env.chat.answer = "summary"
	// 乱序写入
	env.seedChunks(t, "doc_s", []*model.Chunk{
		{DocumentID: "doc_s", Seq: 2, Content: "C", VectorID: "s2"},
		{DocumentID: "doc_s", Seq: 0, Content: "A", VectorID: "s0"},
		{DocumentID: "doc_s", Seq: 1, Content: "B", VectorID: "s1"},
	})

	result, err := env.service.SummarizeDocument(context.Background(), "doc_s")
	require.NoError(t, err)
	assert.Equal(t, "summary", result.Summary)
	assert.Equal(t, "doc_s", result.DocumentID)

	var p struct {
		Document string `json:"document"`
	}
	require.NoError(t, json.Unmarshal([]byte(env.chat.answerPrompts()[0]), &p))
	assert.Equal(t, "A\n\nB\n\nC", p.Document)
}

func TestSummarizeDocumentNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.service.SummarizeDocument(context.Background(), "doc_missing")
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	assert.Empty(t, env.chat.answerPrompts())
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	result, err := env.service.Ingest(ctx, &IngestRequest{Text: fiveChunkText()})
	require.NoError(t, err)
	require.NoError(t, env.service.DeleteDocument(ctx, result.DocumentID))

	assert.Equal(t, 0, env.vectors.size())
	_, err = env.meta.GetDocument(ctx, result.DocumentID)
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)

	err = env.service.DeleteDocument(ctx, result.DocumentID)
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
}

func TestDeleteDocumentQueuesVectorsOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	result, err := env.service.Ingest(ctx, &IngestRequest{Text: fiveChunkText()})
	require.NoError(t, err)

	env.vectors.setDeleteErr(stderrors.New("milvus down"))
	require.NoError(t, env.service.DeleteDocument(ctx, result.DocumentID))

	n, err := env.orphans.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	orphans, err := env.orphans.Peek(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.OrphanReasonDocumentDelete, orphans[0].Reason)
	assert.Equal(t, result.DocumentID, orphans[0].DocumentID)

	// 索引仍不可用时保留条目并增加尝试次数
	report, err := env.service.ReconcileOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Failed)
	assert.Equal(t, int64(5), report.Remaining)

	orphans, err = env.orphans.Peek(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, orphans[0].Attempts)
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.service.Ingest(ctx, &IngestRequest{Text: fiveChunkText()})
	require.NoError(t, err)

	stats, err := env.service.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Documents)
	assert.Equal(t, int64(5), stats.Chunks)
	require.NotNil(t, stats.Vectors)
	assert.Equal(t, int64(5), stats.Vectors.Rows)
	assert.Equal(t, int64(0), stats.OrphanQueue)
	require.NotNil(t, stats.Cache)
	assert.False(t, stats.Cache.Enabled)
}

func TestIngestInvalidatesCachedAnswer(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	env := newTestEnv(t, nil)
	env.service.cache = NewQueryCache(client, &QueryCacheConfig{
		Enabled: true, TTL: time.Minute, KeyPrefix: "docqa:test:service:",
	})
	require.NoError(t, env.service.cache.Clear(ctx))
	t.Cleanup(func() {
		_ = env.service.cache.Clear(ctx)
		_ = client.Del(ctx, env.service.cache.generationKey()).Err()
	})

	seedNumbered(t, env)
	env.vectors.hits = []store.Hit{{VectorID: "7", DocumentID: "doc_n", Distance: 0.1}}

	first, err := env.service.AnswerQuery(ctx, "which numbers?")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	cached, err := env.service.AnswerQuery(ctx, "which numbers?")
	require.NoError(t, err)
	assert.True(t, cached.Cached, "未入库前命中缓存")

	_, err = env.service.Ingest(ctx, &IngestRequest{Text: fiveChunkText()})
	require.NoError(t, err)

	again, err := env.service.AnswerQuery(ctx, "which numbers?")
	require.NoError(t, err)
	assert.False(t, again.Cached, "入库后旧答案失效")
	assert.Len(t, env.chat.answerPrompts(), 2)
}
