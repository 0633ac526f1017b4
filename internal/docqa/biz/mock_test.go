package biz

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/llm"
)

const testDim = 4

// mockEmbedder 返回确定性的向量。drop 为 true 时少返回一个向量。
type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	texts [][]string
	drop  bool
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.texts = append(m.texts, texts)
	if m.err != nil {
		return nil, m.err
	}
	n := len(texts)
	if m.drop {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), float32(i), 1, 0}
	}
	return out, nil
}

func (m *mockEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (m *mockEmbedder) Name() string { return "mock" }

// mockChat 记录所有提示词。expansion 为查询改写的返回值，answer 为其他调用的返回值。
type mockChat struct {
	mu        sync.Mutex
	prompts   []string
	expansion string
	answer    string
	err       error
}

func (m *mockChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return m.Generate(ctx, messages[len(messages)-1].Content, "")
}

func (m *mockChat) Generate(_ context.Context, prompt, systemPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if systemPrompt == expansionSystemPrompt {
		return m.expansion, nil
	}
	m.prompts = append(m.prompts, prompt)
	return m.answer, nil
}

func (m *mockChat) Name() string { return "mock" }

func (m *mockChat) answerPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// mockVectorStore 内存向量索引。
type mockVectorStore struct {
	mu          sync.Mutex
	records     map[string]store.VectorRecord
	insertCalls int
	activations int
	deleted     []string
	hits        []store.Hit

	// rewriteIDs 修改索引确认的主键，用于模拟契约违反
	rewriteIDs func(keys []string) []string
	// insertApplied 为 true 时，写入生效后才返回 insertErr
	insertApplied bool
	insertErr     error
	activateErr error
	deleteErr   error
	// failIDs 中的主键出现在删除请求里时整个请求失败
	failIDs map[string]bool
}

func newMockVectorStore() *mockVectorStore {
	return &mockVectorStore{records: make(map[string]store.VectorRecord)}
}

func (m *mockVectorStore) Collection() string { return "test_chunks" }

func (m *mockVectorStore) EnsureCollection(context.Context) error { return nil }

func (m *mockVectorStore) Insert(_ context.Context, records []store.VectorRecord) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.insertErr != nil && !m.insertApplied {
		return nil, m.insertErr
	}
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.Key
		m.records[r.Key] = r
	}
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if m.rewriteIDs != nil {
		keys = m.rewriteIDs(keys)
	}
	return keys, nil
}

func (m *mockVectorStore) Activate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activations++
	return m.activateErr
}

func (m *mockVectorStore) Search(_ context.Context, _ []float32, k int) ([]store.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := append([]store.Hit(nil), m.hits...)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *mockVectorStore) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, id := range ids {
		if m.failIDs[id] {
			return stderrors.New("cannot delete " + id)
		}
	}
	for _, id := range ids {
		delete(m.records, id)
	}
	m.deleted = append(m.deleted, ids...)
	return nil
}

func (m *mockVectorStore) Stats(context.Context) (*store.VectorStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &store.VectorStats{Collection: m.Collection(), Rows: int64(len(m.records))}, nil
}

func (m *mockVectorStore) Close(context.Context) error { return nil }

func (m *mockVectorStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockVectorStore) setDeleteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// recordingMetadata 包装真实的元数据存储，统计写入次数并可注入故障。
type recordingMetadata struct {
	store.MetadataStore

	mu      sync.Mutex
	writes  int
	saveErr error
	shuffle bool
}

func (r *recordingMetadata) CreateDocument(ctx context.Context, doc *model.Document) error {
	r.count()
	return r.MetadataStore.CreateDocument(ctx, doc)
}

func (r *recordingMetadata) CreateChunks(ctx context.Context, chunks []*model.Chunk) error {
	r.count()
	return r.MetadataStore.CreateChunks(ctx, chunks)
}

func (r *recordingMetadata) SaveDocument(ctx context.Context, doc *model.Document, chunks []*model.Chunk) error {
	r.count()
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.MetadataStore.SaveDocument(ctx, doc, chunks)
}

// FindChunksByVectorIDs 打乱返回顺序，检索结果不能依赖存储顺序。
func (r *recordingMetadata) FindChunksByVectorIDs(ctx context.Context, ids []string) ([]*model.Chunk, error) {
	chunks, err := r.MetadataStore.FindChunksByVectorIDs(ctx, ids)
	if err != nil || !r.shuffle {
		return chunks, err
	}
	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}
	if len(chunks) > 2 {
		chunks[0], chunks[1] = chunks[1], chunks[0]
	}
	return chunks, nil
}

func (r *recordingMetadata) count() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
}

func (r *recordingMetadata) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// failingQueue 总是入队失败。
type failingQueue struct {
	store.OrphanQueue
}

func (failingQueue) Enqueue(context.Context, []*model.OrphanVector) error {
	return stderrors.New("queue unavailable")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, store.NewGormMetadataStore(db).AutoMigrate(context.Background()))
	return db
}

type testEnv struct {
	db       *gorm.DB
	embedder *mockEmbedder
	chat     *mockChat
	vectors  *mockVectorStore
	meta     *recordingMetadata
	orphans  store.OrphanQueue
	service  *Service
}

func newTestEnv(t *testing.T, mutate func(cfg *ServiceConfig)) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:       db,
		embedder: &mockEmbedder{},
		chat:     &mockChat{expansion: `["p0", "p1", "p2"]`, answer: "grounded answer"},
		vectors:  newMockVectorStore(),
		meta:     &recordingMetadata{MetadataStore: store.NewGormMetadataStore(db)},
	}
	env.orphans = store.NewGormOrphanQueue(db, env.vectors.Collection())

	cfg := &ServiceConfig{
		ChunkSize:          10,
		ChunkOverlap:       0,
		TopK:               5,
		EmbeddingDim:       testDim,
		SystemPrompt:       "system",
		Expansion:          false,
		ExpansionCount:     3,
		ReconcileBatchSize: 100,
	}
	if mutate != nil {
		mutate(cfg)
	}

	env.service = NewService(Dependencies{
		Embedder: env.embedder,
		Chat:     env.chat,
		Vectors:  env.vectors,
		Metadata: env.meta,
		Orphans:  env.orphans,
	}, cfg)
	return env
}

// seedChunks 直接写入一篇文档及其文档块。
func (e *testEnv) seedChunks(t *testing.T, docID string, chunks []*model.Chunk) {
	t.Helper()
	ms := store.NewGormMetadataStore(e.db)
	require.NoError(t, ms.SaveDocument(context.Background(),
		&model.Document{ID: docID, Embedded: true, ChunkCount: len(chunks)}, chunks))
}

func fiveChunkText() string {
	// 块大小 10、无重叠时恰好切成 5 块
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString(strings.Repeat(string(rune('a'+i)), 10))
	}
	return b.String()
}
