package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/storage"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

type mockService struct {
	ingested *biz.IngestRequest
	query    string
	deadline bool
	err      error
}

func (m *mockService) Ingest(ctx context.Context, req *biz.IngestRequest) (*biz.IngestResult, error) {
	m.ingested = req
	_, m.deadline = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	return &biz.IngestResult{DocumentID: "doc_1", Chunks: 3}, nil
}

func (m *mockService) AnswerQuery(ctx context.Context, query string) (*model.QueryResult, error) {
	m.query = query
	_, m.deadline = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.ErrEmptyQuery
	}
	return &model.QueryResult{Answer: "42", Expansions: map[string]string{"translation_1": "q"}}, nil
}

func (m *mockService) SummarizeDocument(_ context.Context, documentID string) (*biz.SummaryResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &biz.SummaryResult{DocumentID: documentID, Summary: "short"}, nil
}

func (m *mockService) DeleteDocument(_ context.Context, _ string) error {
	return m.err
}

func (m *mockService) ReconcileOrphans(_ context.Context) (*biz.ReconcileReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &biz.ReconcileReport{Scanned: 2, Purged: 2}, nil
}

func (m *mockService) GetStats(_ context.Context) (*biz.Stats, error) {
	return &biz.Stats{Documents: 1, Chunks: 3}, nil
}

type staticHealth []storage.HealthStatus

func (s staticHealth) HealthCheckAll(_ context.Context) []storage.HealthStatus {
	return s
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newEngine(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/documents", h.Ingest)
	r.POST("/v1/query", h.Query)
	r.GET("/v1/documents/:id/summary", h.Summary)
	r.DELETE("/v1/documents/:id", h.Delete)
	r.POST("/v1/admin/reconcile", h.Reconcile)
	r.GET("/v1/stats", h.Stats)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	return r
}

func do(t *testing.T, r http.Handler, method, path, contentType, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func testConfig() Config {
	return Config{ChunkSize: 400, ChunkOverlap: 100, QueryTimeout: time.Minute, IngestTimeout: time.Minute}
}

func TestIngest(t *testing.T) {
	t.Run("JSON 请求使用默认分块参数", func(t *testing.T) {
		svc := &mockService{}
		r := newEngine(New(svc, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/documents", "application/json", `{"text":"hello","title":"t"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, 0, env.Code)
		assert.Contains(t, string(env.Data), "doc_1")

		require.NotNil(t, svc.ingested)
		assert.Equal(t, 400, svc.ingested.ChunkSize)
		assert.Equal(t, 100, svc.ingested.Overlap)
		assert.Equal(t, "t", svc.ingested.Title)
		assert.True(t, svc.deadline)
	})

	t.Run("显式分块参数覆盖默认值", func(t *testing.T) {
		svc := &mockService{}
		r := newEngine(New(svc, nil, testConfig()))

		w, _ := do(t, r, http.MethodPost, "/v1/documents", "application/json", `{"text":"hello","chunk_size":50,"overlap":0}`)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, 50, svc.ingested.ChunkSize)
		assert.Equal(t, 0, svc.ingested.Overlap)
	})

	t.Run("纯文本请求体", func(t *testing.T) {
		svc := &mockService{}
		r := newEngine(New(svc, nil, testConfig()))

		w, _ := do(t, r, http.MethodPost, "/v1/documents?title=notes", "text/plain; charset=utf-8", "line one\nline two")
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "line one\nline two", svc.ingested.Text)
		assert.Equal(t, "notes", svc.ingested.Title)
	})

	t.Run("块大小为零", func(t *testing.T) {
		svc := &mockService{}
		r := newEngine(New(svc, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/documents", "application/json", `{"text":"hello","chunk_size":0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errors.ErrInvalidChunking.Code, env.Code)
		assert.Nil(t, svc.ingested)
	})

	t.Run("请求体格式错误", func(t *testing.T) {
		r := newEngine(New(&mockService{}, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/documents", "application/json", `{"text":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errors.ErrBadRequest.Code, env.Code)
	})

	t.Run("缺少 text 字段", func(t *testing.T) {
		svc := &mockService{}
		r := newEngine(New(svc, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/documents", "application/json", `{"title":"notes"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errors.ErrBadRequest.Code, env.Code)
		assert.Nil(t, svc.ingested, "校验失败时不应调用服务")
	})

	t.Run("部分入库返回对应错误码", func(t *testing.T) {
		svc := &mockService{err: &biz.PartialIngestionError{
			DocumentID: "doc_1",
			VectorIDs:  []string{"a"},
			Err:        errors.ErrMetadataUnavailable,
		}}
		r := newEngine(New(svc, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/documents", "application/json", `{"text":"hello"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, errors.ErrPartialIngestion.Code, env.Code)
	})
}

func TestQuery(t *testing.T) {
	t.Run("正常回答", func(t *testing.T) {
		svc := &mockService{}
		r := newEngine(New(svc, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/query", "application/json", `{"query":"what?"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "what?", svc.query)

		var result model.QueryResult
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "42", result.Answer)
		assert.Equal(t, "q", result.Expansions["translation_1"])
	})

	t.Run("空查询", func(t *testing.T) {
		r := newEngine(New(&mockService{}, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/query", "application/json", `{"query":"  "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errors.ErrEmptyQuery.Code, env.Code)
	})

	t.Run("缺少 query 字段", func(t *testing.T) {
		svc := &mockService{}
		r := newEngine(New(svc, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/query", "application/json", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errors.ErrBadRequest.Code, env.Code)
		assert.Empty(t, svc.query)
	})

	t.Run("上游不可用", func(t *testing.T) {
		r := newEngine(New(&mockService{err: errors.ErrCompletionUnavailable}, nil, testConfig()))

		w, env := do(t, r, http.MethodPost, "/v1/query", "application/json", `{"query":"q"}`)
		assert.Equal(t, errors.ErrCompletionUnavailable.HTTPStatus(), w.Code)
		assert.Equal(t, errors.ErrCompletionUnavailable.Code, env.Code)
	})
}

func TestDocumentRoutes(t *testing.T) {
	svc := &mockService{}
	r := newEngine(New(svc, nil, testConfig()))

	w, env := do(t, r, http.MethodGet, "/v1/documents/doc_9/summary", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "doc_9")

	w, _ = do(t, r, http.MethodDelete, "/v1/documents/doc_9", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, r, http.MethodPost, "/v1/admin/reconcile", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var report biz.ReconcileReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 2, report.Purged)

	w, _ = do(t, r, http.MethodGet, "/v1/stats", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	svc.err = errors.ErrDocumentNotFound
	w, env = do(t, r, http.MethodDelete, "/v1/documents/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.ErrDocumentNotFound.Code, env.Code)
}

func TestProbes(t *testing.T) {
	r := newEngine(New(&mockService{}, nil, testConfig()))
	w, _ := do(t, r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	healthy := staticHealth{{Name: "milvus", Healthy: true}, {Name: "postgres", Healthy: true}}
	r = newEngine(New(&mockService{}, healthy, testConfig()))
	w, _ = do(t, r, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	degraded := staticHealth{{Name: "milvus", Healthy: false, Error: "connection refused"}}
	r = newEngine(New(&mockService{}, degraded, testConfig()))
	w, env := do(t, r, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errors.ErrServiceUnavailable.Code, env.Code)
	assert.Contains(t, string(env.Data), "connection refused")
}
