// Package handler provides the HTTP handlers of the docqa service.
package handler

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/storage"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// Service is the pipeline surface the handlers call.
type Service interface {
	Ingest(ctx context.Context, req *biz.IngestRequest) (*biz.IngestResult, error)
	AnswerQuery(ctx context.Context, query string) (*model.QueryResult, error)
	SummarizeDocument(ctx context.Context, documentID string) (*biz.SummaryResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
	ReconcileOrphans(ctx context.Context) (*biz.ReconcileReport, error)
	GetStats(ctx context.Context) (*biz.Stats, error)
}

// HealthChecker reports the health of the backing stores.
type HealthChecker interface {
	HealthCheckAll(ctx context.Context) []storage.HealthStatus
}

// Config 处理器配置。
type Config struct {
	ChunkSize     int
	ChunkOverlap  int
	QueryTimeout  time.Duration
	IngestTimeout time.Duration
}

// Handler handles docqa HTTP requests.
type Handler struct {
	service Service
	health  HealthChecker
	config  Config
}

// New creates a new Handler. health may be nil.
func New(service Service, health HealthChecker, config Config) *Handler {
	return &Handler{service: service, health: health, config: config}
}

// IngestRequest is the JSON body of POST /v1/documents.
type IngestRequest struct {
	Text      string `json:"text" binding:"required"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	ChunkSize *int   `json:"chunk_size"`
	Overlap   *int   `json:"overlap"`
}

// QueryRequest is the JSON body of POST /v1/query.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// Ingest handles POST /v1/documents. A text/plain body is ingested as is,
// with title and source taken from the query string.
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if strings.HasPrefix(c.ContentType(), "text/plain") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Fail(c, errors.ErrBadRequest.WithMessagef("failed to read body: %v", err))
			return
		}
		req.Text = string(body)
		req.Title = c.Query("title")
		req.Source = c.Query("source")
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrBadRequest.WithMessagef("invalid request body: %v", err))
		return
	}

	size, overlap := h.config.ChunkSize, h.config.ChunkOverlap
	if req.ChunkSize != nil {
		size = *req.ChunkSize
	}
	if req.Overlap != nil {
		overlap = *req.Overlap
	}
	if size == 0 {
		response.Fail(c, errors.ErrInvalidChunking.WithMessage("chunk_size must be positive"))
		return
	}

	ctx, cancel := h.withTimeout(c, h.config.IngestTimeout)
	defer cancel()

	result, err := h.service.Ingest(ctx, &biz.IngestRequest{
		Text:      req.Text,
		Title:     req.Title,
		Source:    req.Source,
		ChunkSize: size,
		Overlap:   overlap,
	})
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Created(c, result)
}

// Query handles POST /v1/query.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrBadRequest.WithMessagef("invalid request body: %v", err))
		return
	}

	ctx, cancel := h.withTimeout(c, h.config.QueryTimeout)
	defer cancel()

	result, err := h.service.AnswerQuery(ctx, req.Query)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(c, result)
}

// Summary handles GET /v1/documents/:id/summary.
func (h *Handler) Summary(c *gin.Context) {
	ctx, cancel := h.withTimeout(c, h.config.QueryTimeout)
	defer cancel()

	result, err := h.service.SummarizeDocument(ctx, c.Param("id"))
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(c, result)
}

// Delete handles DELETE /v1/documents/:id.
func (h *Handler) Delete(c *gin.Context) {
	ctx, cancel := h.withTimeout(c, h.config.IngestTimeout)
	defer cancel()

	if err := h.service.DeleteDocument(ctx, c.Param("id")); err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(c, gin.H{})
}

// Reconcile handles POST /v1/admin/reconcile.
func (h *Handler) Reconcile(c *gin.Context) {
	ctx, cancel := h.withTimeout(c, h.config.IngestTimeout)
	defer cancel()

	report, err := h.service.ReconcileOrphans(ctx)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(c, report)
}

// Stats handles GET /v1/stats.
func (h *Handler) Stats(c *gin.Context) {
	ctx, cancel := h.withTimeout(c, h.config.QueryTimeout)
	defer cancel()

	stats, err := h.service.GetStats(ctx)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	response.Success(c, stats)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// Readyz handles GET /readyz. It pings every registered store.
func (h *Handler) Readyz(c *gin.Context) {
	if h.health == nil {
		response.Success(c, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	statuses := h.health.HealthCheckAll(ctx)
	for _, s := range statuses {
		if !s.Healthy {
			response.FailWithData(c, errors.ErrServiceUnavailable.WithMessagef("%s is not healthy", s.Name), statuses)
			return
		}
	}
	response.Success(c, gin.H{"status": "ready", "components": statuses})
}

func (h *Handler) withTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

// fail maps a deadline hit during the request to ErrRequestTimeout.
func fail(ctx context.Context, c *gin.Context, err error) {
	if ctx.Err() == context.DeadlineExceeded && errors.FromError(err).Code == errors.ErrInternal.Code {
		err = errors.ErrRequestTimeout.WithCause(err)
	}
	_ = c.Error(err)
	response.Fail(c, err)
}
