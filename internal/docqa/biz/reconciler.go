package biz

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
)

// Submitter runs a task asynchronously, typically on the background worker pool.
type Submitter interface {
	Submit(task func()) error
}

// ReconcilerConfig 对账配置。
type ReconcilerConfig struct {
	// Interval 定时清理间隔。
	Interval time.Duration
	// BatchSize 每次清理的最大条目数。
	BatchSize int
	// MaxAttempts 单个条目的最大尝试次数，0 表示不限制。
	MaxAttempts int
}

// ReconcileReport 一次清理的结果。
type ReconcileReport struct {
	Scanned   int   `json:"scanned"`
	Purged    int   `json:"purged"`
	Failed    int   `json:"failed"`
	Remaining int64 `json:"remaining"`
	// DeadLettered 达到最大尝试次数后移出队列的条目数。
	DeadLettered int `json:"dead_lettered,omitempty"`
	// Skipped 为 true 表示已有清理在进行。
	Skipped bool `json:"skipped,omitempty"`
}

// Reconciler 删除清理队列中的孤立向量。
type Reconciler struct {
	vectors store.VectorStore
	orphans store.OrphanQueue
	config  *ReconcilerConfig
	metrics *metrics.Metrics

	// 同一时刻只运行一次清理
	running sync.Mutex
}

// NewReconciler 创建对账器。
func NewReconciler(vectors store.VectorStore, orphans store.OrphanQueue, config *ReconcilerConfig, m *metrics.Metrics) *Reconciler {
	return &Reconciler{vectors: vectors, orphans: orphans, config: config, metrics: m}
}

// Sweep 清理一批孤立向量：删除成功的条目出队，失败的条目增加尝试次数并保留。
// 整批删除失败时逐条重试，单个坏条目不会拖住同批的其他条目。
func (r *Reconciler) Sweep(ctx context.Context) (*ReconcileReport, error) {
	if !r.running.TryLock() {
		return &ReconcileReport{Skipped: true}, nil
	}
	defer r.running.Unlock()

	report := &ReconcileReport{}
	orphans, err := r.orphans.Peek(ctx, r.config.BatchSize)
	if err != nil {
		return nil, err
	}
	report.Scanned = len(orphans)

	if len(orphans) > 0 {
		purged, failed := r.deleteVectors(ctx, orphans)
		if err := r.orphans.Remove(ctx, purged); err != nil {
			return nil, err
		}
		report.Purged = len(purged)

		if err := r.orphans.MarkFailed(ctx, failed); err != nil {
			return nil, err
		}
		report.Failed = len(failed)

		dead := r.exhausted(failed)
		if len(dead) > 0 {
			if err := r.orphans.Remove(ctx, dead); err != nil {
				return nil, err
			}
			report.DeadLettered = len(dead)
		}

		r.metrics.RecordOrphans("purged", report.Purged)
		r.metrics.RecordOrphans("failed", report.Failed)
		r.metrics.RecordOrphans("dead_lettered", report.DeadLettered)
	}

	remaining, err := r.orphans.Len(ctx)
	if err != nil {
		return nil, err
	}
	report.Remaining = remaining
	r.metrics.SetOrphanQueueLength(remaining)

	if report.Scanned > 0 {
		logger.Infow("orphan reconciliation finished",
			"scanned", report.Scanned,
			"purged", report.Purged,
			"failed", report.Failed,
			"dead_lettered", report.DeadLettered,
			"remaining", report.Remaining,
		)
	}
	return report, nil
}

// deleteVectors 先整批删除，失败时逐条删除。
func (r *Reconciler) deleteVectors(ctx context.Context, orphans []*model.OrphanVector) (purged, failed []*model.OrphanVector) {
	ids := make([]string, len(orphans))
	for i, o := range orphans {
		ids[i] = o.VectorID
	}

	batchErr := r.vectors.Delete(ctx, ids)
	if batchErr == nil {
		return orphans, nil
	}
	logger.Warnw("orphan batch deletion failed, retrying one by one",
		"collection", r.vectors.Collection(),
		"count", len(ids),
		"error", batchErr.Error(),
	)

	for _, o := range orphans {
		if err := r.vectors.Delete(ctx, []string{o.VectorID}); err != nil {
			logger.Warnw("orphan vector deletion failed",
				"collection", r.vectors.Collection(),
				"vector_id", o.VectorID,
				"attempts", o.Attempts+1,
				"error", err.Error(),
			)
			failed = append(failed, o)
			continue
		}
		purged = append(purged, o)
	}
	return purged, failed
}

// exhausted 返回已达到最大尝试次数的条目，并逐个记录错误日志。
func (r *Reconciler) exhausted(failed []*model.OrphanVector) []*model.OrphanVector {
	if r.config.MaxAttempts <= 0 {
		return nil
	}
	var dead []*model.OrphanVector
	for _, o := range failed {
		if o.Attempts < r.config.MaxAttempts {
			continue
		}
		logger.Errorw("orphan vector dropped after max attempts, manual cleanup required",
			"collection", o.Collection,
			"vector_id", o.VectorID,
			"document_id", o.DocumentID,
			"attempts", o.Attempts,
		)
		dead = append(dead, o)
	}
	return dead
}

// Run 按配置的间隔在 runner 上提交清理任务，直到 ctx 取消。
func (r *Reconciler) Run(ctx context.Context, runner Submitter) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	logger.Infow("orphan reconciler started", "interval", r.config.Interval.String(), "batch_size", r.config.BatchSize)
	for {
		select {
		case <-ctx.Done():
			logger.Infow("orphan reconciler stopped")
			return
		case <-ticker.C:
			err := runner.Submit(func() {
				if _, err := r.Sweep(ctx); err != nil {
					logger.Warnw("orphan reconciliation failed", "error", err.Error())
				}
			})
			if err != nil {
				logger.Warnw("failed to submit reconciliation task", "error", err.Error())
			}
		}
	}
}
