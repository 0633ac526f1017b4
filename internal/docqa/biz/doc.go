// Package biz implements the document QA pipeline: ingestion saga, query expansion,
// retrieval, grounded prompt construction, answer synthesis and orphan reconciliation.
package biz
