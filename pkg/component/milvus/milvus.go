// Package milvus wraps the Milvus SDK for chunk vectors keyed by a string correlation key.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kart-io/docqa/pkg/component/storage"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
)

// Field names of a chunk collection.
const (
	FieldChunkKey   = "chunk_key"
	FieldDocumentID = "document_id"
	FieldEmbedding  = "embedding"

	keyMaxLength = 64
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

var _ storage.Client = (*Client)(nil)

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", opts.Address, err)
	}

	return &Client{client: c, opts: opts}, nil
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "milvus"
}

// Ping lists collections as a cheap round trip.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	return err
}

// Close closes the Milvus client connection.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Close(ctx)
}

// CollectionSpec describes a chunk collection.
type CollectionSpec struct {
	Name      string
	Dimension int
	// NList is the IVF_FLAT cluster count.
	NList int
}

// EnsureCollection creates the collection and its IVF_FLAT L2 index when missing.
// An existing collection is left untouched.
func (c *Client) EnsureCollection(ctx context.Context, spec CollectionSpec) (created bool, err error) {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(spec.Name))
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return false, nil
	}

	schema := entity.NewSchema().
		WithName(spec.Name).
		WithDescription("docqa chunk vectors").
		WithAutoID(false).
		WithField(entity.NewField().
			WithName(FieldChunkKey).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(keyMaxLength).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(FieldDocumentID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(keyMaxLength)).
		WithField(entity.NewField().
			WithName(FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(spec.Dimension)))

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(spec.Name, schema)); err != nil {
		return false, fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.L2, spec.NList)
	task, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(spec.Name, FieldEmbedding, idx))
	if err != nil {
		return true, fmt.Errorf("failed to create index: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return true, fmt.Errorf("failed to wait for index creation: %w", err)
	}
	return true, nil
}

// Load loads the collection into query nodes. Loading an already loaded collection is a no-op.
func (c *Client) Load(ctx context.Context, collection string) error {
	task, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// Row is one vector to insert.
type Row struct {
	Key        string
	DocumentID string
	Vector     []float32
}

// Insert writes rows in one call, flushes, and returns the primary keys Milvus reports in insertion order.
func (c *Client) Insert(ctx context.Context, collection string, rows []Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	dim := len(rows[0].Vector)
	keys := make([]string, len(rows))
	docIDs := make([]string, len(rows))
	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		if len(r.Vector) != dim {
			return nil, fmt.Errorf("row %d has dimension %d, expected %d", i, len(r.Vector), dim)
		}
		keys[i] = r.Key
		docIDs[i] = r.DocumentID
		vectors[i] = r.Vector
	}

	result, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collection,
		column.NewColumnVarChar(FieldChunkKey, keys),
		column.NewColumnVarChar(FieldDocumentID, docIDs),
		column.NewColumnFloatVector(FieldEmbedding, dim, vectors),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert data: %w", err)
	}

	// 入库后立即可检索
	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return stringIDs(result.IDs), fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return stringIDs(result.IDs), fmt.Errorf("failed to wait for flush: %w", err)
	}

	return stringIDs(result.IDs), nil
}

func stringIDs(col column.Column) []string {
	if v, ok := col.(*column.ColumnVarChar); ok {
		return v.Data()
	}
	if col == nil {
		return nil
	}
	// 主键类型不符时逐个转换，交给调用方校验
	ids := make([]string, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		v, err := col.Get(i)
		if err != nil {
			continue
		}
		ids = append(ids, fmt.Sprint(v))
	}
	return ids
}

// SearchResult is one neighbour, closest first.
type SearchResult struct {
	Key        string
	DocumentID string
	Distance   float32
}

// Search returns the topK nearest vectors using L2 distance.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK, nprobe int) ([]SearchResult, error) {
	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		collection,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(FieldEmbedding).
		WithSearchParam("nprobe", strconv.Itoa(nprobe)).
		WithOutputFields(FieldDocumentID))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return []SearchResult{}, nil
	}

	rs := results[0]
	keys := stringIDs(rs.IDs)
	var docIDs []string
	for _, field := range rs.Fields {
		if col, ok := field.(*column.ColumnVarChar); ok && col.Name() == FieldDocumentID {
			docIDs = col.Data()
		}
	}

	out := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount && i < len(keys); i++ {
		r := SearchResult{Key: keys[i], Distance: rs.Scores[i]}
		if i < len(docIDs) {
			r.DocumentID = docIDs[i]
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteByKeys deletes vectors by primary key.
func (c *Client) DeleteByKeys(ctx context.Context, collection string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collection).WithStringIDs(FieldChunkKey, keys)); err != nil {
		return fmt.Errorf("failed to delete by keys: %w", err)
	}
	return nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, collection string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collection)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// RowCount returns the number of entities in a collection.
func (c *Client) RowCount(ctx context.Context, collection string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
