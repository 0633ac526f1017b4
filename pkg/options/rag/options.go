// Package rag provides options for the document question-answering pipeline.
package rag

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains pipeline configuration.
type Options struct {
	// Collection is the name of the Milvus collection.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// ChunkSize is the chunk window in runes.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the number of runes shared by adjacent chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of nearest neighbours fetched per query.
	TopK int `json:"top-k" mapstructure:"top-k"`

	NProbe int `json:"nprobe" mapstructure:"nprobe"`
	NList  int `json:"nlist" mapstructure:"nlist"`

	// SystemPrompt is sent with every answer and summary completion.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`

	QueryTimeout  time.Duration `json:"query-timeout" mapstructure:"query-timeout"`
	IngestTimeout time.Duration `json:"ingest-timeout" mapstructure:"ingest-timeout"`

	Expansion *ExpansionOptions `json:"expansion" mapstructure:"expansion"`
}

// ExpansionOptions 查询改写配置。
type ExpansionOptions struct {
	// Enabled 是否生成查询的多种表述。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Count 要求模型给出的表述数量。
	Count int `json:"count" mapstructure:"count"`

	// Strict 为 true 时改写失败直接返回错误，否则退化为只使用原始查询。
	Strict bool `json:"strict" mapstructure:"strict"`

	// Fuse 为 true 时改写结果也参与向量检索并与原始查询的结果融合。
	Fuse bool `json:"fuse" mapstructure:"fuse"`
}

// DefaultSystemPrompt is the system prompt used when none is configured.
const DefaultSystemPrompt = "You are a careful assistant. You answer strictly from the document chunks supplied in the user message and follow its instructions exactly."

// NewExpansionOptions 创建默认查询改写配置。
func NewExpansionOptions() *ExpansionOptions {
	return &ExpansionOptions{
		Enabled: true,
		Count:   3,
	}
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Collection:    "docqa_chunks",
		EmbeddingDim:  1536, // text-embedding-3-small
		ChunkSize:     400,
		ChunkOverlap:  100,
		TopK:          5,
		NProbe:        16,
		NList:         1024,
		SystemPrompt:  DefaultSystemPrompt,
		QueryTimeout:  60 * time.Second,
		IngestTimeout: 5 * time.Minute,
		Expansion:     NewExpansionOptions(),
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "rag."
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Milvus collection name.")
	fs.IntVar(&o.EmbeddingDim, p+"embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Default chunk size in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Default overlap between adjacent chunks.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Number of chunks retrieved per query.")
	fs.IntVar(&o.NProbe, p+"nprobe", o.NProbe, "IVF clusters probed per search.")
	fs.IntVar(&o.NList, p+"nlist", o.NList, "IVF cluster count used when creating the index.")
	fs.StringVar(&o.SystemPrompt, p+"system-prompt", o.SystemPrompt, "System prompt for answer and summary completions.")
	fs.DurationVar(&o.QueryTimeout, p+"query-timeout", o.QueryTimeout, "Deadline for a single query request.")
	fs.DurationVar(&o.IngestTimeout, p+"ingest-timeout", o.IngestTimeout, "Deadline for a single ingestion request.")

	if o.Expansion == nil {
		o.Expansion = NewExpansionOptions()
	}
	fs.BoolVar(&o.Expansion.Enabled, p+"expansion.enabled", o.Expansion.Enabled, "Generate alternative phrasings of each query.")
	fs.IntVar(&o.Expansion.Count, p+"expansion.count", o.Expansion.Count, "Number of phrasings to request.")
	fs.BoolVar(&o.Expansion.Strict, p+"expansion.strict", o.Expansion.Strict, "Fail the query when expansion output is malformed.")
	fs.BoolVar(&o.Expansion.Fuse, p+"expansion.fuse", o.Expansion.Fuse, "Also search with the phrasings and fuse the hits.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("rag.collection is required"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk-overlap must be in [0, chunk-size), got %d", o.ChunkOverlap))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top-k must be positive"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("rag.embedding-dim must be positive"))
	}
	if o.NProbe <= 0 || o.NList <= 0 {
		errs = append(errs, fmt.Errorf("rag.nprobe and rag.nlist must be positive"))
	}
	if o.QueryTimeout <= 0 || o.IngestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("rag timeouts must be positive"))
	}
	if o.Expansion != nil && o.Expansion.Enabled && o.Expansion.Count <= 0 {
		errs = append(errs, fmt.Errorf("rag.expansion.count must be positive when expansion is enabled"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.Expansion == nil {
		o.Expansion = NewExpansionOptions()
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	return nil
}
