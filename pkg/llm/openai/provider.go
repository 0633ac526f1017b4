// Package openai 提供兼容 OpenAI API 的 LLM 供应商实现。
//
// 默认指向 Gemini 的 OpenAI 兼容端点，也可以通过 base-url 指向 OpenAI、Azure OpenAI、LocalAI 等服务。
//
//	import _ "github.com/kart-io/docqa/pkg/llm/openai"
//
//	provider, err := llm.NewChatProvider("openai", &llm.Config{APIKey: "key"})
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

// ProviderName 是供应商的名称标识符。
const ProviderName = "openai"

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultEmbedModel = "text-embedding-3-small"
	DefaultChatModel  = "gemini-2.0-flash"
)

func init() {
	Register(Endpoint{
		Name:       ProviderName,
		BaseURL:    DefaultBaseURL,
		EmbedModel: DefaultEmbedModel,
		ChatModel:  DefaultChatModel,
	})
}

// Provider 同时实现 Embedding 与 Chat。
type Provider struct {
	name   string
	config *llm.Config
	client *httpclient.Client
}

// Endpoint 描述一个 OpenAI 兼容服务的默认地址与模型。
type Endpoint struct {
	Name       string
	BaseURL    string
	EmbedModel string
	ChatModel  string
}

// Register 以 OpenAI 协议注册一个兼容服务。EmbedModel 为空时只注册 Chat。
func Register(ep Endpoint) {
	if ep.EmbedModel != "" {
		llm.RegisterEmbeddingProvider(ep.Name, func(cfg *llm.Config) (llm.EmbeddingProvider, error) {
			return NewCompatibleProvider(ep.Name, ep.BaseURL, cfg, ep.EmbedModel)
		})
	}
	llm.RegisterChatProvider(ep.Name, func(cfg *llm.Config) (llm.ChatProvider, error) {
		return NewCompatibleProvider(ep.Name, ep.BaseURL, cfg, ep.ChatModel)
	})
}

// NewProvider 创建供应商，未设置的字段使用默认值。
func NewProvider(cfg *llm.Config, defaultModel string) (*Provider, error) {
	return NewCompatibleProvider(ProviderName, DefaultBaseURL, cfg, defaultModel)
}

// NewCompatibleProvider 创建指向 OpenAI 兼容服务的供应商。
func NewCompatibleProvider(name, defaultBaseURL string, cfg *llm.Config, defaultModel string) (*Provider, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", name)
	}

	c := *cfg
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}

	return &Provider{
		name:   name,
		config: &c,
		client: httpclient.NewClient(c.Timeout, c.MaxRetries),
	}, nil
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return p.name
}

// Model 返回当前使用的模型。
func (p *Provider) Model() string {
	return p.config.Model
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed 为多个文本生成向量嵌入，结果按响应中的 index 还原为输入顺序。
// 响应条目数与输入不一致时原样返回，由调用方判定。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	err := p.client.PostJSON(ctx, p.config.BaseURL+"/embeddings", p.headers(),
		embeddingRequest{Model: p.config.Model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return positional(resp), nil
	}

	embeddings := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(embeddings) {
			return nil, fmt.Errorf("%s: embedding index %d out of range", p.name, d.Index)
		}
		if embeddings[d.Index] != nil {
			// 部分兼容端点不返回 index，退回到响应顺序
			return positional(resp), nil
		}
		embeddings[d.Index] = resp.Data[i].Embedding
	}
	return embeddings, nil
}

func positional(resp embeddingResponse) [][]float32 {
	out := make([][]float32, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, d.Embedding)
	}
	return out
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%s: no embedding returned", p.name)
	}
	return embeddings[0], nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      llm.Message `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Chat 进行多轮对话。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	req := chatRequest{
		Model:       p.config.Model,
		Messages:    messages,
		Temperature: p.config.Temperature,
	}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.config.BaseURL+"/chat/completions", p.headers(), req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices returned", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return p.Chat(ctx, llm.BuildMessages(prompt, systemPrompt))
}

func (p *Provider) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.config.APIKey)
	if p.config.Organization != "" {
		h.Set("OpenAI-Organization", p.config.Organization)
	}
	return h
}

var (
	_ llm.EmbeddingProvider = (*Provider)(nil)
	_ llm.ChatProvider      = (*Provider)(nil)
)
