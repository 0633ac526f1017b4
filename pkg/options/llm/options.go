// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义一个 LLM 供应商的连接配置。
// Embedding 与 Chat 各持一份，分别注册在 "embedding." 与 "chat." 前缀下。
type ProviderOptions struct {
	// Provider 供应商名称（openai, ollama, deepseek, siliconflow）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称，为空时使用供应商默认值。
	Model string `json:"model" mapstructure:"model"`

	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	// Temperature 采样温度，仅 Chat 使用。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	group string
}

func newProviderOptions(group string) *ProviderOptions {
	return &ProviderOptions{
		Provider:   "openai",
		Timeout:    60 * time.Second,
		MaxRetries: 2,
		group:      group,
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	return newProviderOptions("embedding")
}

// NewChatOptions 创建默认 Chat 供应商配置。
func NewChatOptions() *ProviderOptions {
	o := newProviderOptions("chat")
	o.Timeout = 120 * time.Second
	return o
}

// ToConfig 转换为供应商工厂使用的配置。
func (o *ProviderOptions) ToConfig() *llm.Config {
	return &llm.Config{
		BaseURL:      o.BaseURL,
		APIKey:       o.APIKey,
		Model:        o.Model,
		Organization: o.Organization,
		Timeout:      o.Timeout,
		MaxRetries:   o.MaxRetries,
		Temperature:  o.Temperature,
	}
}

// AddFlags adds flags for the provider to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + o.group + "."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, fmt.Sprintf("%s provider (openai, ollama, deepseek, siliconflow).", o.group))
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, fmt.Sprintf("%s API base URL. Empty uses the provider default.", o.group))
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, fmt.Sprintf("%s API key.", o.group))
	fs.StringVar(&o.Model, p+"model", o.Model, fmt.Sprintf("%s model name. Empty uses the provider default.", o.group))
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, fmt.Sprintf("%s request timeout.", o.group))
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, fmt.Sprintf("%s transport retries.", o.group))
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Organization ID (OpenAI only).")
	if o.group == "chat" {
		fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature.")
	}
}

// Validate validates the provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("%s.provider is required", o.group))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be positive", o.group))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s.max-retries must not be negative", o.group))
	}
	if o.Provider != "ollama" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s.api-key is required for the %s provider", o.group, o.Provider))
	}
	return errs
}

// Complete completes the provider options.
func (o *ProviderOptions) Complete() error {
	if o.group == "" {
		o.group = "llm"
	}
	return nil
}
