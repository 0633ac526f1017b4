// Package deepseek registers DeepSeek as a chat provider. DeepSeek serves the
// OpenAI chat protocol but has no embedding endpoint.
//
//	import _ "github.com/kart-io/docqa/pkg/llm/deepseek"
package deepseek

import "github.com/kart-io/docqa/pkg/llm/openai"

// ProviderName 是 DeepSeek 供应商的名称标识符
const ProviderName = "deepseek"

const (
	DefaultBaseURL   = "https://api.deepseek.com"
	DefaultChatModel = "deepseek-chat"
)

func init() {
	openai.Register(openai.Endpoint{
		Name:      ProviderName,
		BaseURL:   DefaultBaseURL,
		ChatModel: DefaultChatModel,
	})
}
