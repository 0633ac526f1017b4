// Package siliconflow registers SiliconFlow for both embeddings and chat
// through its OpenAI compatible API. The international endpoint is
// https://api.siliconflow.com/v1.
//
//	import _ "github.com/kart-io/docqa/pkg/llm/siliconflow"
package siliconflow

import "github.com/kart-io/docqa/pkg/llm/openai"

// ProviderName 是 SiliconFlow 供应商的名称标识符
const ProviderName = "siliconflow"

const (
	DefaultBaseURL    = "https://api.siliconflow.cn/v1"
	DefaultEmbedModel = "BAAI/bge-m3"
	DefaultChatModel  = "Qwen/Qwen2.5-7B-Instruct"
)

func init() {
	openai.Register(openai.Endpoint{
		Name:       ProviderName,
		BaseURL:    DefaultBaseURL,
		EmbedModel: DefaultEmbedModel,
		ChatModel:  DefaultChatModel,
	})
}
