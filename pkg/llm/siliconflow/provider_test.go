package siliconflow_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
	_ "github.com/kart-io/docqa/pkg/llm/deepseek"
	"github.com/kart-io/docqa/pkg/llm/openai"
	"github.com/kart-io/docqa/pkg/llm/siliconflow"
)

func TestRegisteredProviders(t *testing.T) {
	e, err := llm.NewEmbeddingProvider(siliconflow.ProviderName, &llm.Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, siliconflow.ProviderName, e.Name())
	assert.Equal(t, siliconflow.DefaultEmbedModel, e.(*openai.Provider).Model())

	c, err := llm.NewChatProvider("deepseek", &llm.Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", c.Name())

	// DeepSeek 没有 Embedding 接口
	_, err = llm.NewEmbeddingProvider("deepseek", &llm.Config{APIKey: "k"})
	assert.Error(t, err)
}

func TestChatUsesConfiguredEndpoint(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"你好"}}]}`))
	}))
	defer srv.Close()

	c, err := llm.NewChatProvider(siliconflow.ProviderName, &llm.Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "你好", out)
	assert.Equal(t, "/v1/chat/completions", path)
}
