package llm

import (
	"fmt"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenRouterReferrer string
	OpenRouterTitle    string
	EmbeddingModel     string
	YandexOAuthToken   string
	YandexFolderID     string
	Temperature        float32
}

// CreateClient returns a JSON-answering client for the provider. Yandex has
// no JSON mode; its replies go through ExtractJSON like any other.
func (f *Factory) CreateClient(provider, model string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return f.openai(model), nil
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}

// CreateEmbedder returns the embedding provider. Only OpenAI-compatible
// endpoints serve embeddings.
func (f *Factory) CreateEmbedder() (Embedder, error) {
	if f.OpenaiAPIKey == "" {
		return nil, fmt.Errorf("embeddings need OPENAI_API_KEY")
	}
	return f.openai(""), nil
}

func (f *Factory) openai(model string) *OpenAIClient {
	return NewOpenAI(OpenAIOptions{
		APIKey:         f.OpenaiAPIKey,
		BaseURL:        f.OpenaiBaseURL,
		Model:          model,
		EmbeddingModel: f.EmbeddingModel,
		Referrer:       f.OpenRouterReferrer,
		Title:          f.OpenRouterTitle,
		JSONMode:       true,
		Temperature:    f.Temperature,
	})
}
