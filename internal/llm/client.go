package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is a text-generation provider.
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

// Embedder turns text into a vector. Implementations return vectors of
// EmbeddingDimensions length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingDimensions is the vector size of the embedding index.
const EmbeddingDimensions = 1536
