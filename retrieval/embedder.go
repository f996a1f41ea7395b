package retrieval

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewOpenAIEmbedder returns an embedder backed by the OpenAI embeddings API.
func NewOpenAIEmbedder(apiKey, model string) (embeddings.Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for document embeddings")
	}
	client, err := openai.New(openai.WithToken(apiKey), openai.WithEmbeddingModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(256))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return e, nil
}
