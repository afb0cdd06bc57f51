package embed

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/engram/internal/profile"
)

// OpenAIProvider computes embeddings through an OpenAI-compatible API.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
}

func NewOpenAIProvider(p *profile.Profile) (*OpenAIProvider, error) {
	clientConfig := openai.DefaultConfig(p.EmbedAPIKey)
	if p.EmbedBaseURL != "" {
		clientConfig.BaseURL = p.EmbedBaseURL
	}

	dimensions := p.EmbedDimensions
	if dimensions <= 0 {
		dimensions = 384
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      p.EmbedModel,
		dimensions: dimensions,
	}, nil
}

var _ Provider = (*OpenAIProvider)(nil)

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dimensions,
	}
	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embeddings")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}
