// Package embed provides text embedding providers for relevance ranking.
// The default provider is deterministic and needs no network access; the
// openai provider talks to any OpenAI-compatible embeddings API.
package embed

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/engram/internal/profile"
)

// Provider turns text into a fixed-dimension vector.
type Provider interface {
	// Embed generates the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// NewProvider creates the embedding provider selected by the profile.
func NewProvider(p *profile.Profile) (Provider, error) {
	switch p.EmbedProvider {
	case "", "hash":
		return NewHashProvider(p.EmbedDimensions), nil
	case "openai":
		if p.EmbedAPIKey == "" {
			return nil, errors.New("openai embedding provider requires an api key")
		}
		return NewOpenAIProvider(p)
	default:
		return nil, errors.Errorf("unsupported embedding provider %q", p.EmbedProvider)
	}
}
