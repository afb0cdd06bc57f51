package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/engram/internal/profile"
)

func TestHashProviderDeterminism(t *testing.T) {
	ctx := context.Background()
	p := NewHashProvider(384)

	first, err := p.Embed(ctx, "the same text")
	require.NoError(t, err)
	second, err := p.Embed(ctx, "the same text")
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical texts map to identical vectors")

	other, err := p.Embed(ctx, "a different text")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestHashProviderDimensions(t *testing.T) {
	assert.Equal(t, 384, NewHashProvider(0).Dimensions(), "non-positive dimensions fall back to the default")
	assert.Equal(t, 384, NewHashProvider(-3).Dimensions())
	assert.Equal(t, 1536, NewHashProvider(1536).Dimensions())

	vec, err := NewHashProvider(64).Embed(context.Background(), "sized")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}

func TestHashProviderUnitNorm(t *testing.T) {
	vec, err := NewHashProvider(384).Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		profile  profile.Profile
		wantErr  bool
		wantDims int
	}{
		{
			name:     "empty provider selects hash",
			profile:  profile.Profile{EmbedDimensions: 384},
			wantDims: 384,
		},
		{
			name:     "hash provider",
			profile:  profile.Profile{EmbedProvider: "hash", EmbedDimensions: 512},
			wantDims: 512,
		},
		{
			name:    "openai without api key",
			profile: profile.Profile{EmbedProvider: "openai"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			profile: profile.Profile{EmbedProvider: "word2vec"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(&tt.profile)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDims, p.Dimensions())
		})
	}
}
