package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillonfkhanna/multi-search/internal/config"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input    string
		expected ProviderType
		wantErr  bool
	}{
		{"", ProviderOllama, false},
		{"Ollama", ProviderOllama, false},
		{" static ", ProviderStatic, false},
		{"mlx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProvider(tt.input)
			if tt.wantErr {
				assert.Equal(t, mserrors.ErrCodeConfigInvalid, mserrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewEmbedder_Static(t *testing.T) {
	e, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{Provider: "static"})

	require.NoError(t, err)
	assert.IsType(t, &StaticEmbedder{}, e)
}

func TestNewEmbedder_OllamaFromConfig(t *testing.T) {
	fake := &fakeOllama{models: []string{"mxbai-embed-large"}, dims: 4}
	host := newFakeOllama(t, fake)

	e, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{
		Provider:   "ollama",
		Model:      "mxbai-embed-large",
		OllamaHost: host,
		BatchSize:  8,
	})

	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", e.ModelName())
	assert.Equal(t, 4, e.Dimensions())
	assert.Equal(t, "ollama:mxbai-embed-large:4", NewGenerator(e).ModelVersion())
}

func TestNewEmbedder_OllamaDown_IsModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	_, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{
		Provider:   "ollama",
		OllamaHost: host,
		Timeout:    time.Second,
	})

	assert.ErrorIs(t, err, mserrors.ErrModelUnavailable)
}

func TestNewGeneratorFromConfig_AppliesSettings(t *testing.T) {
	g := NewGeneratorFromConfig(NewStaticEmbedder(), nil, config.EmbeddingsConfig{
		BatchSize:    4,
		CacheSize:    16,
		ModelVersion: "pinned",
	})

	assert.Equal(t, "pinned", g.ModelVersion())
	assert.Equal(t, 4, g.batchSize)
}
