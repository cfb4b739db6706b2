package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dillonfkhanna/multi-search/internal/config"
	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses the Ollama HTTP API (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings: offline and deterministic
	ProviderStatic ProviderType = "static"

	// ProviderCustom labels embedders supplied directly by the caller
	ProviderCustom ProviderType = "custom"
)

// ParseProvider maps a config value to a provider. Empty selects Ollama.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ProviderOllama):
		return ProviderOllama, nil
	case string(ProviderStatic):
		return ProviderStatic, nil
	default:
		return "", mserrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", s), nil)
	}
}

// NewEmbedder creates the embedder selected by cfg. There is no silent
// fallback between providers: an unreachable Ollama is reported as
// ModelUnavailable and the caller decides whether to run keyword-only.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case ProviderStatic:
		return NewStaticEmbedder(), nil
	default:
		ocfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ocfg.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			ocfg.Model = cfg.Model
		}
		if cfg.FallbackModels != nil {
			ocfg.FallbackModels = cfg.FallbackModels
		}
		if cfg.BatchSize > 0 {
			ocfg.BatchSize = cfg.BatchSize
		}
		if cfg.Timeout > 0 {
			ocfg.Timeout = cfg.Timeout
		}

		embedder, err := NewOllamaEmbedder(ctx, ocfg)
		if err != nil {
			slog.Warn("embedder_unavailable",
				slog.String("provider", string(provider)),
				slog.String("model", ocfg.Model),
				slog.String("error", err.Error()))
			return nil, mserrors.ModelUnavailable(ocfg.Model, err)
		}
		return embedder, nil
	}
}

// NewGeneratorFromConfig wraps embedder with the batching, cache and model
// version settings from cfg.
func NewGeneratorFromConfig(embedder Embedder, cache Cache, cfg config.EmbeddingsConfig) *Generator {
	return NewGenerator(embedder,
		WithCache(cache),
		WithBatchSize(cfg.BatchSize),
		WithLRUSize(cfg.CacheSize),
		WithModelVersion(cfg.ModelVersion))
}
