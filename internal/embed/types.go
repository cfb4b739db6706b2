package embed

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default number of chunks per embedding request
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding request once the model is loaded.
	DefaultTimeout = 60 * time.Second

	// DefaultColdTimeout is used for the first request, when the backend may
	// still be loading the model into memory.
	DefaultColdTimeout = 120 * time.Second

	// ModelUnloadThreshold is the idle time after which Ollama unloads a model.
	ModelUnloadThreshold = 5 * time.Minute

	// DefaultMaxRetries is the default number of retries for transient failures
	DefaultMaxRetries = 3

	// DefaultDimensions is used when a backend is not probed for its size.
	DefaultDimensions = 768
)

// Static embedder constants
const (
	// StaticDimensions is the embedding dimension for static embedder
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// Embedding is the vector computed for one chunk.
type Embedding struct {
	ChunkID      string
	ContentHash  string
	Vector       []float32 // L2-normalized
	ModelVersion string
}

// ModelVersion formats the identity recorded with every stored vector.
func ModelVersion(provider ProviderType, model string, dims int) string {
	return fmt.Sprintf("%s:%s:%d", provider, model, dims)
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
