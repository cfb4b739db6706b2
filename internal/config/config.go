package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
)

// ProjectConfigName is the per-directory config file picked up by Load.
const ProjectConfigName = ".multisearch.yaml"

// Config represents the complete multisearch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StorageConfig locates the persisted index.
type StorageConfig struct {
	// Root is the index root directory (storageRoot).
	Root string `yaml:"root" json:"root"`

	// KeywordBackend selects the keyword index: "bleve" (default) or "sqlite" (FTS5).
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`
}

// ChunkingConfig controls how documents are split. Chunk ids derive from
// offsets, so changing either value invalidates every stored document.
type ChunkingConfig struct {
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars"`
	OverlapChars  int `yaml:"overlap_chars" json:"overlap_chars"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	// FallbackModels are tried in order when Model is not installed.
	FallbackModels []string `yaml:"fallback_models" json:"fallback_models"`

	// ModelVersion pins the version recorded with every vector.
	// Empty derives "<provider>:<model>:<dimensions>".
	ModelVersion string `yaml:"model_version" json:"model_version"`

	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize is the number of vectors held in the in-memory LRU layer.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures query-time fusion.
// Weights are configurable via:
//  1. User config (~/.config/multisearch/config.yaml)
//  2. Project config (.multisearch.yaml)
//  3. Env vars (MULTISEARCH_KEYWORD_WEIGHT, MULTISEARCH_SEMANTIC_WEIGHT)
type SearchConfig struct {
	// FusionMethod is "minmax" (default) or "rrf".
	FusionMethod string `yaml:"fusion_method" json:"fusion_method"`

	// KeywordWeight and SemanticWeight must sum to 1.0.
	KeywordWeight  float64 `yaml:"keyword_weight" json:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the k in 1/(k+rank) when FusionMethod is "rrf".
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// RecencyWeight blends document age into the fused score (0 disables).
	RecencyWeight float64 `yaml:"recency_weight" json:"recency_weight"`

	ResultLimitDefault int           `yaml:"result_limit_default" json:"result_limit_default"`
	MaxResultLimit     int           `yaml:"max_result_limit" json:"max_result_limit"`
	Timeout            time.Duration `yaml:"timeout" json:"timeout"`
	SnippetChars       int           `yaml:"snippet_chars" json:"snippet_chars"`

	// CollapseDocuments keeps only the best chunk per document.
	CollapseDocuments bool `yaml:"collapse_documents" json:"collapse_documents"`
}

// IngestConfig configures ingestion passes and the bundled directory scanner.
type IngestConfig struct {
	Workers     int           `yaml:"workers" json:"workers"`
	Extensions  []string      `yaml:"extensions" json:"extensions"`
	ExcludeDirs []string      `yaml:"exclude_dirs" json:"exclude_dirs"`
	MaxFileSize int64         `yaml:"max_file_size" json:"max_file_size"`
	Debounce    time.Duration `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

var defaultExtensions = []string{
	".txt", ".md", ".markdown", ".rst", ".org",
	".html", ".htm", ".pdf", ".docx",
	".go", ".py", ".js", ".ts", ".rs", ".java", ".c", ".h", ".cpp", ".rb", ".sh",
	".json", ".yaml", ".yml", ".toml", ".ini", ".csv",
}

var defaultExcludeDirs = []string{
	".git", "node_modules", "vendor", "__pycache__", "dist", "build", ".multisearch",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}

	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Root:           DefaultStorageRoot(),
			KeywordBackend: "bleve",
		},
		Chunking: ChunkingConfig{
			MaxChunkChars: 1000,
			OverlapChars:  200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BatchSize: 32,
			Timeout:   30 * time.Second,
			CacheSize: 4096,
		},
		Search: SearchConfig{
			FusionMethod:       "minmax",
			KeywordWeight:      0.5,
			SemanticWeight:     0.5,
			RRFConstant:        60,
			RecencyWeight:      0,
			ResultLimitDefault: 20,
			MaxResultLimit:     100,
			Timeout:            2 * time.Second,
			SnippetChars:       160,
			CollapseDocuments:  true,
		},
		Ingest: IngestConfig{
			Workers:     workers,
			Extensions:  append([]string(nil), defaultExtensions...),
			ExcludeDirs: append([]string(nil), defaultExcludeDirs...),
			MaxFileSize: 10 << 20,
			Debounce:    500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DefaultStorageRoot returns ~/.multisearch/index.
func DefaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".multisearch", "index")
	}
	return filepath.Join(home, ".multisearch", "index")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/multisearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/multisearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "multisearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "multisearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "multisearch", "config.yaml")
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/multisearch/config.yaml)
//  3. Project config (.multisearch.yaml in dir)
//  4. Environment variables (MULTISEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, mserrors.ConfigError("invalid configuration", err)
	}

	return cfg, nil
}

// loadYAML decodes path on top of the current values, so keys absent from the
// file keep whatever the previous layer set.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MULTISEARCH_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("MULTISEARCH_KEYWORD_BACKEND"); v != "" {
		c.Storage.KeywordBackend = v
	}
	if v := os.Getenv("MULTISEARCH_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("MULTISEARCH_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("MULTISEARCH_FUSION_METHOD"); v != "" {
		c.Search.FusionMethod = v
	}
	if v := os.Getenv("MULTISEARCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MULTISEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MULTISEARCH_MODEL_VERSION"); v != "" {
		c.Embeddings.ModelVersion = v
	}
	if v := os.Getenv("MULTISEARCH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("MULTISEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MULTISEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.Workers = n
		}
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root must be set")
	}
	switch strings.ToLower(c.Storage.KeywordBackend) {
	case "bleve", "sqlite":
	default:
		return fmt.Errorf("storage.keyword_backend must be 'bleve' or 'sqlite', got %q", c.Storage.KeywordBackend)
	}

	if c.Chunking.MaxChunkChars <= 0 {
		return fmt.Errorf("chunking.max_chunk_chars must be positive, got %d", c.Chunking.MaxChunkChars)
	}
	if c.Chunking.OverlapChars < 0 || c.Chunking.OverlapChars >= c.Chunking.MaxChunkChars {
		return fmt.Errorf("chunking.overlap_chars must be in [0, max_chunk_chars), got %d", c.Chunking.OverlapChars)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	switch strings.ToLower(c.Search.FusionMethod) {
	case "minmax", "rrf":
	default:
		return fmt.Errorf("search.fusion_method must be 'minmax' or 'rrf', got %q", c.Search.FusionMethod)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.KeywordWeight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("keyword_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.RecencyWeight < 0 || c.Search.RecencyWeight > 1 {
		return fmt.Errorf("recency_weight must be between 0 and 1, got %f", c.Search.RecencyWeight)
	}
	if c.Search.ResultLimitDefault <= 0 || c.Search.ResultLimitDefault > c.Search.MaxResultLimit {
		return fmt.Errorf("result_limit_default must be in [1, %d], got %d", c.Search.MaxResultLimit, c.Search.ResultLimitDefault)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}

	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
