// Package config provides the configuration schema and loader for the
// Astinus turn orchestration server.
package config

// LogLevel controls log verbosity for the Astinus server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Astinus.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Search    SearchConfig    `yaml:"search"`
	Packs     PacksConfig     `yaml:"packs"`
	Sessions  SessionsConfig  `yaml:"sessions"`
}

// ServerConfig holds network and logging settings for the Astinus server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares the model providers used by the turn pipeline.
type ProvidersConfig struct {
	// LLM is the primary completion provider used for gating, NPC voices,
	// and pacing analysis.
	LLM ProviderEntry `yaml:"llm"`

	// Fallbacks are tried in order when the primary LLM provider fails or
	// its circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Embeddings is the provider used to embed snippet content and queries
	// for vector retrieval. Optional; without it retrieval runs keyword-only.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "anthropic", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`
}

// SearchConfig configures the vector search backend.
type SearchConfig struct {
	// PostgresDSN is the connection string for the pgvector-enabled database.
	// When empty, vector retrieval is disabled and the ranker runs on
	// keyword matching alone.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the width of the stored embedding vectors.
	// Must match the embedding model's output. Defaults to 1536.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// PacksConfig locates the knowledge packs served to sessions.
type PacksConfig struct {
	// Dir is the directory scanned for pack YAML files.
	Dir string `yaml:"dir"`

	// Default names the pack assigned to new sessions that do not request
	// one explicitly.
	Default string `yaml:"default"`
}

// SessionsConfig holds per-session defaults.
type SessionsConfig struct {
	// DefaultLanguage is the narration language for sessions that do not
	// set one (e.g., "en", "zh").
	DefaultLanguage string `yaml:"default_language"`

	// MaxActive caps the number of concurrent sessions. Zero means no cap.
	MaxActive int `yaml:"max_active"`
}
