// Package config loads resurface settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Linking   LinkingConfig   `yaml:"linking"`
	Recall    RecallConfig    `yaml:"recall"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type StoreConfig struct {
	// DSN selects the backend: empty for SQLite at data/resurface.db,
	// memory://, chromem://, postgres://..., or a SQLite path.
	DSN string `yaml:"dsn"`
	// Dimension fixes the pgvector column width. Zero uses the embedding
	// dimension.
	Dimension int `yaml:"dimension"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	// Dimension is the embedding width. Zero uses the provider's default
	// for the model.
	Dimension int `yaml:"dimension"`
	// CacheMaxEntries bounds the embedding cache; zero is unbounded.
	CacheMaxEntries int `yaml:"cache_max_entries"`
}

type LinkingConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type RecallConfig struct {
	CandidateFactor int     `yaml:"candidate_factor"`
	AgeWeight       float64 `yaml:"age_weight"`
	MinLinkStrength float64 `yaml:"min_link_strength"`
	ClusterSoftCap  int     `yaml:"cluster_soft_cap"`
	LabelLength     int     `yaml:"label_length"`
	MaxLimit        int     `yaml:"max_limit"`
	// Labeler is "truncate" or "anthropic".
	Labeler       string `yaml:"labeler"`
	LabelerModel  string `yaml:"labeler_model"`
	LabelerAPIKey string `yaml:"labeler_api_key"`
}

type TimeoutsConfig struct {
	Operation time.Duration `yaml:"operation"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs fully offline: SQLite storage
// and hash embeddings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"*"},
		},
		Embedding: EmbeddingConfig{
			Provider: "hash",
		},
		Linking: LinkingConfig{
			TopK:                10,
			SimilarityThreshold: 0.7,
		},
		Recall: RecallConfig{
			CandidateFactor: 2,
			AgeWeight:       0.1,
			MinLinkStrength: 0.75,
			ClusterSoftCap:  5,
			LabelLength:     30,
			MaxLimit:        50,
			Labeler:         LabelerTruncate,
		},
		Timeouts: TimeoutsConfig{
			Operation: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StoreDimension is the embedding width the store is created with.
func (c Config) StoreDimension() int {
	if c.Store.Dimension > 0 {
		return c.Store.Dimension
	}
	return c.Embedding.Dimension
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Store.Dimension >= 0, "store.dimension must not be negative")

	_, ok := providers[c.Embedding.Provider]
	check(ok, "embedding.provider %q is not one of hash, ollama, openai", c.Embedding.Provider)
	check(c.Embedding.Dimension >= 0, "embedding.dimension must not be negative")
	check(c.Embedding.CacheMaxEntries >= 0, "embedding.cache_max_entries must not be negative")

	check(c.Linking.TopK > 0, "linking.top_k must be positive")
	check(c.Linking.SimilarityThreshold > 0 && c.Linking.SimilarityThreshold <= 1,
		"linking.similarity_threshold must be in (0,1]")

	check(c.Recall.CandidateFactor >= 1, "recall.candidate_factor must be at least 1")
	check(c.Recall.AgeWeight >= 0, "recall.age_weight must not be negative")
	check(c.Recall.MinLinkStrength > 0 && c.Recall.MinLinkStrength <= 1,
		"recall.min_link_strength must be in (0,1]")
	check(c.Recall.ClusterSoftCap >= 1, "recall.cluster_soft_cap must be at least 1")
	check(c.Recall.LabelLength >= 1, "recall.label_length must be at least 1")
	check(c.Recall.MaxLimit >= 1, "recall.max_limit must be at least 1")
	_, ok = labelers[c.Recall.Labeler]
	check(ok, "recall.labeler %q is not one of truncate, anthropic", c.Recall.Labeler)

	check(c.Timeouts.Operation > 0, "timeouts.operation must be positive")

	_, ok = ParseLevel(c.Log.Level)
	check(ok, "log.level %q is not one of debug, info, warn, error", c.Log.Level)
	_, ok = formats[c.Log.Format]
	check(ok, "log.format %q is not one of text, json", c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
