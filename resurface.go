// Package resurface links notes by meaning as they are written and recalls
// them later as clusters of related memories.
//
// Example usage:
//
//	cfg := resurface.DefaultConfig()
//	cfg.Store.DSN = "memory://"
//	eng, err := resurface.Open(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	note, links, err := eng.CreateAndLink(ctx, "Tomatoes want water every morning")
//	clusters, err := eng.Recall(ctx, "what does the garden need?", 10)
package resurface

import (
	"log/slog"
	"net/http"

	"github.com/hubenschmidt/go-resurface/config"
	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/editor"
	"github.com/hubenschmidt/go-resurface/embedding"
	"github.com/hubenschmidt/go-resurface/engine"
	"github.com/hubenschmidt/go-resurface/server"
	"github.com/hubenschmidt/go-resurface/store"
)

// Core type aliases
type (
	Note        = core.Note
	MemoryLink  = core.MemoryLink
	ScoredNote  = core.ScoredNote
	Cluster     = core.Cluster
	RelatedNote = core.RelatedNote
	Graph       = core.Graph
	OpError     = core.OpError
)

// Error kinds, matched with errors.Is.
var (
	ErrEmbeddingProvider = core.ErrEmbeddingProvider
	ErrVectorStore       = core.ErrVectorStore
	ErrNotFound          = core.ErrNotFound
	ErrInvalidInput      = core.ErrInvalidInput
	ErrTimeout           = core.ErrTimeout
)

// Configuration aliases
type Config = config.Config

// DefaultConfig returns settings that run fully offline.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML file over the defaults and applies RESURFACE_*
// environment overrides. An empty path uses defaults and environment only.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Engine aliases
type (
	Engine         = engine.Engine
	EngineConfig   = engine.Config
	EngineDeps     = engine.Deps
	BackfillResult = engine.BackfillResult
	MetricsSummary = engine.MetricsSummary
)

// NewEngine builds an engine from explicit collaborators.
func NewEngine(cfg EngineConfig, deps EngineDeps) (*Engine, error) {
	return engine.New(cfg, deps)
}

// Open builds an engine with the provider, cache and store named in cfg.
func Open(cfg Config, logger *slog.Logger) (*Engine, error) {
	return engine.FromConfig(cfg, logger)
}

// Store and embedding aliases
type (
	Store             = store.Store
	EmbeddingProvider = embedding.Provider
	EmbeddingCache    = embedding.Cache
)

// OpenStore creates a store from a DSN; see store.Open.
func OpenStore(dsn string, dimension int) (Store, error) {
	return store.Open(dsn, dimension)
}

// NewEmbeddingCache memoizes provider calls by exact text.
func NewEmbeddingCache(p EmbeddingProvider, maxEntries int) (*EmbeddingCache, error) {
	return embedding.NewCache(p, embedding.CacheConfig{MaxEntries: maxEntries})
}

// Server aliases
type (
	Server       = server.Server
	ServerConfig = server.Config
)

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	return server.New(cfg)
}

// EditorHandler returns an http.Handler that serves the embedded web UI.
func EditorHandler() http.Handler {
	return editor.Handler()
}
