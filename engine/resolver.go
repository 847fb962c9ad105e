package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hubenschmidt/go-resurface/config"
	"github.com/hubenschmidt/go-resurface/embedding"
	"github.com/hubenschmidt/go-resurface/linking"
	"github.com/hubenschmidt/go-resurface/llm"
	"github.com/hubenschmidt/go-resurface/monitor"
	"github.com/hubenschmidt/go-resurface/recall"
	"github.com/hubenschmidt/go-resurface/store"
)

// ConfigFrom maps application settings onto engine settings.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		Linking: linking.Config{
			TopK:                cfg.Linking.TopK,
			SimilarityThreshold: cfg.Linking.SimilarityThreshold,
		},
		Scorer: recall.ScorerConfig{
			CandidateFactor: cfg.Recall.CandidateFactor,
			AgeWeight:       cfg.Recall.AgeWeight,
		},
		Cluster: recall.ClusterConfig{
			MinLinkStrength: cfg.Recall.MinLinkStrength,
			SoftCap:         cfg.Recall.ClusterSoftCap,
		},
		OperationTimeout: cfg.Timeouts.Operation,
		MaxRecallLimit:   cfg.Recall.MaxLimit,
	}
}

// ResolveLabeler picks the cluster labeler named in the recall settings.
func ResolveLabeler(cfg config.RecallConfig) recall.Labeler {
	if cfg.Labeler == config.LabelerAnthropic {
		return llm.NewAnthropicLabeler(llm.Options{
			APIKey: cfg.LabelerAPIKey,
			Model:  cfg.LabelerModel,
		})
	}
	return recall.TruncateLabeler{Length: cfg.LabelLength}
}

// FromConfig opens the configured provider, cache and store and builds an
// engine over them with an in-memory metrics collector.
func FromConfig(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := embedding.NewProvider(embedding.ProviderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, err
	}
	if op, ok := provider.(*embedding.OllamaProvider); ok {
		warnMissingModel(op, logger)
	}

	cache, err := embedding.NewCache(provider, embedding.CacheConfig{
		MaxEntries: cfg.Embedding.CacheMaxEntries,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	dimension := cfg.StoreDimension()
	if cfg.Store.Dimension == 0 && provider.Dimensions() > 0 {
		dimension = provider.Dimensions()
	}
	st, err := store.Open(cfg.Store.DSN, dimension)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("store opened", "component", "store", "kind", store.Kind(cfg.Store.DSN), "dimension", dimension)

	eng, err := New(ConfigFrom(cfg), Deps{
		Store:     st,
		Cache:     cache,
		Labeler:   ResolveLabeler(cfg.Recall),
		Collector: monitor.NewInMemoryCollector(),
		Logger:    logger,
	})
	if err != nil {
		cache.Close()
		st.Close()
		return nil, err
	}
	return eng, nil
}

// warnMissingModel logs when the Ollama model is not pulled or the instance
// cannot be asked. Startup continues either way.
func warnMissingModel(p *embedding.OllamaProvider, logger *slog.Logger) {
	ok, err := p.HasModel(context.Background())
	switch {
	case err != nil:
		logger.Warn("ollama model check failed", "component", "embedding", "model", p.Model(), "error", err)
	case !ok:
		logger.Warn("ollama model not pulled", "component", "embedding", "model", p.Model(), "hint", "ollama pull "+p.Model())
	}
}
