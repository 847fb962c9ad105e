package config

import (
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides settings from RESURFACE_* variables. DATABASE_URL and
// OLLAMA_URL are honored when the RESURFACE_ form is unset. Unparseable
// numbers are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) {
		if v, err := strconv.Atoi(getenv(key)); err == nil {
			*dst = v
		}
	}
	float := func(dst *float64, key string) {
		if v, err := strconv.ParseFloat(getenv(key), 64); err == nil {
			*dst = v
		}
	}
	duration := func(dst *time.Duration, key string) {
		if v, err := time.ParseDuration(getenv(key)); err == nil {
			*dst = v
		}
	}

	str(&c.Server.Addr, "RESURFACE_ADDR")
	if v := getenv("RESURFACE_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	str(&c.Store.DSN, "RESURFACE_STORE_DSN", "DATABASE_URL")
	num(&c.Store.Dimension, "RESURFACE_STORE_DIMENSION")

	str(&c.Embedding.Provider, "RESURFACE_EMBEDDING_PROVIDER")
	str(&c.Embedding.Model, "RESURFACE_EMBEDDING_MODEL")
	if c.Embedding.Provider == "ollama" {
		str(&c.Embedding.BaseURL, "RESURFACE_EMBEDDING_BASE_URL", "OLLAMA_URL")
	} else {
		str(&c.Embedding.BaseURL, "RESURFACE_EMBEDDING_BASE_URL")
	}
	str(&c.Embedding.APIKey, "RESURFACE_EMBEDDING_API_KEY")
	num(&c.Embedding.Dimension, "RESURFACE_EMBEDDING_DIMENSION")
	num(&c.Embedding.CacheMaxEntries, "RESURFACE_EMBEDDING_CACHE_MAX_ENTRIES")

	num(&c.Linking.TopK, "RESURFACE_LINKING_TOP_K")
	float(&c.Linking.SimilarityThreshold, "RESURFACE_LINKING_SIMILARITY_THRESHOLD")

	num(&c.Recall.CandidateFactor, "RESURFACE_RECALL_CANDIDATE_FACTOR")
	float(&c.Recall.AgeWeight, "RESURFACE_RECALL_AGE_WEIGHT")
	float(&c.Recall.MinLinkStrength, "RESURFACE_RECALL_MIN_LINK_STRENGTH")
	num(&c.Recall.ClusterSoftCap, "RESURFACE_RECALL_CLUSTER_SOFT_CAP")
	num(&c.Recall.LabelLength, "RESURFACE_RECALL_LABEL_LENGTH")
	num(&c.Recall.MaxLimit, "RESURFACE_RECALL_MAX_LIMIT")
	str(&c.Recall.Labeler, "RESURFACE_RECALL_LABELER")
	str(&c.Recall.LabelerModel, "RESURFACE_RECALL_LABELER_MODEL")
	str(&c.Recall.LabelerAPIKey, "RESURFACE_RECALL_LABELER_API_KEY")

	duration(&c.Timeouts.Operation, "RESURFACE_OPERATION_TIMEOUT")

	str(&c.Log.Level, "RESURFACE_LOG_LEVEL")
	str(&c.Log.Format, "RESURFACE_LOG_FORMAT")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
