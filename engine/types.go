package engine

import (
	"github.com/hubenschmidt/go-resurface/embedding"
	"github.com/hubenschmidt/go-resurface/monitor"
)

// BackfillResult reports one EmbedPending pass.
type BackfillResult struct {
	Embedded int `json:"embedded"`
	Links    int `json:"links_created"`
	// Skipped counts notes embedded concurrently by another writer.
	Skipped int `json:"skipped"`
}

type MetricsSummary struct {
	monitor.Summary
	Cache embedding.Stats `json:"cache"`
}
