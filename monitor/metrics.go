package monitor

import "time"

// OpMetrics is one completed engine operation.
type OpMetrics struct {
	Op       string        `json:"op"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	// Items counts what the operation produced: links created, clusters
	// returned, notes embedded.
	Items int `json:"items"`
}

// OpSummary aggregates every recorded run of one operation.
type OpSummary struct {
	Op            string        `json:"op"`
	Count         int           `json:"count"`
	Errors        int           `json:"errors"`
	Items         int           `json:"items"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	LastError     string        `json:"last_error,omitempty"`
}

// Summary is a snapshot of all operations since start or the last reset.
type Summary struct {
	Ops       map[string]OpSummary `json:"ops"`
	StartTime time.Time            `json:"start_time"`
	EndTime   time.Time            `json:"end_time"`
}
