// Package monitor records per-operation counts and latencies in memory.
package monitor

import (
	"sync"
	"time"
)

type Collector interface {
	Record(m OpMetrics)
	Flush() Summary
}

type InMemoryCollector struct {
	mu        sync.RWMutex
	ops       map[string]OpSummary
	startTime time.Time
}

func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		ops:       make(map[string]OpSummary),
		startTime: time.Now(),
	}
}

func (c *InMemoryCollector) Record(m OpMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.ops[m.Op]
	s.Op = m.Op
	s.Count++
	s.Items += m.Items
	s.TotalDuration += m.Duration
	s.MaxDuration = max(s.MaxDuration, m.Duration)
	if !m.Success {
		s.Errors++
		s.LastError = m.Error
	}
	c.ops[m.Op] = s
}

func (c *InMemoryCollector) Flush() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make(map[string]OpSummary, len(c.ops))
	for k, v := range c.ops {
		if v.Count > 0 {
			v.AvgDuration = v.TotalDuration / time.Duration(v.Count)
		}
		ops[k] = v
	}

	return Summary{
		Ops:       ops,
		StartTime: c.startTime,
		EndTime:   time.Now(),
	}
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = make(map[string]OpSummary)
	c.startTime = time.Now()
}

type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (c *NoOpCollector) Record(m OpMetrics) {}

func (c *NoOpCollector) Flush() Summary {
	return Summary{}
}
