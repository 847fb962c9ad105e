package engine

import (
	"context"
	"time"

	"github.com/hubenschmidt/go-resurface/monitor"
)

// run executes fn under the operation timeout and records its metrics. fn
// reports how many items it produced.
func (e *Engine) run(ctx context.Context, op string, fn func(context.Context) (int, error)) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OperationTimeout)
	defer cancel()

	start := time.Now()
	items, err := fn(ctx)
	elapsed := time.Since(start)

	m := monitor.OpMetrics{
		Op:       op,
		Duration: elapsed,
		Success:  err == nil,
		Items:    items,
	}
	if err != nil {
		m.Error = err.Error()
		e.logger.Warn("operation failed", "op", op, "duration", elapsed, "error", err)
	} else {
		e.logger.Debug("operation complete", "op", op, "duration", elapsed, "items", items)
	}
	e.collector.Record(m)
	return err
}
