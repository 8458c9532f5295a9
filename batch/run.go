package batch

import (
	"context"
	"sync"

	"github.com/Laisky/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fuchsia74/grok-api/common/logger"
)

// Worker processes one batch item and returns its payload. A non-nil error
// marks the item failed.
type Worker func(ctx context.Context, item string) (any, error)

// ItemResult is the recorded outcome of one item.
type ItemResult struct {
	Ok        bool   `json:"ok"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Options tunes a batch run.
type Options struct {
	// MaxConcurrent caps in-flight workers across the whole run.
	MaxConcurrent int
	// BatchSize chunks dispatch; cancellation is re-checked between chunks.
	BatchSize int
	// OnItem is invoked after each item completes, typically wired to
	// Task.Record. It is not called for items skipped by cancellation.
	OnItem func(item string, res ItemResult)
	// Cancelled is polled before each item and between chunks.
	Cancelled func() bool
}

// Run fans worker over items with bounded concurrency and returns the result
// per item. Once cancellation is observed, the remaining items are marked
// cancelled instead of dispatched, so every input item has an entry in the
// returned map.
func Run(ctx context.Context, items []string, worker Worker, opts Options) map[string]ItemResult {
	maxConcurrent := max(1, opts.MaxConcurrent)
	batchSize := max(1, opts.BatchSize)
	cancelled := func() bool { return opts.Cancelled != nil && opts.Cancelled() }

	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make(map[string]ItemResult, len(items))
	var mu sync.Mutex

	store := func(item string, res ItemResult) {
		mu.Lock()
		results[item] = res
		mu.Unlock()
	}

	runOne := func(item string) {
		if cancelled() {
			store(item, ItemResult{Error: "cancelled", Cancelled: true})
			return
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			store(item, ItemResult{Error: "cancelled", Cancelled: true})
			return
		}
		data, err := worker(ctx, item)
		sem.Release(1)

		var res ItemResult
		if err != nil {
			logger.Logger.Warn("batch item failed",
				zap.String("item", itemLabel(item)),
				zap.Error(err))
			res = ItemResult{Error: err.Error()}
		} else {
			res = ItemResult{Ok: true, Data: data}
		}
		if opts.OnItem != nil {
			opts.OnItem(item, res)
		}
		store(item, res)
	}

	for start := 0; start < len(items); start += batchSize {
		if cancelled() {
			for _, item := range items[start:] {
				store(item, ItemResult{Error: "cancelled", Cancelled: true})
			}
			break
		}
		var wg sync.WaitGroup
		for _, item := range items[start:min(start+batchSize, len(items))] {
			wg.Add(1)
			go func(item string) {
				defer wg.Done()
				runOne(item)
			}(item)
		}
		wg.Wait()
	}
	return results
}

// itemLabel shortens an item for logs; items are usually session tokens.
func itemLabel(item string) string {
	if len(item) > 16 {
		return item[:16] + "..."
	}
	return item
}
