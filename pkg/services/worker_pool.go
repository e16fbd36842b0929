package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig configures the scan worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum tables scanned at once (default: 1)
}

// WorkerPool runs table scans with bounded parallelism.
// It uses a semaphore to limit outstanding queries per scan.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a new scan worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("scan-worker-pool"),
	}
}

// WorkItem represents a unit of work to be processed.
type WorkItem[T any] struct {
	ID      string                               // For logging/tracking
	Execute func(ctx context.Context) (T, error) // The work to be executed
}

// WorkResult represents the result of a work item.
type WorkResult[T any] struct {
	Index  int // Position of the item in the submitted slice
	ID     string
	Result T
	Err    error
}

// Process executes all work items with bounded parallelism and returns the results
// in submission order. onDone, if set, is called from a single goroutine as each
// item completes, in completion order. Processing continues when items fail.
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
	onDone func(result WorkResult[T], completed, total int),
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], len(items))
	resultsChan := make(chan WorkResult[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item WorkItem[T]) {
			defer wg.Done()

			// Acquire semaphore slot (blocks if at max concurrency)
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultsChan <- WorkResult[T]{Index: i, ID: item.ID, Err: ctx.Err()}
				return
			}

			result, err := item.Execute(ctx)
			resultsChan <- WorkResult[T]{Index: i, ID: item.ID, Result: result, Err: err}
		}(i, item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	completed := 0
	for result := range resultsChan {
		results[result.Index] = result
		completed++
		if onDone != nil {
			onDone(result, completed, len(items))
		}
	}

	pool.logger.Debug("Processed work items",
		zap.Int("count", len(items)),
		zap.Int("max_concurrent", pool.config.MaxConcurrent))
	return results
}
