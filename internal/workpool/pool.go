// Package workpool provides bounded worker pools. The pipeline uses two:
// a per-run pool for channel processing and one process-scoped pool shared by
// every LLM call, because the upstream API has a single real concurrency
// budget no matter which stage or channel issues the call.
package workpool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultLLMConcurrency is the shared pool size when none is configured.
const DefaultLLMConcurrency = 20

// Pool is a bounded concurrency limiter. A queued task blocks in Acquire
// until a slot frees up; there is no polling.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a pool with the given slot count. Non-positive sizes are a
// programmer error and fail fast.
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}, nil
}

// Acquire blocks until a slot is free or the context is done.
func (p *Pool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Release returns a slot to the pool.
func (p *Pool) Release() {
	p.sem.Release(1)
}

// Size returns the pool's slot count.
func (p *Pool) Size() int {
	return int(p.size)
}

// Result pairs one task's value with its error. Failures stay isolated to
// their index; they never cancel sibling tasks.
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn over items concurrently under the pool and returns results
// index-correlated with the input, regardless of completion order.
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			if err := p.Acquire(ctx); err != nil {
				results[i].Err = err
				return
			}
			defer p.Release()
			results[i].Value, results[i].Err = fn(ctx, item)
		}(i, item)
	}
	wg.Wait()
	return results
}

var (
	sharedMu   sync.Mutex
	shared     *Pool
	sharedSize = DefaultLLMConcurrency
)

// SetSharedSize configures the shared pool size. Takes effect on the next
// Shared call after a reset, or immediately if the pool was never built.
func SetSharedSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("shared pool size must be positive, got %d", size)
	}
	sharedMu.Lock()
	defer sharedMu.Unlock()
	sharedSize = size
	if shared != nil && shared.Size() != size {
		shared = nil
	}
	return nil
}

// Shared returns the process-scoped LLM pool, building it on first use.
func Shared() *Pool {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared, _ = New(sharedSize)
	}
	return shared
}

// ResetShared drops the shared pool and restores the default size. Tests use
// this to get a fresh pool per case.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	shared = nil
	sharedSize = DefaultLLMConcurrency
}
