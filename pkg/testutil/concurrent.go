// Package testutil holds small helpers shared by concurrency tests.
package testutil

import (
	"sync"
	"sync/atomic"
)

// RunConcurrent executes fn in parallel goroutines and reports how many calls
// succeeded alongside every error. It replaces the WaitGroup-plus-counters
// boilerplate in race tests such as invitation redemption.
func RunConcurrent(goroutines int, fn func(idx int) error) (successes int, errs []error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successCount atomic.Int32
	collected := make([]error, 0)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := fn(idx); err != nil {
				mu.Lock()
				collected = append(collected, err)
				mu.Unlock()
				return
			}
			successCount.Add(1)
		}(i)
	}

	wg.Wait()
	return int(successCount.Load()), collected
}
