package subrize

import (
	"runtime"
	"sync"
)

// executor runs n independent tasks and returns once all have finished. Tasks
// only write to their own result slot, so implementations need no locking;
// the call itself is the synchronization barrier.
type executor interface {
	run(n, chunkSize int, task func(i int))
}

// serialExecutor runs every task inline on the calling goroutine.
type serialExecutor struct{}

func (serialExecutor) run(n, chunkSize int, task func(i int)) {
	for i := 0; i < n; i++ {
		task(i)
	}
}

// poolExecutor fans chunks of tasks out over a fixed number of goroutines.
type poolExecutor struct {
	workers int
}

func newPoolExecutor(workers int) poolExecutor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return poolExecutor{workers}
}

func (p poolExecutor) run(n, chunkSize int, task func(i int)) {
	if n == 0 {
		return
	}
	if chunkSize < 1 {
		chunkSize = 1
	}

	chunks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range chunks {
				end := start + chunkSize
				if end > n {
					end = n
				}
				for i := start; i < end; i++ {
					task(i)
				}
			}
		}()
	}
	for start := 0; start < n; start += chunkSize {
		chunks <- start
	}
	close(chunks)
	wg.Wait()
}
