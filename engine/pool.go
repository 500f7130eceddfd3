package engine

import (
	"context"
	"runtime"
	"sync"
)

func (e *Engine) workers() int {
	if e.opts.Workers > 0 {
		return e.opts.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Result pairs a request's report with its error; exactly one is set.
type Result struct {
	Report *Report
	Err    error
}

// HighlightAll processes requests concurrently on a bounded worker
// pool and returns results in request order. One file failing does
// not stop the rest; a canceled context does.
func (e *Engine) HighlightAll(ctx context.Context, reqs []Request) []Result {
	workers := e.workers()
	if workers > len(reqs) {
		workers = len(reqs)
	}

	results := make([]Result, len(reqs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i] = Result{Err: err}
					continue
				}
				rep, err := e.Highlight(ctx, reqs[i])
				results[i] = Result{Report: rep, Err: err}
			}
		}()
	}
	for i := range reqs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
