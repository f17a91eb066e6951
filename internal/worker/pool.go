package worker

import (
	"context"
	"sync"
)

// Pool runs independent workers over a shared request channel. Each worker
// handles one request at a time; responses arrive in completion order.
type Pool struct {
	workers []*Worker
}

// NewPool creates n workers with newWorker. n below 1 means 1.
func NewPool(n int, newWorker func() *Worker) *Pool {
	n = max(n, 1)
	p := &Pool{workers: make([]*Worker, n)}
	for i := range n {
		p.workers[i] = newWorker()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Run feeds requests to the workers until requests is closed or ctx is
// done, then waits for in-flight requests to finish. Run does not close
// responses.
func (p *Pool) Run(ctx context.Context, requests <-chan Request, responses chan<- Response) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case req, ok := <-requests:
					if !ok {
						return
					}
					resp := w.Handle(ctx, req)
					select {
					case responses <- resp:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
