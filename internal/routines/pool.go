// Package routines provides a bounded pool of goroutines.
package routines

import "sync"

// Pool runs queued functions concurrently in a fixed number of goroutines.
type Pool struct {
	work chan func()
	wg   sync.WaitGroup

	lock   sync.Mutex
	closed bool
}

// NewPool starts a pool with workers goroutines.
// workers must be >0.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		panic("routines: workers must be >0")
	}

	p := Pool{
		work: make(chan func()),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return &p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for fn := range p.work {
		fn()
	}
}

// Queue schedules fn for execution. It blocks until a worker picked it up.
// Calling Queue after Wait panics.
func (p *Pool) Queue(fn func()) {
	p.lock.Lock()
	closed := p.closed
	p.lock.Unlock()

	if closed {
		panic("routines: Queue called after Wait")
	}

	p.work <- fn
}

// Wait waits until all queued functions finished and terminates the
// goroutines of the pool.
func (p *Pool) Wait() {
	p.lock.Lock()
	if !p.closed {
		p.closed = true
		close(p.work)
	}
	p.lock.Unlock()

	p.wg.Wait()
}
