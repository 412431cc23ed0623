package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	weatherPoolWorkers = 10
	weatherPoolQueue   = 25
	generalPoolWorkers = 5
	generalPoolQueue   = 10

	weatherPoolDrain = 30 * time.Second
	generalPoolDrain = 15 * time.Second
)

// pool runs submitted work on a fixed set of workers fed by a bounded queue.
// Submissions are rejected once the queue is full or the pool is draining.
type pool struct {
	name  string
	g     errgroup.Group
	queue chan func()

	mu     sync.RWMutex
	closed bool
}

func newPool(name string, workers, queue int) *pool {
	p := &pool{name: name, queue: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		p.g.Go(func() error {
			for fn := range p.queue {
				fn()
			}
			return nil
		})
	}
	return p
}

func (p *pool) submit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- fn:
		return true
	default:
		return false
	}
}

// drain stops accepting work and waits for queued and running work until timeout or ctx expires.
// It reports whether the pool emptied.
func (p *pool) drain(ctx context.Context, timeout time.Duration) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.g.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
