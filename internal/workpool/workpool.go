// Package workpool provides a bounded pool of workers that can be shared
// by nested levels of fan-out without oversubscribing or deadlocking.
//
// Outer levels take a worker with Acquire and block until one is free.
// Inner levels submit work through a Group: a task runs on its own
// goroutine when a worker is free, and on the submitting goroutine
// otherwise.
package workpool

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool limits the number of goroutines doing work at the same time
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a pool of n workers. n < 1 means GOMAXPROCS workers.
func New(n int) *Pool {
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// Acquire blocks until a worker is available or ctx is done.
// Each successful Acquire must be matched by a Release.
func (p *Pool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Release returns a worker obtained with Acquire
func (p *Pool) Release() {
	p.sem.Release(1)
}

// Group collects tasks submitted to a pool so they can be waited for
type Group struct {
	pool *Pool
	wg   sync.WaitGroup

	mu       sync.Mutex
	panicked bool
	panicVal any
}

// Group returns a new, empty task group. A nil pool runs every task on
// the submitting goroutine.
func (p *Pool) Group() *Group {
	return &Group{pool: p}
}

// Go runs fn on a free worker, or on the calling goroutine if all
// workers are busy. A panic in fn reaches the submitting goroutine:
// directly when fn runs inline, from Wait otherwise.
func (g *Group) Go(fn func()) {
	if g.pool == nil || !g.pool.sem.TryAcquire(1) {
		fn()
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.pool.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				g.setPanic(r)
			}
		}()
		fn()
	}()
}

// setPanic keeps the first panic value of the group
func (g *Group) setPanic(r any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.panicked {
		g.panicked = true
		g.panicVal = r
	}
}

// Wait blocks until all tasks submitted with Go have finished. If a task
// that ran on a worker panicked, Wait panics with the first such value.
func (g *Group) Wait() {
	g.wg.Wait()
	g.mu.Lock()
	panicked, r := g.panicked, g.panicVal
	g.mu.Unlock()
	if panicked {
		panic(r)
	}
}
