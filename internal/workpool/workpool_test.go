package workpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultSize(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), New(0).Size())
	assert.Equal(t, 3, New(3).Size())
}

// trackMax records the highest number of concurrently running tasks
type trackMax struct {
	cur, max atomic.Int64
}

func (tm *trackMax) enter() {
	n := tm.cur.Add(1)
	for {
		m := tm.max.Load()
		if n <= m || tm.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (tm *trackMax) leave() {
	tm.cur.Add(-1)
}

func TestGroupBounded(t *testing.T) {
	p := New(2)
	g := p.Group()
	var tm trackMax
	var done atomic.Int64
	for i := 0; i < 20; i++ {
		g.Go(func() {
			tm.enter()
			time.Sleep(time.Millisecond)
			tm.leave()
			done.Add(1)
		})
	}
	g.Wait()
	assert.EqualValues(t, 20, done.Load())
	// Two workers plus the submitting goroutine
	assert.LessOrEqual(t, tm.max.Load(), int64(3))
}

func TestNestedNoDeadlock(t *testing.T) {
	p := New(2)
	ctx := context.Background()
	var tm trackMax
	var done atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Acquire(ctx))
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.Release()
			// All workers are taken by the outer level, inner tasks must
			// still make progress
			g := p.Group()
			for j := 0; j < 10; j++ {
				g.Go(func() {
					tm.enter()
					tm.leave()
					done.Add(1)
				})
			}
			g.Wait()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 60, done.Load())
	assert.LessOrEqual(t, tm.max.Load(), int64(2))
}

func TestAcquireCancel(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Acquire(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Acquire(ctx), context.Canceled)
	p.Release()
}

func TestNilPoolGroup(t *testing.T) {
	var p *Pool
	g := p.Group()
	n := 0
	g.Go(func() { n++ })
	g.Wait()
	assert.Equal(t, 1, n)
}

func TestGroupPanicOnWorker(t *testing.T) {
	p := New(4)
	g := p.Group()
	release := make(chan struct{})
	var done atomic.Int64
	// The first task blocks on a worker until all tasks are submitted,
	// so the panicking task also runs on a worker
	g.Go(func() {
		<-release
		done.Add(1)
	})
	g.Go(func() { panic("bad ion") })
	g.Go(func() { done.Add(1) })
	close(release)
	assert.PanicsWithValue(t, "bad ion", g.Wait)
	// Tasks that did not panic still ran to completion
	assert.EqualValues(t, 2, done.Load())
	// All workers are returned to the pool
	require.True(t, p.sem.TryAcquire(4))
}

func TestGroupPanicInline(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Acquire(context.Background()))
	defer p.Release()
	g := p.Group()
	assert.PanicsWithValue(t, "bad ion", func() {
		g.Go(func() { panic("bad ion") })
	})
	g.Wait()
}
