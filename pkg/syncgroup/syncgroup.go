// Package syncgroup manages a restartable batch of goroutines. Add queues
// functions, Run launches the batch, WaitAndClear drains it and resets the
// group for the next start/stop cycle.
package syncgroup

import "sync"

type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	fns     []func()
	running int
}

func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add queues fn for the next Run. While a previous batch is still running
// the call is dropped; WaitAndClear first.
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running > 0 {
		return
	}
	g.fns = append(g.fns, fn)
}

// Run launches every queued function on its own goroutine and clears the
// queue. A second Run before the batch drains is a no-op.
func (g *SyncGroup) Run() {
	g.mu.Lock()
	if g.running > 0 {
		g.mu.Unlock()
		return
	}
	fns := g.fns
	g.fns = nil
	g.running = len(fns)
	g.mu.Unlock()

	for _, fn := range fns {
		fn := fn
		g.wg.Add(1)
		go func() {
			defer func() {
				g.mu.Lock()
				g.running--
				g.mu.Unlock()
				g.wg.Done()
			}()
			fn()
		}()
	}
}

// Wait blocks until the current batch drains.
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// WaitAndClear drains the batch and resets the group so Add and Run accept
// work again.
func (g *SyncGroup) WaitAndClear() {
	g.wg.Wait()
	g.mu.Lock()
	g.fns = nil
	g.running = 0
	g.mu.Unlock()
}
