// Package shutdown runs registered teardown hooks concurrently with a
// deadline. Pass a context with a timeout; hooks still running when it
// expires are abandoned.
package shutdown

import (
	"context"
	"sync"

	"github.com/followbot/gofollow/pkg/logger"
)

// Hook is one teardown step. It must return when ctx is done.
type Hook func(ctx context.Context)

type Manager struct {
	mu    sync.Mutex
	hooks []Hook
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a hook. Safe to call from any goroutine.
func (m *Manager) OnShutdown(hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Shutdown runs every hook on its own goroutine and blocks until all finish
// or ctx expires.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	hooks := make([]Hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	if len(hooks) == 0 {
		return
	}
	logger.Infof("shutting down: %d hooks", len(hooks))

	var wg sync.WaitGroup
	for _, hook := range hooks {
		hook := hook
		wg.Add(1)
		go func() {
			defer wg.Done()
			hook(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-ctx.Done():
		logger.Warnf("shutdown timed out: %v", ctx.Err())
	}
}
