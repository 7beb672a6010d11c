package syncgroup

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRunExecutesAllQueued(t *testing.T) {
	g := NewSyncGroup()

	var n int32
	for i := 0; i < 5; i++ {
		g.Add(func() { atomic.AddInt32(&n, 1) })
	}
	g.Run()
	g.Wait()

	if got := atomic.LoadInt32(&n); got != 5 {
		t.Fatalf("ran %d functions, want 5", got)
	}
}

func TestAddDroppedWhileRunning(t *testing.T) {
	g := NewSyncGroup()

	release := make(chan struct{})
	g.Add(func() { <-release })
	g.Run()

	var n int32
	g.Add(func() { atomic.AddInt32(&n, 1) })
	g.Run() // no-op: previous batch still running

	close(release)
	g.WaitAndClear()

	if got := atomic.LoadInt32(&n); got != 0 {
		t.Fatalf("dropped function ran %d times", got)
	}
}

func TestWaitAndClearAllowsRestart(t *testing.T) {
	g := NewSyncGroup()

	var first int32
	g.Add(func() { atomic.AddInt32(&first, 1) })
	g.Run()
	g.WaitAndClear()

	var second int32
	g.Add(func() { atomic.AddInt32(&second, 1) })
	g.Run()
	g.WaitAndClear()

	if atomic.LoadInt32(&first) != 1 || atomic.LoadInt32(&second) != 1 {
		t.Fatalf("restart batch ran %d/%d times, want 1/1", first, second)
	}
}

func TestNilFunctionIgnored(t *testing.T) {
	g := NewSyncGroup()
	g.Add(nil)
	g.Run()

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait hung on an empty batch")
	}
}
