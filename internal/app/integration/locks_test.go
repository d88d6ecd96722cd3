package integration

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexIsolatesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}

	var mu sync.Mutex
	order := []string{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock := k.Lock("a")
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		unlock()
	}()
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	unlockA()

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" {
		t.Fatalf("unexpected order %v", order)
	}
	if k.size() != 0 {
		t.Fatalf("expected released keys, have %d", k.size())
	}
}
