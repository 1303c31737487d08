package ledger

import (
	"sync"
	"testing"
	"time"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	k := newKeyLock()

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("pi_a")
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("Expected at most 1 holder, got %d", maxInside)
	}
	if k.size() != 0 {
		t.Errorf("Expected lock table to be empty, got %d entries", k.size())
	}
}

func TestKeyLock_IndependentKeys(t *testing.T) {
	k := newKeyLock()

	unlockA := k.Lock("pi_a")
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("pi_b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on a different key blocked")
	}
	unlockA()
}
