package resilience_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/finance-core/internal/infra/resilience"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := resilience.NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), "merchant-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most 1 holder, saw %d", maxSeen)
	}
	if km.Len() != 0 {
		t.Errorf("expected keys to be released, got %d", km.Len())
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := resilience.NewKeyedMutex()

	unlockA, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	unlockB, err := km.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("expected b to be free, got %v", err)
	}
	unlockB()
}

func TestKeyedMutex_RespectsContext(t *testing.T) {
	km := resilience.NewKeyedMutex()

	unlock, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := km.Lock(ctx, "a"); err == nil {
		t.Fatal("expected timeout while key is held")
	}

	unlock()
	unlock() // second call is a no-op

	if km.Len() != 0 {
		t.Errorf("expected no keys, got %d", km.Len())
	}
}
