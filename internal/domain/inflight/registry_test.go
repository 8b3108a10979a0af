package inflight

import (
	"sync"
	"testing"
)

func TestRegistry_SecondAcquireSuppressed(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	if !r.TryAcquire("cart:user-1") {
		t.Fatal("first TryAcquire() = false, want true")
	}
	if r.TryAcquire("cart:user-1") {
		t.Error("second TryAcquire() = true while in flight, want false")
	}
	if !r.InFlight("cart:user-1") {
		t.Error("InFlight() = false, want true")
	}

	r.Release("cart:user-1")
	if !r.TryAcquire("cart:user-1") {
		t.Error("TryAcquire() = false after Release, want true")
	}
}

func TestRegistry_KeysIndependent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	if !r.TryAcquire("cart:user-1") {
		t.Fatal("TryAcquire(cart) = false")
	}
	if !r.TryAcquire("favorites:user-1") {
		t.Error("TryAcquire(favorites) = false, keys must be independent")
	}
}

func TestRegistry_ConcurrentAcquire(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	const goroutines = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryAcquire("load:user-1") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestLifetime_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	l := NewLifetime()

	if !l.Alive() {
		t.Fatal("Alive() = false for new Lifetime")
	}
	l.Close()
	l.Close()
	if l.Alive() {
		t.Error("Alive() = true after Close()")
	}
}
