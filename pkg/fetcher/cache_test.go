package fetcher

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheTTLExpiry(t *testing.T) {
	clock := time.Now()
	c := newTTLCache[int](10 * time.Second)
	c.now = func() time.Time { return clock }

	c.Put("k", 7)
	if v, ok := c.Peek("k"); !ok || v != 7 {
		t.Fatalf("Peek = %d,%v", v, ok)
	}

	clock = clock.Add(9 * time.Second)
	if _, ok := c.Peek("k"); !ok {
		t.Error("entry expired early")
	}

	clock = clock.Add(2 * time.Second)
	if _, ok := c.Peek("k"); ok {
		t.Error("entry should have expired")
	}
}

func TestGetOrFetchCachesResult(t *testing.T) {
	c := newTTLCache[string](time.Minute)

	fetches := 0
	fetch := func() (string, error) {
		fetches++
		return "value", nil
	}

	v, hit, err := c.GetOrFetch("k", fetch)
	if err != nil || v != "value" || hit {
		t.Fatalf("first call = %q,%v,%v", v, hit, err)
	}
	v, hit, err = c.GetOrFetch("k", fetch)
	if err != nil || v != "value" || !hit {
		t.Fatalf("second call = %q,%v,%v", v, hit, err)
	}
	if fetches != 1 {
		t.Errorf("fetched %d times, want 1", fetches)
	}
}

func TestGetOrFetchDoesNotCacheErrors(t *testing.T) {
	c := newTTLCache[int](time.Minute)

	boom := errors.New("boom")
	if _, _, err := c.GetOrFetch("k", func() (int, error) { return 0, boom }); err != boom {
		t.Fatalf("err = %v", err)
	}
	// Next call must retry upstream, not serve a cached failure.
	v, _, err := c.GetOrFetch("k", func() (int, error) { return 9, nil })
	if err != nil || v != 9 {
		t.Errorf("retry = %d,%v", v, err)
	}
}

func TestConcurrentMissesSingleFlight(t *testing.T) {
	c := newTTLCache[int](time.Minute)

	var fetches atomic.Int32
	gate := make(chan struct{})
	fetch := func() (int, error) {
		fetches.Add(1)
		<-gate
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, _, err := c.GetOrFetch("k", fetch); err != nil || v != 1 {
				t.Errorf("GetOrFetch = %d,%v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond) // let all goroutines join the flight
	close(gate)
	wg.Wait()

	if n := fetches.Load(); n != 1 {
		t.Errorf("upstream hit %d times for concurrent misses, want 1", n)
	}
}

func TestSweep(t *testing.T) {
	clock := time.Now()
	c := newTTLCache[int](10 * time.Second)
	c.now = func() time.Time { return clock }

	c.Put("old", 1)
	clock = clock.Add(11 * time.Second)
	c.Put("fresh", 2)

	if dropped := c.Sweep(); dropped != 1 {
		t.Errorf("dropped %d, want 1", dropped)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
	if _, ok := c.Peek("fresh"); !ok {
		t.Error("fresh entry swept")
	}
}
