package flood

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(limit int) (*Floodgate, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	fg := New(limit)
	fg.now = clock.Now
	return fg, clock
}

func TestFloodgate_Allow_AllowsNormalUsage(t *testing.T) {
	fg, _ := newTestGate(3)

	for i := 0; i < 3; i++ {
		if !fg.Allow("10.0.0.1") {
			t.Errorf("Search %d should be allowed", i+1)
		}
	}

	if fg.Allow("10.0.0.1") {
		t.Error("4th search should be blocked")
	}
}

func TestFloodgate_Allow_SlidingWindow(t *testing.T) {
	fg, clock := newTestGate(2)

	fg.Allow("c")
	clock.Advance(30 * time.Second)
	fg.Allow("c")

	if fg.Allow("c") {
		t.Error("Third search inside the window should be blocked")
	}

	clock.Advance(31 * time.Second)
	if !fg.Allow("c") {
		t.Error("Search after the first one left the window should be allowed")
	}
	if fg.Allow("c") {
		t.Error("Window should be full again")
	}
}

func TestFloodgate_Allow_RejectedNotCounted(t *testing.T) {
	fg, clock := newTestGate(1)

	fg.Allow("c")
	for i := 0; i < 5; i++ {
		fg.Allow("c")
	}

	clock.Advance(61 * time.Second)
	if !fg.Allow("c") {
		t.Error("Rejected searches should not extend the window")
	}
}

func TestFloodgate_Allow_PerClient(t *testing.T) {
	fg, _ := newTestGate(1)

	if !fg.Allow("a") || !fg.Allow("b") {
		t.Error("Different clients should have separate limits")
	}
	if fg.Allow("a") {
		t.Error("Client a should be blocked")
	}
}

func TestFloodgate_Disabled(t *testing.T) {
	for _, limit := range []int{0, -1} {
		fg := New(limit)
		if fg != nil {
			t.Fatalf("New(%d) = %v, want nil", limit, fg)
		}
		for i := 0; i < 100; i++ {
			if !fg.Allow("c") {
				t.Fatal("Disabled gate should allow everything")
			}
		}
		if stats := fg.GetStats(); stats != (Stats{}) {
			t.Errorf("GetStats() = %+v, want zero", stats)
		}
	}
}

func TestFloodgate_PerformCleanup(t *testing.T) {
	fg, clock := newTestGate(5)

	fg.Allow("old")
	clock.Advance(idleTimeout + time.Second)
	fg.Allow("fresh")

	fg.performCleanup()

	stats := fg.GetStats()
	if stats.ActiveClients != 1 {
		t.Errorf("ActiveClients = %d, want 1", stats.ActiveClients)
	}
	if stats.LimitPerMinute != 5 || stats.WindowSeconds != 60 {
		t.Errorf("GetStats() = %+v, want limit 5 window 60", stats)
	}
}

func TestFloodgate_Run_StopsOnCancel(t *testing.T) {
	fg, _ := newTestGate(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- fg.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestFloodgate_ConcurrentAccess(t *testing.T) {
	fg := New(50)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- fg.Allow("shared")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 50 {
		t.Errorf("allowed %d searches, want 50", count)
	}
}
