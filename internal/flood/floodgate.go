// Package flood limits how often a single client may run searches, so one
// caller cannot drive the unofficial catalog endpoints on its own.
package flood

import (
	"context"
	"sync"
	"time"
)

const (
	// windowDuration is the sliding window requests are counted in.
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle clients are forgotten.
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a client may stay quiet before it is forgotten.
	idleTimeout = 10 * time.Minute
)

// Floodgate is a per-client sliding window limiter. A nil *Floodgate allows
// everything.
type Floodgate struct {
	limitPerMinute int
	now            func() time.Time

	mutex   sync.Mutex
	entries map[string]*clientEntry
}

type clientEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// New returns a gate admitting limitPerMinute searches per client, or nil
// when limitPerMinute is not positive.
func New(limitPerMinute int) *Floodgate {
	if limitPerMinute <= 0 {
		return nil
	}
	return &Floodgate{
		limitPerMinute: limitPerMinute,
		now:            time.Now,
		entries:        make(map[string]*clientEntry),
	}
}

// Allow records a search by client and reports whether it is within the limit.
// Rejected searches are not counted.
func (fg *Floodgate) Allow(client string) bool {
	if fg == nil {
		return true
	}
	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, exists := fg.entries[client]
	if !exists {
		entry = &clientEntry{timestamps: make([]time.Time, 0, fg.limitPerMinute)}
		fg.entries[client] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-windowDuration)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= fg.limitPerMinute {
		return false
	}
	entry.timestamps = append(entry.timestamps, now)
	return true
}

// Run forgets idle clients until ctx is done.
func (fg *Floodgate) Run(ctx context.Context) error {
	if fg == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-ctx.Done():
			return nil
		}
	}
}

func (fg *Floodgate) performCleanup() {
	cutoff := fg.now().Add(-idleTimeout)

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// Stats contains floodgate statistics.
type Stats struct {
	ActiveClients  int `json:"active_clients"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}

func (fg *Floodgate) GetStats() Stats {
	if fg == nil {
		return Stats{}
	}
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveClients:  len(fg.entries),
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}
