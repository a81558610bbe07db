package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShards = 64

// MemoryStore keeps counters in process memory.
//
// Limits are only enforced per process: N instances behind a load balancer
// each keep their own counts, so the effective limit is N times the
// configured one. Use PGStore when running more than one instance.
type MemoryStore struct {
	shards [memoryShards]memoryShard
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	hourStart time.Time
	hourCount int
	dayStart  time.Time
	dayCount  int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*memoryEntry)
	}
	return s
}

func (s *MemoryStore) shard(identity string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &s.shards[h.Sum32()%memoryShards]
}

// Consume checks and increments both counters under the identity's shard lock.
func (s *MemoryStore) Consume(_ context.Context, identity string, hour, day Window) (*Usage, error) {
	sh := s.shard(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[identity]
	if !ok {
		e = &memoryEntry{hourStart: hour.Start, dayStart: day.Start}
		sh.entries[identity] = e
	}
	// windows only move forward; a request that read the clock before a newer one
	// took the lock is charged to the current window
	if hour.Start.After(e.hourStart) {
		e.hourStart, e.hourCount = hour.Start, 0
	}
	if day.Start.After(e.dayStart) {
		e.dayStart, e.dayCount = day.Start, 0
	}

	if kind, ok := check(e.hourCount, e.dayCount, hour, day); !ok {
		return &Usage{HourCount: e.hourCount, DayCount: e.dayCount, Exceeded: kind}, nil
	}

	e.hourCount++
	e.dayCount++
	return &Usage{Allowed: true, HourCount: e.hourCount, DayCount: e.dayCount}, nil
}

// Sweep drops identities whose day window has ended.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	cutoff := DayStart(now)
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, e := range sh.entries {
			if e.dayStart.Before(cutoff) {
				delete(sh.entries, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of tracked identities.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		n += len(s.shards[i].entries)
		s.shards[i].mu.Unlock()
	}
	return n
}
