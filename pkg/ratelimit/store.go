package ratelimit

import (
	"context"
	"time"
)

// WindowKind identifies a counter's window granularity.
type WindowKind string

const (
	WindowHour WindowKind = "hour"
	WindowDay  WindowKind = "day"
)

// Window is one counter to check and consume.
type Window struct {
	Kind  WindowKind
	Start time.Time
	Limit int
}

// Usage is the outcome of a Consume call.
type Usage struct {
	Allowed bool
	// HourCount and DayCount are the counts after the call. A rejected call leaves them untouched.
	HourCount int
	DayCount  int
	// Exceeded names the first exhausted window of a rejected call.
	Exceeded WindowKind
}

// Store holds window counters for all identities.
//
// Consume must be atomic per identity: both counters are checked and, only
// if neither is exhausted, both are incremented. Concurrent calls for the
// same identity must never both observe the last unit of quota.
type Store interface {
	Consume(ctx context.Context, identity string, hour, day Window) (*Usage, error)
	// Sweep drops counters whose windows ended before now. It returns the number removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// HourStart floors t to the start of its UTC hour.
func HourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// DayStart floors t to the start of its UTC day.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func exhausted(count, limit int) bool {
	return limit != Unlimited && count >= limit
}

// check decides a Consume given the current counts.
func check(hourCount, dayCount int, hour, day Window) (WindowKind, bool) {
	if exhausted(hourCount, hour.Limit) {
		return WindowHour, false
	}
	if exhausted(dayCount, day.Limit) {
		return WindowDay, false
	}
	return "", true
}
