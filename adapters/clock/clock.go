// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"
)

// Real returns the wall-clock time in a fixed location.
// Monthly windows are computed in this location.
type Real struct {
	loc *time.Location
}

// NewReal creates a clock reporting time in loc. A nil loc means UTC.
func NewReal(loc *time.Location) Real {
	if loc == nil {
		loc = time.UTC
	}
	return Real{loc: loc}
}

// Now returns the current time.
func (r Real) Now() time.Time {
	if r.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(r.loc)
}

// Location returns the clock's location.
func (r Real) Location() *time.Location {
	if r.loc == nil {
		return time.UTC
	}
	return r.loc
}

// LoadLocation resolves a timezone name, treating "" and "UTC" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Fake provides a controllable clock for testing.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the fake time forward by duration d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}
