package threadsafe

import (
	"sync"
	"time"
)

// Time holds an instant shared between goroutines, such as a deadline
// several callers must respect.
type Time struct {
	time time.Time
	mux  sync.Mutex
}

func NewTime(t time.Time) *Time {
	return &Time{time: t}
}

func (t *Time) Get() time.Time {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.time
}

func (t *Time) Set(value time.Time) {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.time = value
}

// Extend moves the held instant to value only if value is later.
func (t *Time) Extend(value time.Time) {
	t.mux.Lock()
	defer t.mux.Unlock()
	if value.After(t.time) {
		t.time = value
	}
}

// Before reports whether now is still before the held instant.
func (t *Time) Before(now time.Time) bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	return now.Before(t.time)
}
