// Package globaltime is the process clock for cache timestamps and API
// responses. Tests can pin it.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Set replaces the clock and returns a func that restores the previous one.
func Set(now func() time.Time) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	previous := nowFunc
	nowFunc = now
	return func() {
		mu.Lock()
		defer mu.Unlock()
		nowFunc = previous
	}
}

// Freeze pins the clock to t.
func Freeze(t time.Time) (restore func()) {
	return Set(func() time.Time { return t })
}
