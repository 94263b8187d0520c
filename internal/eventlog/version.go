// Package eventlog implements resource-version assignment and the
// change-event fan-out described by C3: every mutation through the registry
// gets a monotonically increasing, lexicographically sortable version stamp,
// and an ADDED/MODIFIED/DELETED event is appended and broadcast to watchers.
package eventlog

import (
	"fmt"
	"sync"
	"time"
)

// Versioner hands out resource_version strings that are strictly increasing
// within a process, even when two assignments land in the same wall-clock
// millisecond. The string is a zero-padded millisecond timestamp so that
// lexicographic and numeric ordering agree.
type Versioner struct {
	mu   sync.Mutex
	last int64
}

// NewVersioner returns a ready-to-use Versioner.
func NewVersioner() *Versioner {
	return &Versioner{}
}

// Next returns the next resource_version, guaranteed greater than any value
// previously returned by this Versioner.
func (v *Versioner) Next() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= v.last {
		now = v.last + 1
	}
	v.last = now
	return fmt.Sprintf("%020d", now)
}

// Observe folds an externally-sourced version (e.g. loaded from the store at
// startup) into the monotonic counter so that a freshly restarted process
// never reissues a version it handed out in a previous run.
func (v *Versioner) Observe(version string) {
	var parsed int64
	if _, err := fmt.Sscanf(version, "%020d", &parsed); err != nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if parsed > v.last {
		v.last = parsed
	}
}
