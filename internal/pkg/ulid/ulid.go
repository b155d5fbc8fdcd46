// Package ulid wraps oklog/ulid for scan run identifiers. Run ids are
// lexicographically time-ordered, so sorting log lines by run_id sorts
// cycles chronologically.
package ulid

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// A single monotonic entropy source keeps ids generated within the same
// millisecond strictly increasing across goroutines.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh run id for the current time.
func New() string {
	return NewFromTime(time.Now())
}

// NewFromTime returns a run id stamped with t.
func NewFromTime(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Parse decodes a run id string.
func Parse(s string) (ulid.ULID, error) {
	return ulid.Parse(s)
}

// IsValid reports whether s is a well-formed run id.
func IsValid(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// Time recovers the timestamp embedded in a run id.
func Time(s string) (time.Time, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}
