// Package clockid supplies the monotonic-wall clock and unique id
// generator consumed by every other component, mirroring the teacher's
// habit of threading a small Clock seam through packages that need
// deterministic time in tests.
package clockid

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time.Now so tests can control cooldown/expiry math.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NewID returns a fresh opaque unique string for Account ids, request
// ids, and per-attempt Session_id headers.
func NewID() string {
	return uuid.NewString()
}
