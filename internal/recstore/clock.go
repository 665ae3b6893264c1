package recstore

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxTimestamp is the largest timestamp a record may carry. Keeping one
// value free above it means a host can always step past anything it stores.
const MaxTimestamp int64 = math.MaxInt64 - 1

// ErrTimestampExhausted is returned by Push when the log already holds a
// record at MaxTimestamp, so no later timestamp exists.
var ErrTimestampExhausted = errors.New("no timestamp left after the latest record")

// Clock supplies wall-clock readings in Unix nanoseconds.
// Implemented by SystemClock (production) and testutil.DeterministicClock
// (tests).
type Clock interface {
	Now() int64
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time in Unix nanoseconds.
func (SystemClock) Now() int64 {
	return time.Now().UnixNano()
}

// nextTimestamp places a new record after everything this host has seen
// for the tag, even when the wall clock is behind. A zero value means the
// log or tag is empty.
func nextTimestamp(now, ownLast, tagMax int64) (int64, error) {
	ts := now
	for _, seen := range []int64{ownLast, tagMax} {
		if seen < ts {
			continue
		}
		if seen >= MaxTimestamp {
			return 0, fmt.Errorf("%w: %d", ErrTimestampExhausted, seen)
		}
		ts = seen + 1
	}
	if ts <= 0 {
		ts = 1
	}
	if ts > MaxTimestamp {
		return 0, fmt.Errorf("%w: clock reads %d", ErrTimestampExhausted, now)
	}
	return ts, nil
}
