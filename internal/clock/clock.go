package clock

import "time"

// Clock lets time-dependent jobs and rollups run deterministically in tests.
type Clock interface {
	Now() time.Time
}

type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Fixed always reports the same instant.
type Fixed struct{ At time.Time }

func (f Fixed) Now() time.Time { return f.At }
