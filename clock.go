package netsim

import "time"

// Clock is the source of wall-clock timestamps for the packet log and the
// way Send blocks for the pacing delay.  Tests replace it to avoid sleeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time        { return time.Now() }
func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }

// WallClock returns the Clock backed by the time package
func WallClock() Clock {
	return wallClock{}
}
