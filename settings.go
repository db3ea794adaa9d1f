package netsim

import (
	"fmt"
	"math"
	"time"
)

// default jitter bounds applied when none are configured
const (
	DefaultJitterMin = 0.8
	DefaultJitterMax = 1.2
)

// Settings holds the parameters of transmission simulation.  Each hop's
// nominal latency is multiplied by a factor drawn uniformly from
// [JitterMin, JitterMax).  Pacing, when positive, is how long Send blocks
// after each delivered hop; it has no effect on computed latencies.
type Settings struct {
	JitterMin float64
	JitterMax float64
	Pacing    time.Duration
}

// DefaultSettings returns jitter 0.8..1.2 and no pacing
func DefaultSettings() Settings {
	return Settings{JitterMin: DefaultJitterMin, JitterMax: DefaultJitterMax}
}

// Validate checks the jitter bounds and the pacing delay
func (s Settings) Validate() error {
	if err := validJitter(s.JitterMin, s.JitterMax); err != nil {
		return err
	}
	if s.Pacing < 0 {
		return fmt.Errorf("%w: pacing %v cannot be negative", ErrInvalidInput, s.Pacing)
	}
	return nil
}

func validJitter(min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		return fmt.Errorf("%w: jitter bounds must be finite", ErrInvalidInput)
	}
	if min <= 0 || max <= 0 || min > max {
		return fmt.Errorf("%w: jitter bounds need 0 < min <= max, got %v..%v", ErrInvalidInput, min, max)
	}
	return nil
}

// maxPacingSeconds is the first delay in seconds a time.Duration cannot hold
const maxPacingSeconds = float64(math.MaxInt64) / float64(time.Second)

// pacingFromSeconds converts the document form of the pacing delay
func pacingFromSeconds(secs float64) (time.Duration, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, fmt.Errorf("%w: pacing %v s must be a finite value >= 0", ErrInvalidInput, secs)
	}
	if secs >= maxPacingSeconds {
		return 0, fmt.Errorf("%w: pacing %v s exceeds the longest representable delay", ErrInvalidInput, secs)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
