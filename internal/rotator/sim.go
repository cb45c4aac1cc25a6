package rotator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/svartdal/telescoped/internal/coords"
)

// simSlewRate is how fast the simulated dish moves, radians per second.
const simSlewRate = math.Pi / 10

// Simulated is a software dish. It starts stowed and slews toward the
// target's horizontal position at a fixed rate, which makes the
// idle/slewing/tracking progression observable without hardware.
type Simulated struct {
	loc          coords.Location
	minElevation float64
	interval     time.Duration

	mu      sync.Mutex
	target  coords.Target
	current coords.Direction
	lastErr string
}

func NewSimulated(loc coords.Location, minElevation float64) *Simulated {
	return &Simulated{
		loc:          loc,
		minElevation: minElevation,
		interval:     100 * time.Millisecond,
		target:       coords.Parked,
		current:      Stow,
	}
}

func (s *Simulated) SetTarget(t coords.Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Kind != coords.TargetParked {
		hor := t.Horizontal(s.loc, time.Now(), Stow)
		if hor.Elevation < s.minElevation {
			return fmt.Errorf("%w: elevation %.1f deg", ErrBelowHorizon, hor.Elevation*180/math.Pi)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = t
	s.lastErr = ""
	return nil
}

func (s *Simulated) Target() coords.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *Simulated) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	desired := s.target.Horizontal(s.loc, time.Now(), Stow)
	info := Info{
		Status:  StatusIdle,
		Target:  s.target,
		Current: s.current,
		Error:   s.lastErr,
	}
	if s.target.Kind != coords.TargetParked {
		info.Commanded = desired
		info.HasCommanded = true
		if directionsClose(s.current, desired, 3) {
			info.Status = StatusTracking
		} else {
			info.Status = StatusSlewing
		}
	}
	return info
}

func (s *Simulated) Restart(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = coords.Parked
	s.current = Stow
	s.lastErr = ""
	return nil
}

func (s *Simulated) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.step(now, now.Sub(last))
			last = now
		}
	}
}

// step advances each axis toward the desired direction, clamping the
// move to the slew rate.
func (s *Simulated) step(now time.Time, dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	desired := Stow
	if s.target.Kind != coords.TargetParked {
		hor := s.target.Horizontal(s.loc, now, Stow)
		if hor.Elevation < s.minElevation {
			s.target = coords.Parked
			s.lastErr = ErrBelowHorizon.Error()
		} else {
			desired = hor
		}
	}

	maxMove := simSlewRate * dt.Seconds()
	s.current.Azimuth += clamp(desired.Azimuth-s.current.Azimuth, maxMove)
	s.current.Elevation += clamp(desired.Elevation-s.current.Elevation, maxMove)
}

func clamp(delta, limit float64) float64 {
	if delta > limit {
		return limit
	}
	if delta < -limit {
		return -limit
	}
	return delta
}
