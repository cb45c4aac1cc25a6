package receiver

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// SimConfig describes the synthetic signal a Simulated receiver produces.
type SimConfig struct {
	// SampleRate in samples per second; also the usable bandwidth.
	SampleRate float64

	// NoisePower is the standard deviation of the gaussian noise floor
	// per component.
	NoisePower float64

	// SignalFreq is the absolute frequency in Hz of an injected test
	// tone. Zero disables the tone.
	SignalFreq float64

	// SignalPower is the tone amplitude.
	SignalPower float64

	// SignalDriftHz, when non-zero, makes the tone frequency take a
	// gaussian random-walk step of this scale after every block.
	SignalDriftHz float64

	// Pace disables the real-time pacing delay when false. Tests set
	// Pace to false so a block is produced immediately.
	Pace bool
}

// Simulated is an in-process SampleSource: a flat gaussian noise floor
// with an optional injected tone. The spectra it produces have the same
// statistical shape class as a real receiver (flat floor, one visible
// peak when the tone is enabled) so downstream code is exercised
// identically.
type Simulated struct {
	cfg SimConfig

	mu         sync.Mutex
	tuned      bool
	centerFreq float64
	sigFreq    float64
	phase      float64 // carried across blocks so the tone stays coherent
	closed     bool
}

// NewSimulated creates a simulated receiver. It starts untuned; ReadBlock
// fails with ErrNotTuned until Tune is called.
func NewSimulated(cfg SimConfig) *Simulated {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 2e6
	}
	return &Simulated{cfg: cfg, sigFreq: cfg.SignalFreq}
}

// Tune sets the center frequency. It is instantaneous for the simulation.
func (s *Simulated) Tune(_ context.Context, centerFreq float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisconnected
	}
	s.centerFreq = centerFreq
	s.tuned = true
	return nil
}

// ReadBlock synthesizes n IQ samples. When pacing is enabled it first
// sleeps n/SampleRate to mimic real sample-rate timing.
func (s *Simulated) ReadBlock(ctx context.Context, n int) ([]complex64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrDisconnected
	}
	if !s.tuned {
		s.mu.Unlock()
		return nil, ErrNotTuned
	}
	center := s.centerFreq
	sig := s.sigFreq
	phase := s.phase
	s.mu.Unlock()

	if s.cfg.Pace {
		d := time.Duration(float64(n) / s.cfg.SampleRate * float64(time.Second))
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	block := make([]complex64, n)
	toneEnabled := sig != 0 && s.cfg.SignalPower != 0
	// Tone offset from the center of the band; anything outside
	// ±SampleRate/2 lands outside the observable spectrum, which is
	// exactly what a real receiver would show.
	step := 2 * math.Pi * (sig - center) / s.cfg.SampleRate
	for i := 0; i < n; i++ {
		re := rand.NormFloat64() * s.cfg.NoisePower
		im := rand.NormFloat64() * s.cfg.NoisePower
		if toneEnabled {
			re += s.cfg.SignalPower * math.Cos(phase)
			im += s.cfg.SignalPower * math.Sin(phase)
			phase += step
		}
		block[i] = complex64(complex(re, im))
	}
	phase = math.Mod(phase, 2*math.Pi)

	s.mu.Lock()
	s.phase = phase
	if s.cfg.SignalDriftHz != 0 && toneEnabled {
		s.sigFreq += rand.NormFloat64() * s.cfg.SignalDriftHz
	}
	s.mu.Unlock()

	return block, nil
}

// Status reports the simulated receiver state.
func (s *Simulated) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Ready: s.tuned && !s.closed, TunedFreq: s.centerFreq}
	if s.closed {
		st.Err = ErrDisconnected.Error()
	}
	return st
}

// Close marks the receiver disconnected.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
