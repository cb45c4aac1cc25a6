// Package receiver abstracts the radio front-end of a telescope behind a
// narrow capability interface. Two implementations exist: Real, which
// delegates to a vendor driver, and Simulated, which synthesizes IQ
// samples in-process so the whole pipeline runs without hardware.
package receiver

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotTuned is returned by ReadBlock before the first successful Tune.
	ErrNotTuned = errors.New("receiver not tuned")

	// ErrDisconnected indicates the receiver backend has gone away.
	ErrDisconnected = errors.New("receiver disconnected")
)

// HardwareFault is a non-retryable receiver failure. The acquisition
// pipeline that owns the receiver stops on it; other telescopes are
// unaffected.
type HardwareFault struct {
	Reason string
}

func (e *HardwareFault) Error() string {
	return fmt.Sprintf("receiver hardware fault: %s", e.Reason)
}

// Status is a point-in-time snapshot of a receiver.
type Status struct {
	Ready     bool    `json:"ready"`
	TunedFreq float64 `json:"tuned_freq_hz"`
	Err       string  `json:"error,omitempty"`
}

// SampleSource produces raw complex baseband samples. Implementations
// must be safe for one concurrent reader plus concurrent Tune/Status
// callers.
//
// ReadBlock blocks until n samples are available (hardware buffering for
// the real receiver, a pacing delay matching the sample rate for the
// simulated one) or ctx is done. Tune may be slow on real hardware while
// the synthesizer settles, hence the context.
type SampleSource interface {
	Tune(ctx context.Context, centerFreq float64) error
	ReadBlock(ctx context.Context, n int) ([]complex64, error)
	Status() Status
	Close() error
}
