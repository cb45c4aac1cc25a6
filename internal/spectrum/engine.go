package spectrum

import (
	"context"
	"errors"
	"log"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/svartdal/telescoped/internal/receiver"
)

// Sink receives frames as the engine emits them. The broadcaster
// satisfies it; tests use lighter fakes.
type Sink interface {
	Publish(*Frame)
	SubscriberCount() int
}

// Config sets the transform and pacing parameters of an Engine.
type Config struct {
	FFTSize    int           // samples per block, also bin count
	SampleRate float64       // Hz; also the spectral span
	Cadence    time.Duration // fixed emission interval
	UnitDB     bool          // emit dB instead of linear power
}

// Engine drains a SampleSource, windows and Fourier-transforms each
// block, and emits at most one frame per cadence tick. Acquisition runs
// ahead of emission: blocks that arrive faster than the cadence only
// refresh the pending frame, and a tick with no fresh frame emits
// nothing rather than repeating stale data.
type Engine struct {
	src receiver.SampleSource
	cfg Config
	log *log.Logger

	window []float64
	winSum float64
	fft    *fourier.CmplxFFT

	mu      sync.Mutex
	latest  *Frame
	pending bool // latest has not been emitted yet
}

// New creates an engine. The window and FFT plan are computed once and
// reused for every block.
func New(src receiver.SampleSource, cfg Config, logger *log.Logger) *Engine {
	win := hamming(cfg.FFTSize)
	sum := 0.0
	for _, v := range win {
		sum += v
	}
	return &Engine{
		src:    src,
		cfg:    cfg,
		log:    logger,
		window: win,
		winSum: sum,
		fft:    fourier.NewCmplxFFT(cfg.FFTSize),
	}
}

// Run operates the acquire/emit loop until ctx is cancelled or the
// receiver fails permanently. A nil return means clean shutdown; any
// other return is the receiver fault that halted this telescope's
// pipeline. Faults never propagate further than the returned error.
func (e *Engine) Run(ctx context.Context, sink Sink) error {
	errc := make(chan error, 1)
	go e.acquire(ctx, sink, errc)

	ticker := time.NewTicker(e.cfg.Cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case <-ticker.C:
			e.mu.Lock()
			frame, fresh := e.latest, e.pending
			e.pending = false
			e.mu.Unlock()
			if fresh && frame != nil {
				sink.Publish(frame)
			}
		}
	}
}

// acquire continuously reads blocks and refreshes the pending frame. It
// idles while nobody is subscribed and while the receiver is not tuned
// yet; both conditions are rechecked on the cadence.
func (e *Engine) acquire(ctx context.Context, sink Sink, errc chan<- error) {
	for {
		if ctx.Err() != nil {
			return
		}

		if sink.SubscriberCount() == 0 {
			if !sleepOrCancel(ctx, e.cfg.Cadence) {
				return
			}
			continue
		}

		block, err := e.src.ReadBlock(ctx, e.cfg.FFTSize)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		case errors.Is(err, receiver.ErrNotTuned):
			// Recoverable precondition: wait for a tune command.
			if !sleepOrCancel(ctx, e.cfg.Cadence) {
				return
			}
			continue
		default:
			e.log.Printf("acquisition halted: %v", err)
			errc <- err
			return
		}

		frame := e.process(block, e.src.Status().TunedFreq, time.Now().UTC())
		e.mu.Lock()
		e.latest = frame
		e.pending = true
		e.mu.Unlock()
	}
}

// process computes one frame from a sample block: Hamming window, FFT,
// shift, window-sum normalization, power conversion, frequency axis.
func (e *Engine) process(block []complex64, centerFreq float64, now time.Time) *Frame {
	n := e.cfg.FFTSize
	coeffs := e.fft.Coefficients(nil, applyWindow(block, e.window))
	for i := range coeffs {
		coeffs[i] /= complex(e.winSum, 0)
	}
	shifted := fftShift(coeffs)

	bandwidth := e.cfg.SampleRate
	binWidth := bandwidth / float64(n)
	first := centerFreq - bandwidth/2

	freqs := make([]float64, n)
	power := make([]float64, n)
	for i, c := range shifted {
		freqs[i] = first + float64(i)*binWidth
		mag := cmplx.Abs(c)
		if e.cfg.UnitDB {
			if mag == 0 {
				power[i] = math.Inf(-1)
			} else {
				power[i] = 20 * math.Log10(mag)
			}
		} else {
			power[i] = mag * mag
		}
	}

	return &Frame{
		CenterFreq: centerFreq,
		SampleRate: e.cfg.SampleRate,
		Freqs:      freqs,
		Power:      power,
		Time:       now,
	}
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
