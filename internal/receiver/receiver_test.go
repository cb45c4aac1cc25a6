package receiver

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"
)

func TestSimulatedRequiresTune(t *testing.T) {
	src := NewSimulated(SimConfig{SampleRate: 2e6, NoisePower: 1})
	if _, err := src.ReadBlock(context.Background(), 64); !errors.Is(err, ErrNotTuned) {
		t.Fatalf("expected ErrNotTuned before Tune, got %v", err)
	}

	if err := src.Tune(context.Background(), 1.42e9); err != nil {
		t.Fatalf("tune failed: %v", err)
	}
	block, err := src.ReadBlock(context.Background(), 64)
	if err != nil {
		t.Fatalf("read after tune failed: %v", err)
	}
	if len(block) != 64 {
		t.Fatalf("expected 64 samples, got %d", len(block))
	}
}

func TestSimulatedClosedIsDisconnected(t *testing.T) {
	src := NewSimulated(SimConfig{SampleRate: 2e6})
	_ = src.Tune(context.Background(), 100e6)
	_ = src.Close()
	if _, err := src.ReadBlock(context.Background(), 16); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected after close, got %v", err)
	}
	if st := src.Status(); st.Ready {
		t.Fatal("closed receiver must not report ready")
	}
}

// TestSimulatedInjectedTonePeak checks the statistical shape contract:
// the FFT of a block must show its strongest bin at the injected tone
// frequency, well above the flat noise floor.
func TestSimulatedInjectedTonePeak(t *testing.T) {
	const (
		n          = 1024
		sampleRate = 2e6
		center     = 1.42e9
		toneOffset = 250e3
	)
	src := NewSimulated(SimConfig{
		SampleRate:  sampleRate,
		NoisePower:  0.01,
		SignalFreq:  center + toneOffset,
		SignalPower: 1,
	})
	_ = src.Tune(context.Background(), center)

	block, err := src.ReadBlock(context.Background(), n)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	in := make([]complex128, n)
	for i, v := range block {
		in[i] = complex128(complex(real(v), imag(v)))
	}
	coeffs := fourier.NewCmplxFFT(n).Coefficients(nil, in)

	// Shift so bin 0 is center-bandwidth/2.
	shifted := append(coeffs[n/2:], coeffs[:n/2]...)
	peakBin, peak := 0, 0.0
	for i, c := range shifted {
		if mag := cmplx.Abs(c); mag > peak {
			peakBin, peak = i, mag
		}
	}

	binWidth := sampleRate / n
	peakFreq := center - sampleRate/2 + float64(peakBin)*binWidth
	if math.Abs(peakFreq-(center+toneOffset)) > 2*binWidth {
		t.Fatalf("peak at %.0f Hz, expected near %.0f Hz", peakFreq, center+toneOffset)
	}
}

type fakeDriver struct {
	tuneErr error
	readErr error
	block   []complex64
}

func (d *fakeDriver) Tune(context.Context, float64) error { return d.tuneErr }
func (d *fakeDriver) ReadBlock(context.Context, int) ([]complex64, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	return d.block, nil
}
func (d *fakeDriver) Close() error { return nil }

func TestRealClassifiesAndLatchesFault(t *testing.T) {
	drv := &fakeDriver{readErr: errors.New("LO lock lost")}
	r := NewReal(drv)
	if err := r.Tune(context.Background(), 100e6); err != nil {
		t.Fatalf("tune failed: %v", err)
	}

	_, err := r.ReadBlock(context.Background(), 16)
	var fault *HardwareFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected HardwareFault, got %v", err)
	}
	if fault.Reason != "LO lock lost" {
		t.Fatalf("fault reason not preserved: %q", fault.Reason)
	}

	// The fault latches: the driver recovering does not clear it.
	drv.readErr = nil
	drv.block = make([]complex64, 16)
	if _, err := r.ReadBlock(context.Background(), 16); !errors.As(err, &fault) {
		t.Fatalf("fault should latch, got %v", err)
	}
	if st := r.Status(); st.Ready || st.Err == "" {
		t.Fatalf("status should surface the fault, got %+v", st)
	}
}

func TestRealUntunedRead(t *testing.T) {
	r := NewReal(&fakeDriver{block: make([]complex64, 4)})
	if _, err := r.ReadBlock(context.Background(), 4); !errors.Is(err, ErrNotTuned) {
		t.Fatalf("expected ErrNotTuned, got %v", err)
	}
}
