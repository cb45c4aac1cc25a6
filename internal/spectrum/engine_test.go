package spectrum

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/svartdal/telescoped/internal/receiver"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type collectSink struct {
	mu     sync.Mutex
	frames []*Frame
	subs   int
}

func (s *collectSink) Publish(f *Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *collectSink) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs
}

func (s *collectSink) collected() []*Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Frame(nil), s.frames...)
}

func newTunedSim(t *testing.T, center float64) *receiver.Simulated {
	t.Helper()
	src := receiver.NewSimulated(receiver.SimConfig{
		SampleRate:  1e6,
		NoisePower:  0.1,
		SignalFreq:  center + 100e3,
		SignalPower: 1,
	})
	if err := src.Tune(context.Background(), center); err != nil {
		t.Fatalf("tune failed: %v", err)
	}
	return src
}

func TestFrequencyAxisSpansBand(t *testing.T) {
	const (
		center = 1.4204e9
		rate   = 1e6
		n      = 256
	)
	src := newTunedSim(t, center)
	e := New(src, Config{FFTSize: n, SampleRate: rate, Cadence: time.Millisecond, UnitDB: true}, testLogger())

	block, err := src.ReadBlock(context.Background(), n)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	frame := e.process(block, center, time.Now())

	if len(frame.Freqs) != n || len(frame.Power) != n {
		t.Fatalf("expected %d bins, got %d/%d", n, len(frame.Freqs), len(frame.Power))
	}
	if got, want := frame.Freqs[0], center-rate/2; math.Abs(got-want) > 1e-3 {
		t.Fatalf("first bin %v, want %v", got, want)
	}
	binWidth := rate / n
	if got, want := frame.Freqs[n-1], center+rate/2-binWidth; math.Abs(got-want) > 1e-3 {
		t.Fatalf("last bin %v, want %v", got, want)
	}
	for i := 1; i < n; i++ {
		if frame.Freqs[i] <= frame.Freqs[i-1] {
			t.Fatalf("frequency axis not ascending at bin %d", i)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	frame := &Frame{
		CenterFreq: 100e6,
		SampleRate: 2e6,
		Freqs:      []float64{99e6, 100e6, 101e6},
		Power:      []float64{-80.5, -20.25, -79.75},
	}
	msg := frame.Encode()
	if len(msg) != 3*RecordSize {
		t.Fatalf("expected %d bytes, got %d", 3*RecordSize, len(msg))
	}

	freqs, power, err := DecodeFrame(msg)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i := range frame.Freqs {
		if freqs[i] != frame.Freqs[i] || power[i] != frame.Power[i] {
			t.Fatalf("bin %d mismatch: (%v,%v) vs (%v,%v)", i, freqs[i], power[i], frame.Freqs[i], frame.Power[i])
		}
	}

	if _, _, err := DecodeFrame(msg[:RecordSize-1]); err == nil {
		t.Fatal("truncated message should fail to decode")
	}
}

func TestRunEmitsAtCadenceAndOnlyWithSubscribers(t *testing.T) {
	src := newTunedSim(t, 100e6)
	e := New(src, Config{FFTSize: 128, SampleRate: 1e6, Cadence: 5 * time.Millisecond, UnitDB: true}, testLogger())

	sink := &collectSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, sink) }()

	// Nobody subscribed: the pipeline idles.
	time.Sleep(30 * time.Millisecond)
	if got := len(sink.collected()); got != 0 {
		t.Fatalf("expected no frames without subscribers, got %d", got)
	}

	sink.mu.Lock()
	sink.subs = 1
	sink.mu.Unlock()

	deadline := time.After(2 * time.Second)
	for len(sink.collected()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no frame within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("clean shutdown should return nil, got %v", err)
	}
}

type faultSource struct {
	receiver.SampleSource
}

func (f *faultSource) ReadBlock(context.Context, int) ([]complex64, error) {
	return nil, &receiver.HardwareFault{Reason: "ADC overrun"}
}

func TestRunReturnsReceiverFault(t *testing.T) {
	src := newTunedSim(t, 100e6)
	e := New(&faultSource{SampleSource: src}, Config{FFTSize: 64, SampleRate: 1e6, Cadence: time.Millisecond}, testLogger())

	sink := &collectSink{subs: 1}
	err := e.Run(context.Background(), sink)
	var fault *receiver.HardwareFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected the hardware fault to surface, got %v", err)
	}
}
