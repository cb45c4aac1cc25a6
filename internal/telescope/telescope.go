// Package telescope ties one receiver, its spectrum pipeline, and its
// optional dish pointer into a single controllable instrument, and keeps
// the fleet of them in a registry. Every command is gated by the booking
// scheduler, and at most one command runs per telescope at a time.
package telescope

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/svartdal/telescoped/internal/booking"
	"github.com/svartdal/telescoped/internal/broadcast"
	"github.com/svartdal/telescoped/internal/coords"
	"github.com/svartdal/telescoped/internal/receiver"
	"github.com/svartdal/telescoped/internal/rotator"
	"github.com/svartdal/telescoped/internal/spectrum"
)

var (
	// ErrBusy means another command is in flight on this telescope.
	// Commands never queue; the caller retries.
	ErrBusy = errors.New("telescope busy")

	// ErrNoRotator rejects pointing commands on a telescope without a
	// dish pointer.
	ErrNoRotator = errors.New("telescope has no rotator")

	// ErrNotIntegrating is returned by StopIntegration when no
	// integration is running.
	ErrNotIntegrating = errors.New("no integration in progress")
)

// Options assembles one telescope.
type Options struct {
	ID         string
	Source     receiver.SampleSource
	Engine     spectrum.Config
	QueueDepth int
	Pointer    rotator.Pointer // nil for dishes we cannot steer
	Scheduler  *booking.Scheduler
	Logger     *log.Logger

	// InitialFreq, when non-zero, tunes the receiver once at startup so
	// the pipeline produces frames before any user command arrives.
	InitialFreq float64
}

// Info is the status snapshot returned to API clients.
type Info struct {
	ID          string          `json:"id"`
	Receiver    receiver.Status `json:"receiver"`
	Subscribers int             `json:"subscribers"`
	Integrating bool            `json:"integrating"`
	Fault       string          `json:"fault,omitempty"`
	Rotator     *rotator.Info   `json:"rotator,omitempty"`
	CenterFreq  float64         `json:"center_freq_hz"`
	SampleRate  float64         `json:"sample_rate_hz"`
	FFTSize     int             `json:"fft_size"`
	Cadence     time.Duration   `json:"cadence_ns"`
}

// Telescope is one instrument: sample source, FFT engine, frame stream,
// and optionally a dish pointer. The pipeline components are wired at
// construction and started by Run.
type Telescope struct {
	id      string
	initial float64
	src     receiver.SampleSource
	engine  *spectrum.Engine
	stream  *broadcast.Broadcaster
	pointer rotator.Pointer
	sched   *booking.Scheduler
	logger  *log.Logger
	cfg     spectrum.Config

	// busy is the per-telescope command slot: try-acquire only, so a
	// second concurrent command fails fast instead of queueing.
	busy chan struct{}

	mu          sync.Mutex
	fault       error
	integrating bool
	integ       *integration
	lastResult  *spectrum.Frame
}

// integration accumulates published frames into an average.
type integration struct {
	freqs []float64
	sum   []float64
	count int
	start time.Time
}

func New(opts Options) *Telescope {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = broadcast.DefaultQueueDepth
	}
	t := &Telescope{
		id:      opts.ID,
		initial: opts.InitialFreq,
		src:     opts.Source,
		stream:  broadcast.New(opts.ID, opts.QueueDepth),
		pointer: opts.Pointer,
		sched:   opts.Scheduler,
		logger:  opts.Logger,
		cfg:     opts.Engine,
		busy:    make(chan struct{}, 1),
	}
	t.engine = spectrum.New(opts.Source, opts.Engine, opts.Logger)
	return t
}

func (t *Telescope) ID() string { return t.id }

// Stream exposes the frame broadcaster for viewer subscriptions.
func (t *Telescope) Stream() *broadcast.Broadcaster { return t.stream }

// acquire claims the command slot or fails with ErrBusy.
func (t *Telescope) acquire() (release func(), err error) {
	select {
	case t.busy <- struct{}{}:
		return func() { <-t.busy }, nil
	default:
		return nil, ErrBusy
	}
}

// authorize checks that userID controls this telescope right now.
func (t *Telescope) authorize(ctx context.Context, userID string) error {
	return t.sched.Authorize(ctx, t.id, userID)
}

// Tune retunes the receiver to centerFreq.
func (t *Telescope) Tune(ctx context.Context, userID string, centerFreq float64) error {
	if err := t.authorize(ctx, userID); err != nil {
		return err
	}
	release, err := t.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := t.src.Tune(ctx, centerFreq); err != nil {
		return err
	}
	t.logger.Printf("telescope %s: tuned to %.3f MHz by %s", t.id, centerFreq/1e6, userID)
	return nil
}

// SetTarget points the dish at a sky target.
func (t *Telescope) SetTarget(ctx context.Context, userID string, target coords.Target) error {
	if err := t.authorize(ctx, userID); err != nil {
		return err
	}
	if t.pointer == nil {
		return ErrNoRotator
	}
	release, err := t.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := t.pointer.SetTarget(target); err != nil {
		return err
	}
	t.logger.Printf("telescope %s: target %s set by %s", t.id, target.Kind, userID)
	return nil
}

// Restart reinitializes the pointing hardware and parks the dish.
func (t *Telescope) Restart(ctx context.Context, userID string) error {
	if err := t.authorize(ctx, userID); err != nil {
		return err
	}
	if t.pointer == nil {
		return ErrNoRotator
	}
	release, err := t.acquire()
	if err != nil {
		return err
	}
	defer release()
	t.logger.Printf("telescope %s: restart by %s", t.id, userID)
	return t.pointer.Restart(ctx)
}

// StartIntegration begins averaging spectra. Frames published while an
// integration runs are accumulated bin by bin; acquisition keeps going
// even with zero stream viewers.
func (t *Telescope) StartIntegration(ctx context.Context, userID string) error {
	if err := t.authorize(ctx, userID); err != nil {
		return err
	}
	release, err := t.acquire()
	if err != nil {
		return err
	}
	defer release()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.integrating {
		return nil
	}
	t.integrating = true
	t.integ = &integration{start: time.Now()}
	t.logger.Printf("telescope %s: integration started by %s", t.id, userID)
	return nil
}

// StopIntegration ends the running integration and returns the averaged
// spectrum. The result is also retained for Info-era reads.
func (t *Telescope) StopIntegration(ctx context.Context, userID string) (*spectrum.Frame, error) {
	if err := t.authorize(ctx, userID); err != nil {
		return nil, err
	}
	release, err := t.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.integrating {
		return nil, ErrNotIntegrating
	}
	t.integrating = false
	integ := t.integ
	t.integ = nil
	if integ.count == 0 {
		return nil, ErrNotIntegrating
	}
	avg := make([]float64, len(integ.sum))
	for i, v := range integ.sum {
		avg[i] = v / float64(integ.count)
	}
	frame := &spectrum.Frame{
		SampleRate: t.cfg.SampleRate,
		Freqs:      integ.freqs,
		Power:      avg,
		Time:       time.Now(),
	}
	if n := len(integ.freqs); n > 0 {
		frame.CenterFreq = integ.freqs[n/2]
	}
	t.lastResult = frame
	t.logger.Printf("telescope %s: integration of %d spectra stopped by %s",
		t.id, integ.count, userID)
	return frame, nil
}

// LastResult returns the most recent completed integration, or nil.
func (t *Telescope) LastResult() *spectrum.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastResult
}

// Publish feeds the frame stream and the running integration, if any.
// It is the engine's sink.
func (t *Telescope) Publish(f *spectrum.Frame) {
	t.mu.Lock()
	if t.integrating {
		if t.integ.sum == nil {
			t.integ.freqs = append([]float64(nil), f.Freqs...)
			t.integ.sum = make([]float64, len(f.Power))
		}
		if len(f.Power) == len(t.integ.sum) {
			for i, v := range f.Power {
				t.integ.sum[i] += v
			}
			t.integ.count++
		}
	}
	t.mu.Unlock()
	t.stream.Publish(f)
}

// SubscriberCount counts stream viewers plus the integration, which
// keeps the engine acquiring while a measurement runs unattended.
func (t *Telescope) SubscriberCount() int {
	n := t.stream.SubscriberCount()
	t.mu.Lock()
	if t.integrating {
		n++
	}
	t.mu.Unlock()
	return n
}

// Info snapshots the telescope state.
func (t *Telescope) Info() Info {
	t.mu.Lock()
	fault := t.fault
	integrating := t.integrating
	t.mu.Unlock()

	info := Info{
		ID:          t.id,
		Receiver:    t.src.Status(),
		Subscribers: t.stream.SubscriberCount(),
		Integrating: integrating,
		CenterFreq:  t.src.Status().TunedFreq,
		SampleRate:  t.cfg.SampleRate,
		FFTSize:     t.cfg.FFTSize,
		Cadence:     t.cfg.Cadence,
	}
	if fault != nil {
		info.Fault = fault.Error()
	}
	if t.pointer != nil {
		ri := t.pointer.Info()
		info.Rotator = &ri
	}
	return info
}

// Run drives the acquisition pipeline and the pointer until ctx is
// canceled. A pipeline fault closes the frame stream with the fault so
// every viewer learns why, and Run returns; other telescopes are not
// involved.
func (t *Telescope) Run(ctx context.Context) error {
	if t.initial > 0 {
		if err := t.src.Tune(ctx, t.initial); err != nil {
			t.logger.Printf("telescope %s: initial tune: %v", t.id, err)
		}
	}

	var wg sync.WaitGroup
	if t.pointer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.pointer.Run(ctx); err != nil && ctx.Err() == nil {
				t.logger.Printf("telescope %s: rotator: %v", t.id, err)
			}
		}()
	}

	err := t.engine.Run(ctx, t)
	if err != nil && ctx.Err() == nil {
		t.mu.Lock()
		t.fault = err
		t.mu.Unlock()
		t.stream.Close(err)
		t.logger.Printf("telescope %s: pipeline fault: %v", t.id, err)
	} else {
		t.stream.Close(nil)
	}
	wg.Wait()
	if closeErr := t.src.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
