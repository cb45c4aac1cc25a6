package receiver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// Driver is the vendor boundary: the minimal surface a hardware receiver
// driver must provide. Driver internals (USB, network, DMA buffering)
// are the vendor's problem; this package only maps their failures into
// the receiver error taxonomy.
type Driver interface {
	Tune(ctx context.Context, centerFreq float64) error
	ReadBlock(ctx context.Context, n int) ([]complex64, error)
	Close() error
}

// Real is a SampleSource backed by a vendor Driver. It tracks tuning
// state, classifies driver errors, and latches hardware faults: after a
// HardwareFault the receiver stays failed until it is re-initialized.
type Real struct {
	drv Driver

	mu         sync.Mutex
	tuned      bool
	centerFreq float64
	fault      error
}

// NewReal wraps a vendor driver.
func NewReal(drv Driver) *Real {
	return &Real{drv: drv}
}

// Tune retunes the hardware. Real synthesizers settle slowly, so this can
// take a while; ctx bounds the wait.
func (r *Real) Tune(ctx context.Context, centerFreq float64) error {
	r.mu.Lock()
	if r.fault != nil {
		err := r.fault
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	if err := r.drv.Tune(ctx, centerFreq); err != nil {
		return r.classify(err)
	}

	r.mu.Lock()
	r.tuned = true
	r.centerFreq = centerFreq
	r.mu.Unlock()
	return nil
}

// ReadBlock reads n samples from the driver, blocking until the driver
// has buffered enough.
func (r *Real) ReadBlock(ctx context.Context, n int) ([]complex64, error) {
	r.mu.Lock()
	if r.fault != nil {
		err := r.fault
		r.mu.Unlock()
		return nil, err
	}
	if !r.tuned {
		r.mu.Unlock()
		return nil, ErrNotTuned
	}
	r.mu.Unlock()

	block, err := r.drv.ReadBlock(ctx, n)
	if err != nil {
		return nil, r.classify(err)
	}
	return block, nil
}

// classify maps a driver error into the receiver taxonomy. Connection
// teardown becomes ErrDisconnected; anything else from the hardware is a
// latched HardwareFault. Context cancellation passes through untouched.
func (r *Real) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var mapped error
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.As(err, &netErr):
		mapped = ErrDisconnected
	default:
		mapped = &HardwareFault{Reason: err.Error()}
	}

	r.mu.Lock()
	r.fault = mapped
	r.mu.Unlock()
	return mapped
}

// Status reports tuning state and any latched fault.
func (r *Real) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{Ready: r.tuned && r.fault == nil, TunedFreq: r.centerFreq}
	if r.fault != nil {
		st.Err = r.fault.Error()
	}
	return st
}

// Close shuts down the driver.
func (r *Real) Close() error {
	r.mu.Lock()
	if r.fault == nil {
		r.fault = ErrDisconnected
	}
	r.mu.Unlock()
	return r.drv.Close()
}
