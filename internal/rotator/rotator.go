package rotator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/svartdal/telescoped/internal/coords"
)

// ErrBelowHorizon rejects a pointing target that sits under the
// configured minimum elevation at the time it is evaluated.
var ErrBelowHorizon = errors.New("rotator: target below minimum elevation")

// Status is the coarse pointing state reported to clients.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSlewing  Status = "slewing"
	StatusTracking Status = "tracking"
)

// Stow is where the dish rests when nothing is being tracked.
var Stow = coords.Direction{Azimuth: 0, Elevation: math.Pi / 2}

// Info is a snapshot of the pointer state.
type Info struct {
	Status       Status           `json:"status"`
	Target       coords.Target    `json:"target"`
	Current      coords.Direction `json:"current"`
	Commanded    coords.Direction `json:"commanded"`
	HasCommanded bool             `json:"has_commanded"`
	Error        string           `json:"error,omitempty"`
}

// Pointer tracks a sky target with a dish. Implementations keep the
// commanded direction fresh as the target drifts with the sky.
type Pointer interface {
	// SetTarget replaces the tracked target. Targets below the minimum
	// elevation are rejected with ErrBelowHorizon and the previous
	// target is kept.
	SetTarget(t coords.Target) error
	Target() coords.Target
	Info() Info
	// Restart reinitializes the pointing hardware.
	Restart(ctx context.Context) error
	// Run drives the tracking loop until ctx is canceled.
	Run(ctx context.Context) error
}

// Options configures a rot2prog pointer.
type Options struct {
	Addr         string
	Location     coords.Location
	MinElevation float64       // radians
	Tolerance    float64       // in units of 0.1 degree, 0 means 1.0
	Interval     time.Duration // tracking tick, 0 means 1s
	Logger       *log.Logger
}

// Rot2Prog points a dish through a rot2prog rotator control unit
// reachable over TCP. The tracking loop polls the current direction and
// re-commands the unit whenever the target has drifted more than one
// tolerance away from the last commanded direction.
type Rot2Prog struct {
	opts Options

	mu        sync.Mutex
	conn      net.Conn
	target    coords.Target
	commanded coords.Direction
	hasCmd    bool
	current   coords.Direction
	lastErr   string
}

// NewRot2Prog returns a pointer for the control unit at opts.Addr. The
// connection is established lazily by Run.
func NewRot2Prog(opts Options) *Rot2Prog {
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1.0
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Rot2Prog{opts: opts, target: coords.Parked}
}

func (r *Rot2Prog) SetTarget(t coords.Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Kind != coords.TargetParked {
		hor := t.Horizontal(r.opts.Location, time.Now(), Stow)
		if hor.Elevation < r.opts.MinElevation {
			return fmt.Errorf("%w: elevation %.1f deg", ErrBelowHorizon, hor.Elevation*180/math.Pi)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = t
	r.lastErr = ""
	return nil
}

func (r *Rot2Prog) Target() coords.Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

func (r *Rot2Prog) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := Info{
		Status:       StatusIdle,
		Target:       r.target,
		Current:      r.current,
		Commanded:    r.commanded,
		HasCommanded: r.hasCmd,
		Error:        r.lastErr,
	}
	if r.hasCmd {
		// Treble tolerance here so the state does not flap while the
		// unit settles around the commanded direction.
		if directionsClose(r.current, r.commanded, 3*r.opts.Tolerance) {
			info.Status = StatusTracking
		} else {
			info.Status = StatusSlewing
		}
	}
	return info
}

func (r *Rot2Prog) Restart(ctx context.Context) error {
	_, err := r.exec(ctx, command{kind: cmdRestart})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.hasCmd = false
	r.target = coords.Parked
	r.mu.Unlock()
	return nil
}

// Run polls and re-commands the control unit until ctx is canceled.
// Lost connections are re-dialed with exponential backoff; tracking
// resumes where it left off.
func (r *Rot2Prog) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	defer r.closeConn()

	// Park the dish on startup so we never inherit motion from a
	// previous session.
	if _, err := r.exec(ctx, command{kind: cmdStop}); err != nil {
		r.opts.Logger.Printf("rotator %s: initial stop: %v", r.opts.Addr, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.tick(ctx, time.Now()); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.opts.Logger.Printf("rotator %s: %v", r.opts.Addr, err)
			}
		}
	}
}

func (r *Rot2Prog) tick(ctx context.Context, now time.Time) error {
	resp, err := r.exec(ctx, command{kind: cmdGetDirection})
	if err != nil {
		return fmt.Errorf("read direction: %w", err)
	}

	r.mu.Lock()
	r.current = resp.dir
	target := r.target
	commanded := r.commanded
	hasCmd := r.hasCmd
	r.mu.Unlock()

	if target.Kind == coords.TargetParked {
		if hasCmd {
			if _, err := r.exec(ctx, command{kind: cmdStop}); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			r.setCommanded(coords.Direction{}, false, "")
		}
		return nil
	}

	desired := target.Horizontal(r.opts.Location, now, Stow)
	if desired.Elevation < r.opts.MinElevation {
		// The sky carried the target below the horizon limit. Stop the
		// dish and surface the condition until a new target arrives.
		if hasCmd {
			if _, err := r.exec(ctx, command{kind: cmdStop}); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
		}
		r.setCommanded(coords.Direction{}, false, ErrBelowHorizon.Error())
		return nil
	}

	if !hasCmd || !directionsClose(desired, commanded, r.opts.Tolerance) {
		if _, err := r.exec(ctx, command{kind: cmdSetDirection, dir: desired}); err != nil {
			return fmt.Errorf("set direction: %w", err)
		}
		r.setCommanded(desired, true, "")
	}
	return nil
}

func (r *Rot2Prog) setCommanded(dir coords.Direction, has bool, errMsg string) {
	r.mu.Lock()
	r.commanded = dir
	r.hasCmd = has
	r.lastErr = errMsg
	r.mu.Unlock()
}

// exec sends one command frame and reads the 12-byte reply, dialing the
// control unit first if needed.
func (r *Rot2Prog) exec(ctx context.Context, c command) (response, error) {
	conn, err := r.dial(ctx)
	if err != nil {
		return response{}, err
	}
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	if _, err := conn.Write(c.encode()); err != nil {
		r.closeConn()
		return response{}, err
	}
	raw := make([]byte, 12)
	n := 0
	for n < len(raw) {
		m, err := conn.Read(raw[n:])
		if err != nil {
			r.closeConn()
			return response{}, err
		}
		n += m
	}
	return c.parse(raw)
}

func (r *Rot2Prog) dial(ctx context.Context) (net.Conn, error) {
	r.mu.Lock()
	if r.conn != nil {
		conn := r.conn
		r.mu.Unlock()
		return conn, nil
	}
	r.mu.Unlock()

	var conn net.Conn
	op := func() error {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", r.opts.Addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("dial %s: %w", r.opts.Addr, err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.opts.Logger.Printf("rotator %s: connected", r.opts.Addr)
	return conn, nil
}

func (r *Rot2Prog) closeConn() {
	r.mu.Lock()
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	r.mu.Unlock()
}
