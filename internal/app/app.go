// Package app wires together the HTTP server, the telescope fleet, and
// the booking scheduler. It owns the daemon's lifecycle: the fleet
// pipelines, the reservation store, and the API surface all start and
// stop with App.Run.
package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svartdal/telescoped/internal/booking"
	"github.com/svartdal/telescoped/internal/config"
	"github.com/svartdal/telescoped/internal/coords"
	"github.com/svartdal/telescoped/internal/metrics"
	"github.com/svartdal/telescoped/internal/receiver"
	"github.com/svartdal/telescoped/internal/rotator"
	"github.com/svartdal/telescoped/internal/spectrum"
	"github.com/svartdal/telescoped/internal/telescope"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger *log.Logger
	Cfg    config.Config
	Bind   string
}

// App is the top-level daemon process. It manages the HTTP server, the
// booking scheduler, and the telescope fleet.
type App struct {
	log    *log.Logger
	cfg    config.Config
	bind   string
	server *http.Server

	startedAt time.Time

	store    *booking.Store
	sched    *booking.Scheduler
	fleet    *telescope.Registry
	upgrader websocket.Upgrader
}

// New opens the booking store and assembles the fleet from the
// configuration. Call Run to start serving.
func New(opts Options) (*App, error) {
	store, err := booking.OpenStore(opts.Cfg.Store.Path, opts.Cfg.Store.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("open booking store: %w", err)
	}
	sched := booking.NewScheduler(store, booking.Options{
		OpenWhenUnbooked: opts.Cfg.Booking.OpenWhenUnbooked,
		Logger:           opts.Logger,
	})

	a := &App{
		log:       opts.Logger,
		cfg:       opts.Cfg,
		bind:      opts.Bind,
		startedAt: time.Now(),
		store:     store,
		sched:     sched,
		fleet:     telescope.NewRegistry(opts.Logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	for _, tc := range opts.Cfg.Telescopes {
		tel, err := a.buildTelescope(tc)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("telescope %q: %w", tc.ID, err)
		}
		a.fleet.Add(tel)
	}
	return a, nil
}

// buildTelescope turns one config entry into a wired instrument.
func (a *App) buildTelescope(tc config.TelescopeConfig) (*telescope.Telescope, error) {
	loc := coords.Location{
		Longitude: tc.Longitude * math.Pi / 180,
		Latitude:  tc.Latitude * math.Pi / 180,
	}
	minElev := tc.MinElevation * math.Pi / 180

	var src receiver.SampleSource
	var pointer rotator.Pointer
	switch tc.Kind {
	case "simulated":
		src = receiver.NewSimulated(receiver.SimConfig{
			SampleRate:    tc.SampleRateHz,
			NoisePower:    tc.Sim.NoisePower,
			SignalFreq:    tc.Sim.SignalFreqHz,
			SignalPower:   tc.Sim.SignalPower,
			SignalDriftHz: tc.Sim.SignalDriftHz,
			Pace:          true,
		})
		pointer = rotator.NewSimulated(loc, minElev)
	case "hardware":
		src = receiver.NewReal(receiver.NewTCPDriver(tc.DriverAddr, tc.SampleRateHz))
		if tc.RotatorAddr != "" {
			pointer = rotator.NewRot2Prog(rotator.Options{
				Addr:         tc.RotatorAddr,
				Location:     loc,
				MinElevation: minElev,
				Logger:       a.log,
			})
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", tc.Kind)
	}

	return telescope.New(telescope.Options{
		ID:     tc.ID,
		Source: src,
		Engine: spectrum.Config{
			FFTSize:    tc.FFTSize,
			SampleRate: tc.SampleRateHz,
			Cadence:    time.Duration(tc.CadenceMs) * time.Millisecond,
			UnitDB:     tc.Unit == "db",
		},
		QueueDepth:  a.cfg.Stream.QueueDepth,
		Pointer:     pointer,
		Scheduler:   a.sched,
		Logger:      a.log,
		InitialFreq: tc.CenterFreqHz,
	}), nil
}

// Run starts the fleet pipelines and the HTTP server. It blocks until
// the context is cancelled or the server returns an error.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" && a.cfg.Server.Bind != "" {
		bind = a.cfg.Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8080"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Printf("listening on http://%s", bind)

	go a.fleet.Run(ctx)

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")
		_ = a.server.Shutdown(context.Background())
		a.store.Close()
	}()

	return a.server.Serve(ln)
}

// handler is the full chain the server runs: the mux wrapped in the
// request metrics middleware.
func (a *App) handler() http.Handler {
	return metrics.Middleware(a.routes())
}

// routes builds the ServeMux. Parametrized telescope and booking paths
// are dispatched by prefix.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/telescopes", a.handleTelescopes)
	mux.HandleFunc("/api/telescopes/", a.handleTelescope)
	mux.HandleFunc("/api/bookings", a.handleBookings)
	mux.HandleFunc("/api/bookings/", a.handleBooking)
	mux.HandleFunc("/api/users/", a.handleUser)

	mux.HandleFunc("/ws/telescope/", a.handleSpectrumStream)
	return mux
}

// identity returns the authenticated user. Authentication happens
// upstream (reverse proxy); the daemon trusts X-Remote-User as an
// opaque id.
func identity(r *http.Request) string {
	return r.Header.Get("X-Remote-User")
}
