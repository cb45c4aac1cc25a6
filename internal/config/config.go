// Package config handles loading, defaulting, and validation of the
// telescoped TOML configuration file. Every section maps to a typed
// struct so the rest of the codebase gets strong typing without manual
// key lookups.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
// Telescope entries are [[telescope]] array tables.
type Config struct {
	Logging    LoggingConfig     `toml:"logging"   json:"logging"`
	Server     ServerConfig      `toml:"server"    json:"server"`
	Store      StoreConfig       `toml:"store"     json:"store"`
	Booking    BookingConfig     `toml:"booking"   json:"booking"`
	Stream     StreamConfig      `toml:"stream"    json:"stream"`
	Telescopes []TelescopeConfig `toml:"telescope" json:"telescope"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type StoreConfig struct {
	Path     string `toml:"path"      json:"path"`
	PoolSize int    `toml:"pool_size" json:"pool_size"`
}

type BookingConfig struct {
	// OpenWhenUnbooked lets anyone command a telescope that has no
	// active booking. Off by default.
	OpenWhenUnbooked bool `toml:"open_when_unbooked" json:"open_when_unbooked"`
}

type StreamConfig struct {
	// QueueDepth is the per-viewer frame queue; the oldest frame is
	// dropped when a slow viewer falls behind.
	QueueDepth int `toml:"queue_depth" json:"queue_depth"`
}

// TelescopeConfig describes one telescope. Kind selects the backend:
// "simulated" needs no hardware, "hardware" needs a receiver driver
// address and optionally a rotator address.
type TelescopeConfig struct {
	ID           string  `toml:"id"             json:"id"`
	Kind         string  `toml:"kind"           json:"kind"`
	CenterFreqHz float64 `toml:"center_freq_hz" json:"center_freq_hz"`
	SampleRateHz float64 `toml:"sample_rate_hz" json:"sample_rate_hz"`
	FFTSize      int     `toml:"fft_size"       json:"fft_size"`
	CadenceMs    int     `toml:"cadence_ms"     json:"cadence_ms"`
	Unit         string  `toml:"unit"           json:"unit"` // "db" or "linear"

	// Site coordinates in degrees, used for pointing.
	Latitude     float64 `toml:"latitude"      json:"latitude"`
	Longitude    float64 `toml:"longitude"     json:"longitude"`
	MinElevation float64 `toml:"min_elevation" json:"min_elevation"`

	// Hardware backends.
	DriverAddr  string `toml:"driver_addr"  json:"driver_addr"`
	RotatorAddr string `toml:"rotator_addr" json:"rotator_addr"`

	Sim SimConfig `toml:"sim" json:"sim"`
}

// SimConfig tunes the simulated receiver's synthetic signal.
type SimConfig struct {
	NoisePower    float64 `toml:"noise_power"     json:"noise_power"`
	SignalFreqHz  float64 `toml:"signal_freq_hz"  json:"signal_freq_hz"`
	SignalPower   float64 `toml:"signal_power"    json:"signal_power"`
	SignalDriftHz float64 `toml:"signal_drift_hz" json:"signal_drift_hz"`
}

// Default returns a Config populated with sane defaults, including one
// simulated telescope under the reserved id "fake" so a fresh install
// streams spectra with no hardware attached. The site coordinates are
// the Onsala observatory.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "0.0.0.0:8080",
		},
		Store: StoreConfig{
			Path:     "/var/lib/telescoped/bookings.db",
			PoolSize: 4,
		},
		Booking: BookingConfig{
			OpenWhenUnbooked: false,
		},
		Stream: StreamConfig{
			QueueDepth: 8,
		},
		Telescopes: []TelescopeConfig{
			{
				ID:           "fake",
				Kind:         "simulated",
				CenterFreqHz: 1420.4e6,
				SampleRateHz: 2.4e6,
				FFTSize:      1024,
				CadenceMs:    100,
				Unit:         "db",
				Latitude:     57.393109,
				Longitude:    11.917798,
				MinElevation: 5,
				Sim: SimConfig{
					NoisePower:    1.0,
					SignalFreqHz:  1420.6e6,
					SignalPower:   8.0,
					SignalDriftHz: 500,
				},
			},
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults,
// and validates the result. A [[telescope]] array in the file replaces
// the default fleet entirely; per-entry gaps are filled afterwards.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	for i := range cfg.Telescopes {
		cfg.Telescopes[i].fillDefaults()
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// fillDefaults completes a telescope entry the TOML file left sparse.
// Array tables do not layer over defaults the way plain sections do.
func (t *TelescopeConfig) fillDefaults() {
	if t.Kind == "" {
		t.Kind = "simulated"
	}
	if t.CenterFreqHz == 0 {
		t.CenterFreqHz = 1420.4e6
	}
	if t.SampleRateHz == 0 {
		t.SampleRateHz = 2.4e6
	}
	if t.FFTSize == 0 {
		t.FFTSize = 1024
	}
	if t.CadenceMs == 0 {
		t.CadenceMs = 100
	}
	if t.Unit == "" {
		t.Unit = "db"
	}
	if t.MinElevation == 0 {
		t.MinElevation = 5
	}
}

func validate(cfg Config) error {
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.PoolSize < 1 {
		return errors.New("store.pool_size must be >= 1")
	}
	if cfg.Stream.QueueDepth < 1 {
		return errors.New("stream.queue_depth must be >= 1")
	}
	if len(cfg.Telescopes) == 0 {
		return errors.New("at least one [[telescope]] entry is required")
	}
	seen := make(map[string]bool)
	for _, t := range cfg.Telescopes {
		if t.ID == "" {
			return errors.New("telescope.id must not be empty")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate telescope id %q", t.ID)
		}
		seen[t.ID] = true
		switch t.Kind {
		case "simulated":
		case "hardware":
			if t.DriverAddr == "" {
				return fmt.Errorf("telescope %q: driver_addr is required for kind \"hardware\"", t.ID)
			}
		default:
			return fmt.Errorf("telescope %q: kind must be \"simulated\" or \"hardware\"", t.ID)
		}
		if t.SampleRateHz <= 0 {
			return fmt.Errorf("telescope %q: sample_rate_hz must be > 0", t.ID)
		}
		if t.FFTSize < 2 || t.FFTSize&(t.FFTSize-1) != 0 {
			return fmt.Errorf("telescope %q: fft_size must be a power of two", t.ID)
		}
		if t.CadenceMs < 1 {
			return fmt.Errorf("telescope %q: cadence_ms must be >= 1", t.ID)
		}
		if t.Unit != "db" && t.Unit != "linear" {
			return fmt.Errorf("telescope %q: unit must be \"db\" or \"linear\"", t.ID)
		}
		if t.MinElevation < 0 || t.MinElevation > 90 {
			return fmt.Errorf("telescope %q: min_elevation must be between 0 and 90", t.ID)
		}
		if t.Latitude < -90 || t.Latitude > 90 {
			return fmt.Errorf("telescope %q: latitude must be between -90 and 90", t.ID)
		}
	}
	return nil
}
