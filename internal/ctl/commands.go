package ctl

import (
	"fmt"
	"math"
	"net/http"
)

// Tune retunes a telescope's receiver.
func Tune(baseURL, user, id string, freqHz float64) error {
	body := map[string]any{"freq_hz": freqHz}
	if err := postJSON(baseURL, "/api/telescopes/"+id+"/tune", user, body, nil); err != nil {
		return err
	}
	fmt.Printf("%s tuned to %s\n", id, formatFreq(freqHz))
	return nil
}

// TargetOptions selects a pointing target. Angles are degrees on the
// command line and converted to radians on the wire.
type TargetOptions struct {
	Kind string
	A    float64 // ra / galactic longitude / azimuth
	B    float64 // dec / galactic latitude / elevation
}

// Target points a telescope at a sky position.
func Target(baseURL, user, id string, opts TargetOptions) error {
	body := map[string]any{"kind": opts.Kind}
	a, b := opts.A*math.Pi/180, opts.B*math.Pi/180
	switch opts.Kind {
	case "equatorial":
		body["right_ascension"], body["declination"] = a, b
	case "galactic":
		body["longitude"], body["latitude"] = a, b
	case "horizontal":
		body["azimuth"], body["elevation"] = a, b
	case "parked":
	default:
		return fmt.Errorf("unknown target kind %q", opts.Kind)
	}
	if err := postJSON(baseURL, "/api/telescopes/"+id+"/target", user, body, nil); err != nil {
		return err
	}
	fmt.Printf("%s target set: %s\n", id, opts.Kind)
	return nil
}

// Restart reinitializes a telescope's pointing hardware.
func Restart(baseURL, user, id string) error {
	if err := postJSON(baseURL, "/api/telescopes/"+id+"/restart", user, nil, nil); err != nil {
		return err
	}
	fmt.Printf("%s restarted\n", id)
	return nil
}

// IntegrationStart begins averaging spectra on a telescope.
func IntegrationStart(baseURL, user, id string) error {
	if err := postJSON(baseURL, "/api/telescopes/"+id+"/integration/start", user, nil, nil); err != nil {
		return err
	}
	fmt.Printf("%s integrating\n", id)
	return nil
}

// IntegrationStop ends the integration and prints the averaged
// spectrum's summary.
func IntegrationStop(baseURL, user, id string, jsonOut bool) error {
	var resp struct {
		Result struct {
			CenterFreqHz float64   `json:"center_freq_hz"`
			Freqs        []float64 `json:"freqs"`
			Power        []float64 `json:"power"`
		} `json:"result"`
	}
	if err := postJSON(baseURL, "/api/telescopes/"+id+"/integration/stop", user, nil, &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp.Result)
	}
	summarizeSpectrum(resp.Result.Freqs, resp.Result.Power)
	return nil
}

// IntegrationLast fetches the most recent completed integration.
func IntegrationLast(baseURL, id string, jsonOut bool) error {
	var resp struct {
		Result struct {
			CenterFreqHz float64   `json:"center_freq_hz"`
			Freqs        []float64 `json:"freqs"`
			Power        []float64 `json:"power"`
		} `json:"result"`
	}
	if err := getJSON(baseURL, "/api/telescopes/"+id+"/integration", &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp.Result)
	}
	summarizeSpectrum(resp.Result.Freqs, resp.Result.Power)
	return nil
}

// Purge cancels every booking the user owns.
func Purge(baseURL, user string) error {
	var resp struct {
		Removed int64 `json:"removed"`
	}
	if err := do(http.MethodDelete, baseURL, "/api/users/"+user, user, nil, &resp); err != nil {
		return err
	}
	fmt.Printf("removed %d booking(s)\n", resp.Removed)
	return nil
}

// summarizeSpectrum prints the peak and span of a power spectrum.
func summarizeSpectrum(freqs, power []float64) {
	if len(freqs) == 0 {
		fmt.Println("empty spectrum")
		return
	}
	peak := 0
	for i, p := range power {
		if p > power[peak] {
			peak = i
		}
	}
	fmt.Printf("%d bins, %s – %s\n", len(freqs), formatFreq(freqs[0]), formatFreq(freqs[len(freqs)-1]))
	fmt.Printf("peak %.2f at %s\n", power[peak], formatFreq(freqs[peak]))
}
