package ctl

import (
	"fmt"
	"math"
)

// ReceiverJSON mirrors the receiver status block of a telescope info
// response.
type ReceiverJSON struct {
	Ready       bool    `json:"ready"`
	TunedFreqHz float64 `json:"tuned_freq_hz"`
	Error       string  `json:"error"`
}

// DirectionJSON is a horizontal pointing in radians.
type DirectionJSON struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// TargetJSON mirrors a pointing target.
type TargetJSON struct {
	Kind           string  `json:"kind"`
	RightAscension float64 `json:"right_ascension"`
	Declination    float64 `json:"declination"`
	Longitude      float64 `json:"longitude"`
	Latitude       float64 `json:"latitude"`
	Azimuth        float64 `json:"azimuth"`
	Elevation      float64 `json:"elevation"`
}

// RotatorJSON mirrors the rotator block of a telescope info response.
type RotatorJSON struct {
	Status       string        `json:"status"`
	Target       TargetJSON    `json:"target"`
	Current      DirectionJSON `json:"current"`
	Commanded    DirectionJSON `json:"commanded"`
	HasCommanded bool          `json:"has_commanded"`
	Error        string        `json:"error"`
}

// TelescopeJSON mirrors GET /api/telescopes/{id}.
type TelescopeJSON struct {
	ID           string       `json:"id"`
	Receiver     ReceiverJSON `json:"receiver"`
	Subscribers  int          `json:"subscribers"`
	Integrating  bool         `json:"integrating"`
	Fault        string       `json:"fault"`
	Rotator      *RotatorJSON `json:"rotator"`
	CenterFreqHz float64      `json:"center_freq_hz"`
	SampleRateHz float64      `json:"sample_rate_hz"`
	FFTSize      int          `json:"fft_size"`
}

// Telescopes lists the fleet.
func Telescopes(baseURL string, jsonOut bool) error {
	var resp struct {
		Telescopes []TelescopeJSON `json:"telescopes"`
	}
	if err := getJSON(baseURL, "/api/telescopes", &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  TELESCOPES"))
	fmt.Println(rule(56))
	for _, t := range resp.Telescopes {
		state := "ready"
		switch {
		case t.Fault != "":
			state = colorize(red, "FAULT")
		case !t.Receiver.Ready:
			state = colorize(dim, "not tuned")
		case t.Rotator != nil:
			state = colorize(statusColor(t.Rotator.Status), t.Rotator.Status)
		}
		fmt.Printf("  %-12s %-14s %-14s %d viewers\n",
			t.ID, formatFreq(t.Receiver.TunedFreqHz), state, t.Subscribers)
	}
	fmt.Println()
	return nil
}

// TelescopeInfo prints the detail view for one telescope.
func TelescopeInfo(baseURL, id string, jsonOut bool) error {
	var t TelescopeJSON
	if err := getJSON(baseURL, "/api/telescopes/"+id, &t); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(t)
	}

	fmt.Println()
	fmt.Println(header("  TELESCOPE " + t.ID))
	fmt.Println(rule(44))
	fmt.Printf("  %-14s %s\n", colorize(dim, "Tuned:"), formatFreq(t.Receiver.TunedFreqHz))
	fmt.Printf("  %-14s %s\n", colorize(dim, "Bandwidth:"), formatFreq(t.SampleRateHz))
	fmt.Printf("  %-14s %d bins\n", colorize(dim, "FFT:"), t.FFTSize)
	fmt.Printf("  %-14s %d\n", colorize(dim, "Viewers:"), t.Subscribers)
	fmt.Printf("  %-14s %v\n", colorize(dim, "Integrating:"), t.Integrating)
	if t.Fault != "" {
		fmt.Printf("  %-14s %s\n", colorize(dim, "Fault:"), colorize(red, t.Fault))
	}
	if t.Receiver.Error != "" {
		fmt.Printf("  %-14s %s\n", colorize(dim, "Receiver:"), colorize(red, t.Receiver.Error))
	}
	if r := t.Rotator; r != nil {
		fmt.Printf("  %-14s %s\n", colorize(dim, "Rotator:"), colorize(statusColor(r.Status), r.Status))
		fmt.Printf("  %-14s az %.2f° el %.2f°\n", colorize(dim, "Pointing:"),
			r.Current.Azimuth*180/math.Pi, r.Current.Elevation*180/math.Pi)
		fmt.Printf("  %-14s %s\n", colorize(dim, "Target:"), r.Target.Kind)
		if r.Error != "" {
			fmt.Printf("  %-14s %s\n", colorize(dim, "Pointer err:"), colorize(yellow, r.Error))
		}
	}
	fmt.Println()
	return nil
}
