package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name             string `json:"name"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Telescopes       int    `json:"telescopes"`
	Faulted          int    `json:"faulted"`
	OpenWhenUnbooked bool   `json:"open_when_unbooked"`
	StorePath        string `json:"store_path"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOut bool) error {
	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(s)
	}

	policy := "reserved"
	if s.OpenWhenUnbooked {
		policy = "open when unbooked"
	}
	fleet := fmt.Sprintf("%d", s.Telescopes)
	if s.Faulted > 0 {
		fleet += colorize(red, fmt.Sprintf(" (%d faulted)", s.Faulted))
	}

	fmt.Println()
	fmt.Println(header("  TELESCOPED STATUS"))
	fmt.Println(rule(38))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Daemon:"), s.Name)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), formatDuration(time.Duration(s.UptimeSeconds)*time.Second))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Telescopes:"), fleet)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Policy:"), policy)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Store:"), s.StorePath)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), strings.TrimRight(baseURL, "/"))
	fmt.Println()
	return nil
}
