// Telectl is the command-line client for a running telescoped instance.
// It connects over HTTP and WebSocket to query status, manage bookings,
// and drive telescope commands.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/svartdal/telescoped/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8080", "Telescoped daemon URL")
		user    = pflag.StringP("user", "u", os.Getenv("USER"), "Identity for authenticated commands")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
	)

	// Stop parsing global flags at the first non-flag argument (the
	// command name), so subcommand-specific flags are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "telescopes":
		err = ctl.Telescopes(*host, *jsonOut)

	case "telescope":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: telectl telescope <id>")
			break
		}
		err = ctl.TelescopeInfo(*host, subArgs[0], *jsonOut)

	case "bookings":
		err = ctl.Bookings(*host, *jsonOut)

	case "spectrum":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: telectl spectrum <id>")
			break
		}
		err = ctl.Spectrum(*host, subArgs[0], *jsonOut)

	// ── Booking commands ──────────────────────────────────────────
	case "book":
		opts := ctl.BookOptions{JSON: *jsonOut, Start: time.Now(), Duration: time.Hour}
		bookFlags := pflag.NewFlagSet("book", pflag.ContinueOnError)
		startStr := bookFlags.String("start", "", "Start time (RFC3339, default: now)")
		bookFlags.DurationVar(&opts.Duration, "duration", time.Hour, "Reservation length")
		_ = bookFlags.Parse(subArgs)
		if bookFlags.NArg() < 1 {
			err = fmt.Errorf("usage: telectl book <telescope> [--start T] [--duration D]")
			break
		}
		opts.Telescope = bookFlags.Arg(0)
		if *startStr != "" {
			opts.Start, err = time.Parse(time.RFC3339, *startStr)
			if err != nil {
				err = fmt.Errorf("bad --start: %w", err)
				break
			}
		}
		err = ctl.Book(*host, *user, opts)

	case "cancel":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: telectl cancel <booking-id>")
			break
		}
		var id int64
		id, err = strconv.ParseInt(subArgs[0], 10, 64)
		if err != nil {
			err = fmt.Errorf("bad booking id %q", subArgs[0])
			break
		}
		err = ctl.CancelBooking(*host, *user, id)

	case "purge":
		err = ctl.Purge(*host, *user)

	// ── Telescope commands ────────────────────────────────────────
	case "tune":
		if len(subArgs) < 2 {
			err = fmt.Errorf("usage: telectl tune <telescope> <freq-mhz>")
			break
		}
		var mhz float64
		mhz, err = strconv.ParseFloat(subArgs[1], 64)
		if err != nil {
			err = fmt.Errorf("bad frequency %q", subArgs[1])
			break
		}
		err = ctl.Tune(*host, *user, subArgs[0], mhz*1e6)

	case "target":
		opts := ctl.TargetOptions{}
		targetFlags := pflag.NewFlagSet("target", pflag.ContinueOnError)
		targetFlags.StringVar(&opts.Kind, "kind", "galactic", "Target kind: equatorial, galactic, horizontal, parked")
		targetFlags.Float64Var(&opts.A, "a", 0, "First angle in degrees (ra / gal. longitude / azimuth)")
		targetFlags.Float64Var(&opts.B, "b", 0, "Second angle in degrees (dec / gal. latitude / elevation)")
		_ = targetFlags.Parse(subArgs)
		if targetFlags.NArg() < 1 {
			err = fmt.Errorf("usage: telectl target <telescope> --kind K --a A --b B")
			break
		}
		err = ctl.Target(*host, *user, targetFlags.Arg(0), opts)

	case "restart":
		if len(subArgs) < 1 {
			err = fmt.Errorf("usage: telectl restart <telescope>")
			break
		}
		err = ctl.Restart(*host, *user, subArgs[0])

	case "integrate":
		if len(subArgs) < 2 {
			err = fmt.Errorf("usage: telectl integrate <telescope> start|stop|last")
			break
		}
		switch subArgs[1] {
		case "start":
			err = ctl.IntegrationStart(*host, *user, subArgs[0])
		case "stop":
			err = ctl.IntegrationStop(*host, *user, subArgs[0], *jsonOut)
		case "last":
			err = ctl.IntegrationLast(*host, subArgs[0], *jsonOut)
		default:
			err = fmt.Errorf("usage: telectl integrate <telescope> start|stop|last")
		}

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  telectl — telescoped control CLI

  USAGE
    telectl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show daemon state, fleet size, and uptime
    telescopes      List the telescope fleet
    telescope ID    Show one telescope in detail
    bookings        List upcoming reservations
    spectrum ID     Read one live spectrum frame and summarize it

  COMMANDS (booking)
    book TELESCOPE  Reserve a slot (--start, --duration)
    cancel ID       Cancel a reservation you own
    purge           Cancel every reservation you own

  COMMANDS (control)
    tune TELESCOPE MHZ       Retune the receiver
    target TELESCOPE         Point the dish (--kind, --a, --b in degrees)
    restart TELESCOPE        Reinitialize the pointing hardware
    integrate TELESCOPE CMD  Start, stop, or inspect a spectrum integration

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
    -u, --user NAME     Identity for authenticated commands (default: $USER)
        --json          Output raw JSON instead of formatted text
`)
}
