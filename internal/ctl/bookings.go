package ctl

import (
	"fmt"
	"net/http"
	"time"
)

// BookingJSON mirrors one reservation.
type BookingJSON struct {
	ID          int64     `json:"id"`
	TelescopeID string    `json:"telescope_id"`
	UserID      string    `json:"user_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Bookings lists upcoming reservations.
func Bookings(baseURL string, jsonOut bool) error {
	var resp struct {
		Bookings []BookingJSON `json:"bookings"`
	}
	if err := getJSON(baseURL, "/api/bookings", &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  BOOKINGS (next 7 days)"))
	fmt.Println(rule(62))
	if len(resp.Bookings) == 0 {
		fmt.Println(colorize(dim, "  no reservations"))
	}
	for _, b := range resp.Bookings {
		fmt.Printf("  #%-5d %-12s %-10s %s – %s\n",
			b.ID, b.TelescopeID, b.UserID,
			b.Start.Local().Format("Jan 02 15:04"),
			b.End.Local().Format("15:04"))
	}
	fmt.Println()
	return nil
}

// BookOptions are the parameters for creating a reservation.
type BookOptions struct {
	Telescope string
	Start     time.Time
	Duration  time.Duration
	JSON      bool
}

// Book reserves a telescope slot for user.
func Book(baseURL, user string, opts BookOptions) error {
	body := map[string]any{
		"telescope_id": opts.Telescope,
		"start":        opts.Start.UTC(),
		"end":          opts.Start.Add(opts.Duration).UTC(),
	}
	var b BookingJSON
	if err := postJSON(baseURL, "/api/bookings", user, body, &b); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(b)
	}
	fmt.Printf("booked #%d: %s for %s, %s – %s\n",
		b.ID, b.TelescopeID, b.UserID,
		b.Start.Local().Format("Jan 02 15:04"),
		b.End.Local().Format("15:04"))
	return nil
}

// CancelBooking deletes a reservation owned by user.
func CancelBooking(baseURL, user string, id int64) error {
	path := fmt.Sprintf("/api/bookings/%d", id)
	if err := do(http.MethodDelete, baseURL, path, user, nil, nil); err != nil {
		return err
	}
	fmt.Printf("cancelled #%d\n", id)
	return nil
}
