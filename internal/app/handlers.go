package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/svartdal/telescoped/internal/booking"
	"github.com/svartdal/telescoped/internal/coords"
	"github.com/svartdal/telescoped/internal/metrics"
	"github.com/svartdal/telescoped/internal/rotator"
	"github.com/svartdal/telescoped/internal/telescope"
)

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	telescopes := a.fleet.List()
	faulted := 0
	for _, t := range telescopes {
		if t.Info().Fault != "" {
			faulted++
		}
	}

	resp := map[string]any{
		"name":               "telescoped",
		"uptime_seconds":     int64(time.Since(a.startedAt).Seconds()),
		"telescopes":         len(telescopes),
		"faulted":            faulted,
		"open_when_unbooked": a.cfg.Booking.OpenWhenUnbooked,
		"store_path":         a.cfg.Store.Path,
	}

	// Disk usage for the booking store volume.
	if du := diskUsage(a.cfg.Store.Path); du != nil {
		resp["disk"] = du
	}

	writeJSON(w, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
	})
}

func (a *App) handleTelescopes(w http.ResponseWriter, _ *http.Request) {
	list := a.fleet.List()
	infos := make([]telescope.Info, len(list))
	for i, t := range list {
		infos[i] = t.Info()
	}
	writeJSON(w, map[string]any{"telescopes": infos})
}

// handleTelescope dispatches /api/telescopes/{id} and its command
// subpaths.
func (a *App) handleTelescope(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/telescopes/"), "/")
	tel, err := a.fleet.Get(parts[0])
	if err != nil {
		jsonError(w, "unknown telescope", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, tel.Info())
		return
	}

	action := strings.Join(parts[1:], "/")

	// The last completed integration is readable without control of the
	// telescope.
	if action == "integration" && r.Method == http.MethodGet {
		frame := tel.LastResult()
		if frame == nil {
			jsonError(w, "no completed integration", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"result": frame})
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := identity(r)
	if user == "" {
		jsonError(w, "X-Remote-User header required", http.StatusUnauthorized)
		return
	}
	switch action {
	case "tune":
		var req struct {
			FreqHz float64 `json:"freq_hz"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.FreqHz <= 0 {
			jsonError(w, "freq_hz must be > 0", http.StatusBadRequest)
			return
		}
		a.command(w, tel.Tune(r.Context(), user, req.FreqHz))

	case "target":
		var target coords.Target
		if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := target.Validate(); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.command(w, tel.SetTarget(r.Context(), user, target))

	case "restart":
		a.command(w, tel.Restart(r.Context(), user))

	case "integration/start":
		a.command(w, tel.StartIntegration(r.Context(), user))

	case "integration/stop":
		frame, err := tel.StopIntegration(r.Context(), user)
		if err != nil {
			a.commandError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "result": frame})

	default:
		jsonError(w, "unknown action", http.StatusNotFound)
	}
}

// command writes the uniform success/error response for a fire-and-ack
// telescope command.
func (a *App) command(w http.ResponseWriter, err error) {
	if err != nil {
		a.commandError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

// commandError maps the command error taxonomy onto HTTP statuses.
func (a *App) commandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotOwner):
		metrics.CommandRejected("not_owner")
		jsonError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, telescope.ErrBusy):
		metrics.CommandRejected("busy")
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, telescope.ErrNoRotator),
		errors.Is(err, telescope.ErrNotIntegrating):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, rotator.ErrBelowHorizon):
		metrics.CommandRejected("below_horizon")
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *App) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		now := time.Now().UTC()
		from, to := now, now.Add(7*24*time.Hour)
		if v := r.URL.Query().Get("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				jsonError(w, "bad from: "+err.Error(), http.StatusBadRequest)
				return
			}
			from = t
		}
		if v := r.URL.Query().Get("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				jsonError(w, "bad to: "+err.Error(), http.StatusBadRequest)
				return
			}
			to = t
		}
		list, err := a.sched.List(r.Context(), from, to)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"bookings": list})

	case http.MethodPost:
		user := identity(r)
		if user == "" {
			jsonError(w, "X-Remote-User header required", http.StatusUnauthorized)
			return
		}
		var req struct {
			TelescopeID string    `json:"telescope_id"`
			Start       time.Time `json:"start"`
			End         time.Time `json:"end"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if _, err := a.fleet.Get(req.TelescopeID); err != nil {
			jsonError(w, "unknown telescope", http.StatusNotFound)
			return
		}
		b, err := a.sched.Request(r.Context(), req.TelescopeID, user, req.Start, req.End)
		if err != nil {
			if errors.Is(err, booking.ErrOverlap) {
				jsonError(w, err.Error(), http.StatusConflict)
			} else {
				jsonError(w, err.Error(), http.StatusBadRequest)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(b)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBooking cancels one reservation: DELETE /api/bookings/{id}.
func (a *App) handleBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := identity(r)
	if user == "" {
		jsonError(w, "X-Remote-User header required", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/bookings/"), 10, 64)
	if err != nil {
		jsonError(w, "bad booking id", http.StatusBadRequest)
		return
	}
	switch err := a.sched.Cancel(r.Context(), id, user); {
	case err == nil:
		writeJSON(w, map[string]any{"ok": true})
	case errors.Is(err, booking.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrNotOwner):
		jsonError(w, err.Error(), http.StatusForbidden)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleUser removes every booking a user owns: DELETE /api/users/{name}.
// Users can only purge their own reservations.
func (a *App) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := identity(r)
	if user == "" {
		jsonError(w, "X-Remote-User header required", http.StatusUnauthorized)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if name == "" {
		jsonError(w, "user name required", http.StatusBadRequest)
		return
	}
	if name != user {
		jsonError(w, "cannot remove another user's bookings", http.StatusForbidden)
		return
	}
	n, err := a.sched.RemoveUser(r.Context(), name)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "removed": n})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": msg,
	})
}
