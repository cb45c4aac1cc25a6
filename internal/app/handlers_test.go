package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svartdal/telescoped/internal/config"
	"github.com/svartdal/telescoped/internal/spectrum"
)

func newTestApp(t *testing.T, open bool) (*App, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "bookings.db")
	cfg.Store.PoolSize = 1
	cfg.Booking.OpenWhenUnbooked = open
	cfg.Telescopes[0].FFTSize = 256
	cfg.Telescopes[0].CadenceMs = 20

	a, err := New(Options{Logger: log.New(io.Discard, "", 0), Cfg: cfg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.store.Close() })

	// Serve the same chain Run assembles; the metrics wrapper must not
	// get in the way of WebSocket upgrades.
	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)
	return a, srv
}

func doJSON(t *testing.T, method, url, user string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthz(t *testing.T) {
	_, srv := newTestApp(t, false)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStatusAndTelescopeList(t *testing.T) {
	_, srv := newTestApp(t, false)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["name"] != "telescoped" {
		t.Errorf("name = %v", body["name"])
	}
	if body["telescopes"] != float64(1) {
		t.Errorf("telescopes = %v", body["telescopes"])
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/telescopes", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	list, ok := body["telescopes"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("telescope list = %v", body["telescopes"])
	}
	if info := list[0].(map[string]any); info["id"] != "fake" {
		t.Errorf("id = %v", info["id"])
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/telescopes/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown telescope status = %d", resp.StatusCode)
	}
}

func TestBookingLifecycle(t *testing.T) {
	_, srv := newTestApp(t, false)
	start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	end := start.Add(time.Hour)

	mk := map[string]any{"telescope_id": "fake", "start": start, "end": end}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", "", mk)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d, want 401", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", "alice", mk)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d: %v", resp.StatusCode, body)
	}
	id := int64(body["id"].(float64))

	// Overlapping request conflicts.
	clash := map[string]any{
		"telescope_id": "fake",
		"start":        start.Add(30 * time.Minute),
		"end":          end.Add(30 * time.Minute),
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/bookings", "bob", clash)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("overlap = %d, want 409", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/bookings", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	if got := body["bookings"].([]any); len(got) != 1 {
		t.Fatalf("bookings = %v", got)
	}

	url := fmt.Sprintf("%s/api/bookings/%d", srv.URL, id)
	resp, _ = doJSON(t, http.MethodDelete, url, "bob", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cancel by non-owner = %d, want 403", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, url, "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel by owner = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, url, "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second cancel = %d, want 404", resp.StatusCode)
	}
}

func TestUserPurge(t *testing.T) {
	_, srv := newTestApp(t, false)
	day := 24 * time.Hour
	base := time.Now().UTC().Add(time.Hour).Truncate(time.Second)

	for i, user := range []string{"alice", "alice", "bob"} {
		mk := map[string]any{
			"telescope_id": "fake",
			"start":        base.Add(time.Duration(i) * day),
			"end":          base.Add(time.Duration(i)*day + time.Hour),
		}
		if resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", user, mk); resp.StatusCode != http.StatusCreated {
			t.Fatalf("book %d = %d: %v", i, resp.StatusCode, body)
		}
	}

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/users/alice", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous purge = %d, want 401", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/users/alice", "bob", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("purge of another user = %d, want 403", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodDelete, srv.URL+"/api/users/alice", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("purge = %d: %v", resp.StatusCode, body)
	}
	if body["removed"] != float64(2) {
		t.Errorf("removed = %v, want 2", body["removed"])
	}

	to := base.Add(7 * day).Format(time.RFC3339)
	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/bookings?to="+to, "", nil)
	left := body["bookings"].([]any)
	if len(left) != 1 || left[0].(map[string]any)["user_id"] != "bob" {
		t.Fatalf("bookings after purge = %v", left)
	}
}

func TestIntegrationLast(t *testing.T) {
	a, srv := newTestApp(t, true)
	url := srv.URL + "/api/telescopes/fake/integration"

	resp, _ := doJSON(t, http.MethodGet, url, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("before any integration = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, url+"/start", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start = %d", resp.StatusCode)
	}
	tel, err := a.fleet.Get("fake")
	if err != nil {
		t.Fatalf("get telescope: %v", err)
	}
	tel.Publish(&spectrum.Frame{
		SampleRate: 2.4e6,
		Freqs:      []float64{100, 200, 300},
		Power:      []float64{1, 2, 3},
		Time:       time.Now(),
	})
	resp, _ = doJSON(t, http.MethodPost, url+"/stop", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, url, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("after integration = %d: %v", resp.StatusCode, body)
	}
	result, ok := body["result"].(map[string]any)
	if !ok {
		t.Fatalf("result = %v", body["result"])
	}
	power := result["power"].([]any)
	if len(power) != 3 || power[1] != float64(2) {
		t.Errorf("power = %v", power)
	}
}

func TestTuneAuthorization(t *testing.T) {
	_, srv := newTestApp(t, false)
	tune := map[string]any{"freq_hz": 1420.4e6}
	url := srv.URL + "/api/telescopes/fake/tune"

	resp, _ := doJSON(t, http.MethodPost, url, "", tune)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous tune = %d, want 401", resp.StatusCode)
	}

	// No booking and closed policy: nobody controls the telescope.
	resp, _ = doJSON(t, http.MethodPost, url, "alice", tune)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unbooked tune = %d, want 403", resp.StatusCode)
	}

	// Booking the current window grants control.
	now := time.Now().UTC()
	mk := map[string]any{
		"telescope_id": "fake",
		"start":        now.Add(-time.Minute),
		"end":          now.Add(time.Hour),
	}
	if resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", "alice", mk); resp.StatusCode != http.StatusCreated {
		t.Fatalf("book = %d: %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodPost, url, "alice", tune)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("controller tune = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, url, "bob", tune)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-controller tune = %d, want 403", resp.StatusCode)
	}
}

func TestTuneOpenPolicy(t *testing.T) {
	_, srv := newTestApp(t, true)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/telescopes/fake/tune", "alice",
		map[string]any{"freq_hz": 1420.4e6})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open-policy tune = %d", resp.StatusCode)
	}
}

func TestSpectrumStream(t *testing.T) {
	a, srv := newTestApp(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.fleet.Run(ctx)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/telescope/fake/spectrum?context=viewer-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", kind)
	}
	if len(msg) == 0 || len(msg)%spectrum.RecordSize != 0 {
		t.Fatalf("frame length %d not a multiple of the record size", len(msg))
	}

	freqs, power, err := spectrum.DecodeFrame(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(freqs) != 256 || len(power) != 256 {
		t.Fatalf("bins = %d, want 256", len(freqs))
	}
	// Axis starts at the low edge of the band and ascends.
	center, rate := 1420.4e6, 2.4e6
	if got := freqs[0]; got < center-rate/2-1 || got > center-rate/2+rate/256+1 {
		t.Errorf("first bin %v outside band edge", got)
	}
	if freqs[1] <= freqs[0] {
		t.Error("frequency axis not ascending")
	}
}

func TestSpectrumStreamUnknownTelescope(t *testing.T) {
	_, srv := newTestApp(t, false)
	resp, err := http.Get(srv.URL + "/ws/telescope/nope/spectrum")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
