package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// The wrapped writer must stay hijackable or WebSocket upgrades behind
// the middleware fail with 500.
func TestMiddlewarePreservesHijacker(t *testing.T) {
	var hijackable bool
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, hijackable = w.(http.Hijacker)
		w.WriteHeader(http.StatusNoContent)
	}))

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if !hijackable {
		t.Fatal("middleware writer does not implement http.Hijacker")
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
}
