package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// handleSpectrumStream serves GET /ws/telescope/{id}/spectrum. Each
// frame goes out as one binary WebSocket message. The viewer context
// comes from the ?context= query parameter and defaults to the remote
// address; a second subscription under the same context replaces the
// first.
func (a *App) handleSpectrumStream(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/ws/telescope/"), "/")
	if len(parts) != 2 || parts[1] != "spectrum" {
		http.NotFound(w, r)
		return
	}
	tel, err := a.fleet.Get(parts[0])
	if err != nil {
		jsonError(w, "unknown telescope", http.StatusNotFound)
		return
	}

	contextID := r.URL.Query().Get("context")
	if contextID == "" {
		contextID = r.RemoteAddr
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer conn.Close()

	sub, err := tel.Stream().Subscribe(contextID)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}
	defer tel.Stream().Unsubscribe(sub)

	// Reads only matter for detecting a gone client (and handling
	// close/ping control frames).
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case frame, ok := <-sub.Frames():
			if !ok {
				// Stream torn down: either this context subscribed
				// again elsewhere, or the pipeline faulted.
				code := websocket.CloseNormalClosure
				reason := "stream closed"
				if err := tel.Stream().Err(); err != nil {
					code = websocket.CloseInternalServerErr
					reason = err.Error()
				}
				msg := websocket.FormatCloseMessage(code, reason)
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode()); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
