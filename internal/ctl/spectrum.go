package ctl

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svartdal/telescoped/internal/spectrum"
)

// Spectrum connects to a telescope's live stream, reads one binary
// frame, and prints a summary. Useful as a quick "is it alive" check.
func Spectrum(baseURL, id string, jsonOut bool) error {
	wsURL := strings.TrimRight(baseURL, "/") + "/ws/telescope/" + id + "/spectrum?context=telectl"
	wsURL = strings.Replace(wsURL, "http", "ws", 1)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	if kind != websocket.BinaryMessage {
		return fmt.Errorf("unexpected message type %d", kind)
	}

	freqs, power, err := spectrum.DecodeFrame(msg)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]any{"freqs": freqs, "power": power})
	}
	summarizeSpectrum(freqs, power)
	return nil
}
