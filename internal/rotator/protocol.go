// Package rotator points the telescope dish. The hardware variant
// speaks the rot2prog serial protocol over TCP to the antenna rotator
// control unit; the simulated variant slews a software model at a fixed
// angular rate. Both track a pointing target recomputed from the sky
// coordinates every tick.
package rotator

import (
	"fmt"
	"math"

	"github.com/svartdal/telescoped/internal/coords"
)

// command is one rot2prog control unit request.
type command struct {
	kind commandKind
	dir  coords.Direction // SetDirection only
}

type commandKind int

const (
	cmdStop commandKind = iota
	cmdRestart
	cmdGetDirection
	cmdSetDirection
)

// response is a parsed control unit reply: either a bare ack or the
// current direction.
type response struct {
	ack bool
	dir coords.Direction
}

// encode renders the 13-byte command frame. Stop, restart, and status
// use fixed byte strings from the control unit manual; set-direction
// carries the two 5-byte encoded angles.
func (c command) encode() []byte {
	switch c.kind {
	case cmdStop:
		return []byte{0x57, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x0F, 0x20}
	case cmdRestart:
		return []byte{0x57, 0xEF, 0xBE, 0xAD, 0xDE, 0, 0, 0, 0, 0, 0, 0xEE, 0x20}
	case cmdGetDirection:
		return []byte{0x57, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x6F, 0x20}
	case cmdSetDirection:
		frame := make([]byte, 0, 13)
		frame = append(frame, 0x57)
		az := angleToBytes(c.dir.Azimuth)
		el := angleToBytes(c.dir.Elevation)
		frame = append(frame, az[:]...)
		frame = append(frame, el[:]...)
		frame = append(frame, 0x5F, 0x20)
		return frame
	}
	return nil
}

// parse interprets the 12-byte control unit reply for this command.
// Stop and restart get an ack frame; direction commands answer with the
// current pointing.
func (c command) parse(raw []byte) (response, error) {
	switch c.kind {
	case cmdStop, cmdRestart:
		if len(raw) == 12 && raw[0] == 0x57 && raw[11] == 0x20 {
			return response{ack: true}, nil
		}
		return response{}, fmt.Errorf("unexpected ack response: % 02X", raw)
	default:
		if len(raw) == 12 && raw[0] == 0x58 && raw[11] == 0x20 {
			return response{
				dir: coords.Direction{
					Azimuth:   bytesToAngle(raw[1:6]),
					Elevation: bytesToAngle(raw[6:11]),
				},
			}, nil
		}
		return response{}, fmt.Errorf("unexpected direction response: % 02X", raw)
	}
}

// angleToBytes encodes an angle as five ASCII digits of
// (degrees + 360) * 100, the rot2prog wire form.
func angleToBytes(angle float64) [5]byte {
	v := math.Round((angle*180/math.Pi + 360) * 100)
	var b [5]byte
	b[0] = byte(v/10000) + 0x30
	b[1] = byte(math.Mod(v, 10000)/1000) + 0x30
	b[2] = byte(math.Mod(v, 1000)/100) + 0x30
	b[3] = byte(math.Mod(v, 100)/10) + 0x30
	b[4] = byte(math.Mod(v, 10)) + 0x30
	return b
}

// bytesToAngle decodes the five digit bytes of a status reply. The
// control unit answers with raw digit values (0x03, not ASCII '3'),
// unlike what it accepts, so no 0x30 offset here.
func bytesToAngle(b []byte) float64 {
	v := 0
	for _, digit := range b {
		v = v*10 + int(digit)
	}
	return (float64(v)/100 - 360) * math.Pi / 180
}

// directionsClose reports whether two pointings agree within tol times
// the control unit's 0.1 degree precision. Tracking status uses a wider
// tolerance than command dispatch so the reported state does not
// flicker between tracking and slewing on rounding noise.
func directionsClose(a, b coords.Direction, tol float64) bool {
	epsilon := tol * 0.1 * math.Pi / 180
	return math.Abs(a.Azimuth-b.Azimuth) < epsilon && math.Abs(a.Elevation-b.Elevation) < epsilon
}
