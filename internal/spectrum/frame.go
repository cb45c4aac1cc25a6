// Package spectrum turns raw receiver sample blocks into power spectra
// and paces their emission at a fixed cadence.
package spectrum

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// RecordSize is the wire size of one (frequency, amplitude) pair: two
// little-endian IEEE-754 float64 values.
const RecordSize = 16

// Frame is one computed power-vs-frequency snapshot. Freqs is ascending
// and Power is index-aligned with it. Amplitude is in the unit the
// engine was configured with (linear power or dB), never mixed within a
// stream.
type Frame struct {
	CenterFreq float64   `json:"center_freq_hz"`
	SampleRate float64   `json:"sample_rate_hz"`
	Freqs      []float64 `json:"freqs"`
	Power      []float64 `json:"power"`
	Time       time.Time `json:"time"`
}

// Encode packs the frame into fixed 16-byte little-endian records, one
// per frequency bin, ordered by ascending frequency.
func (f *Frame) Encode() []byte {
	buf := make([]byte, len(f.Freqs)*RecordSize)
	for i, freq := range f.Freqs {
		off := i * RecordSize
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(freq))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(f.Power[i]))
	}
	return buf
}

// DecodeFrame parses a binary spectrum message back into frequency and
// amplitude slices. Used by the CLI client and tests.
func DecodeFrame(msg []byte) (freqs, power []float64, err error) {
	if len(msg)%RecordSize != 0 {
		return nil, nil, errors.New("spectrum message length not a multiple of 16")
	}
	n := len(msg) / RecordSize
	freqs = make([]float64, n)
	power = make([]float64, n)
	for i := 0; i < n; i++ {
		off := i * RecordSize
		freqs[i] = math.Float64frombits(binary.LittleEndian.Uint64(msg[off:]))
		power[i] = math.Float64frombits(binary.LittleEndian.Uint64(msg[off+8:]))
	}
	return freqs, power, nil
}
