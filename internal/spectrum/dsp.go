package spectrum

import "math"

// hamming returns a Hamming window of length n.
func hamming(n int) []float64 {
	if n <= 0 {
		return nil
	}
	win := make([]float64, n)
	for i := range win {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}

// applyWindow multiplies complex64 samples with the window, widening to
// complex128 for the FFT.
func applyWindow(samples []complex64, window []float64) []complex128 {
	out := make([]complex128, len(samples))
	for i, v := range samples {
		out[i] = complex(float64(real(v))*window[i], float64(imag(v))*window[i])
	}
	return out
}

// fftShift reorders FFT output so the DC bin sits in the middle and the
// bins run from -sampleRate/2 to +sampleRate/2.
func fftShift(data []complex128) []complex128 {
	half := len(data) / 2
	return append(data[half:], data[:half]...)
}
