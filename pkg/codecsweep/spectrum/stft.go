// Package spectrum holds the frequency-domain helpers of the sweep: short-time
// spectra, an effective bandwidth estimate, FFT low-pass anchors and PNG spectrograms.
package spectrum

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	WindowSize = 1024
	HopSize    = 256
)

var (
	ErrWindowMismatch = errors.New("window length must equal windowSize")
	ErrTooShort       = errors.New("input shorter than window size")
)

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// MagnitudeSpectrum keeps the positive-frequency magnitudes of a complex spectrum.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT returns a time-major magnitude spectrogram: spectrogram[frame][bin].
func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if len(window) != windowSize {
		return nil, ErrWindowMismatch
	}
	if len(samples) < windowSize {
		return nil, ErrTooShort
	}

	frames := make([][]float64, 0, (len(samples)-windowSize)/hopSize+1)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		for i := 0; i < windowSize; i++ {
			frame[i] = samples[start+i] * window[i]
		}
		frames = append(frames, MagnitudeSpectrum(fft.FFTReal(frame)))
	}
	return frames, nil
}

// MeanSpectrum averages the power of every frame, returning one magnitude per bin.
func MeanSpectrum(frames [][]float64) []float64 {
	if len(frames) == 0 {
		return nil
	}
	mean := make([]float64, len(frames[0]))
	for _, f := range frames {
		for i, m := range f {
			mean[i] += m * m
		}
	}
	for i := range mean {
		mean[i] = math.Sqrt(mean[i] / float64(len(frames)))
	}
	return mean
}
