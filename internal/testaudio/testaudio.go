// Package testaudio builds small WAV fixtures for tests.
package testaudio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/audio"
)

// Sine returns seconds of a mono sine at freq Hz, amplitude 0.5.
func Sine(sampleRate int, seconds, freq float64) []float64 {
	n := int(math.Round(seconds * float64(sampleRate)))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// WriteSine writes a 16-bit mono sine WAV to path, creating parent directories.
func WriteSine(t testing.TB, path string, sampleRate int, seconds float64) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create fixture dir: %v", err)
	}
	if err := audio.WriteFloat(path, Sine(sampleRate, seconds, 440), sampleRate, 16); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", path, err)
	}
	return path
}
