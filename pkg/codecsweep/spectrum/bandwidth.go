package spectrum

import (
	"math"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/audio"
)

// DefaultFloorDB is how far below the spectral peak a bin may fall and still count
// toward the bandwidth.
const DefaultFloorDB = 40.0

// Bandwidth estimates the highest frequency carrying energy within floorDB of the
// strongest bin of the mean spectrum. Silence and too-short input give 0.
func Bandwidth(samples []float64, sampleRate int, floorDB float64) float64 {
	frames, err := STFT(samples, WindowSize, HopSize, Hamming(WindowSize))
	if err != nil {
		return 0
	}
	mean := MeanSpectrum(frames)

	var peak float64
	for _, m := range mean {
		peak = math.Max(peak, m)
	}
	if peak == 0 {
		return 0
	}

	floor := peak * math.Pow(10, -floorDB/20)
	for i := len(mean) - 1; i >= 0; i-- {
		if mean[i] >= floor {
			return float64(i) * float64(sampleRate) / float64(WindowSize)
		}
	}
	return 0
}

// BandwidthFile reads a WAV and estimates its bandwidth with DefaultFloorDB.
func BandwidthFile(path string) (float64, error) {
	samples, sr, err := audio.ReadFloat(path)
	if err != nil {
		return 0, err
	}
	return Bandwidth(samples, sr, DefaultFloorDB), nil
}
