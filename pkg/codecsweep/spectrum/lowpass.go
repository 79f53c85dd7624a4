package spectrum

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/mjibson/go-dsp/fft"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/audio"
	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

// Anchor is a low-pass reference condition: full gain up to Cutoff, a raised-cosine
// transition, and silence from Stop upward.
type Anchor struct {
	Cutoff float64
	Stop   float64
}

// Anchors are the 3.5 kHz and 7 kHz low-pass anchors used in listening tests.
var Anchors = []Anchor{
	{Cutoff: 3500, Stop: 4000},
	{Cutoff: 7000, Stop: 7500},
}

var ErrBadAnchor = errors.New("anchor stop must be above cutoff")

func (a Anchor) gain(f float64) float64 {
	switch {
	case f <= a.Cutoff:
		return 1
	case f >= a.Stop:
		return 0
	default:
		return 0.5 * (1 + math.Cos(math.Pi*(f-a.Cutoff)/(a.Stop-a.Cutoff)))
	}
}

// LowPass filters samples in the frequency domain over the whole signal.
func LowPass(samples []float64, sampleRate int, a Anchor) ([]float64, error) {
	if a.Stop <= a.Cutoff || a.Cutoff <= 0 {
		return nil, fmt.Errorf("%w: %v/%v", ErrBadAnchor, a.Cutoff, a.Stop)
	}
	n := len(samples)
	if n == 0 {
		return nil, nil
	}

	spec := fft.FFTReal(samples)
	for k := range spec {
		bin := k
		if k > n/2 {
			bin = n - k
		}
		g := a.gain(float64(bin) * float64(sampleRate) / float64(n))
		spec[k] *= complex(g, 0)
	}

	back := fft.IFFT(spec)
	out := make([]float64, n)
	for i, v := range back {
		out[i] = real(v)
	}
	return out, nil
}

// WriteAnchor low-pass filters the WAV at input and writes a 16-bit mono WAV to output.
func WriteAnchor(input, output string, a Anchor) error {
	samples, sr, err := audio.ReadFloat(input)
	if err != nil {
		return err
	}
	if a.Stop >= float64(sr)/2 {
		return fmt.Errorf("anchor %v Hz is not below Nyquist of %d Hz", a.Stop, sr)
	}
	filtered, err := LowPass(samples, sr, a)
	if err != nil {
		return err
	}

	if err := utils.MakeDir(filepath.Dir(output)); err != nil {
		return err
	}
	tmp := output + ".tmp.wav"
	if err := audio.WriteFloat(tmp, filtered, sr, 16); err != nil {
		utils.DeleteFile(tmp)
		return err
	}
	return utils.MoveFile(tmp, output)
}
