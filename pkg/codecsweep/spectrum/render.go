package spectrum

import (
	"fmt"
	"image"
	"image/draw"
	"path/filepath"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/audio"
	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

// Image size of rendered spectrograms.
const (
	ImageWidth  = 2048
	ImageHeight = 512
)

// RenderPNG draws a linear-magnitude spectrogram of the WAV at wavPath into pngPath.
func RenderPNG(wavPath, pngPath string, width, height int) error {
	if width <= 0 {
		width = ImageWidth
	}
	if height <= 0 {
		height = ImageHeight
	}

	samples, sr, err := audio.ReadFloat(wavPath)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no samples in %s", wavPath)
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude, linear scale.
	spectrogram.Drawfft(img, samples, uint32(sr), uint32(height), false, false, true, false)

	if err := utils.MakeDir(filepath.Dir(pngPath)); err != nil {
		return err
	}
	if err := spectrogram.SavePng(img, pngPath); err != nil {
		return fmt.Errorf("saving %s: %w", pngPath, err)
	}
	return nil
}
