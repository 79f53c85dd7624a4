package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrInvalidWAV = errors.New("invalid WAV file")

// ReadPCM decodes a whole PCM WAV file.
func ReadPCM(path string) (*goaudio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading samples from %s: %w", path, err)
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(decoder.BitDepth)
	}
	return buf, nil
}

// WritePCM encodes buf as a PCM WAV at path.
func WritePCM(path string, buf *goaudio.IntBuffer) error {
	if buf == nil || buf.Format == nil {
		return errors.New("buffer has no format")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return f.Close()
}

// ReadFloat reads a WAV file as mono samples normalized to [-1, 1].
// Multichannel input is averaged.
func ReadFloat(path string) ([]float64, int, error) {
	buf, err := ReadPCM(path)
	if err != nil {
		return nil, 0, err
	}
	chans := buf.Format.NumChannels
	if chans < 1 {
		chans = 1
	}
	maxVal := float64(int(1) << (uint(buf.SourceBitDepth) - 1))

	frames := len(buf.Data) / chans
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < chans; c++ {
			sum += float64(buf.Data[i*chans+c])
		}
		out[i] = sum / float64(chans) / maxVal
	}
	return out, buf.Format.SampleRate, nil
}

// WriteFloat writes mono samples in [-1, 1] as a PCM WAV, clipping out-of-range values.
func WriteFloat(path string, samples []float64, sampleRate, bitDepth int) error {
	maxVal := float64(int(1)<<(uint(bitDepth)-1)) - 1
	data := make([]int, len(samples))
	for i, s := range samples {
		v := s * maxVal
		if v > maxVal {
			v = maxVal
		} else if v < -maxVal-1 {
			v = -maxVal - 1
		}
		data[i] = int(v)
	}
	return WritePCM(path, &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
}

// RawFormat describes headerless little-endian PCM.
type RawFormat struct {
	SampleRate int
	Channels   int
}

// WavToRaw16 strips the WAV container, writing interleaved int16 little-endian samples.
// Only 16-bit input is accepted.
func WavToRaw16(in, out string) (RawFormat, error) {
	buf, err := ReadPCM(in)
	if err != nil {
		return RawFormat{}, err
	}
	if buf.SourceBitDepth != 16 {
		return RawFormat{}, fmt.Errorf("raw conversion needs 16-bit input, got %d-bit", buf.SourceBitDepth)
	}

	f, err := os.Create(out)
	if err != nil {
		return RawFormat{}, err
	}
	w := bufio.NewWriter(f)
	var b [2]byte
	for _, v := range buf.Data {
		binary.LittleEndian.PutUint16(b[:], uint16(int16(v)))
		if _, err := w.Write(b[:]); err != nil {
			f.Close()
			return RawFormat{}, err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return RawFormat{}, err
	}
	if err := f.Close(); err != nil {
		return RawFormat{}, err
	}
	return RawFormat{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}, nil
}

// RawToWav16 wraps headerless int16 little-endian samples in a WAV container.
func RawToWav16(in, out string, format RawFormat) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	var data []int
	r := bufio.NewReader(f)
	var b [2]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return err
		}
		data = append(data, int(int16(binary.LittleEndian.Uint16(b[:]))))
	}
	if len(data) == 0 {
		return fmt.Errorf("%s holds no samples", in)
	}

	chans := format.Channels
	if chans < 1 {
		chans = 1
	}
	return WritePCM(out, &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: chans, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
}
