// Package wavcheck validates WAV files at the header level without decoding samples.
package wavcheck

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrNotWAV    = errors.New("not a WAV/RIFF file")
	ErrNoFmt     = errors.New("fmt chunk not found")
	ErrNoData    = errors.New("data chunk not found")
	ErrTruncated = errors.New("data chunk truncated")
	ErrEmpty     = errors.New("no audio samples")
)

// streamedSize is what tools writing to a pipe put in size fields they cannot seek back to.
const streamedSize = 0xFFFFFFFF

// Format holds the format information from the fmt chunk
type Format struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// Info describes a validated WAV file.
type Info struct {
	Format
	DataOffset int64 // Offset of the first sample byte
	DataBytes  int64 // Sample bytes actually present
	Streamed   bool  // Size fields were placeholders and the data runs to end of file
}

// Frames is the number of sample frames in the data chunk.
func (i Info) Frames() int64 {
	frame := int64(i.NumChannels) * int64(i.BitsPerSample/8)
	if frame == 0 {
		return 0
	}
	return i.DataBytes / frame
}

// Duration is the length of the audio in seconds.
func (i Info) Duration() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.Frames()) / float64(i.SampleRate)
}

// readRIFFHeader reads and validates the RIFF/WAVE header (12 bytes)
func readRIFFHeader(r io.Reader) error {
	var hdr struct {
		RIFF [4]byte
		Size uint32
		WAVE [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: reading RIFF header: %v", ErrNotWAV, err)
	}
	if string(hdr.RIFF[:]) != "RIFF" || string(hdr.WAVE[:]) != "WAVE" {
		return ErrNotWAV
	}
	return nil
}

// readFmtChunk reads the fmt chunk body and skips any extension bytes.
func readFmtChunk(r io.ReadSeeker, chunkSize uint32) (Format, error) {
	var f struct {
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}
	if chunkSize < 16 {
		return Format{}, fmt.Errorf("fmt chunk too small: %d bytes", chunkSize)
	}
	if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
		return Format{}, fmt.Errorf("reading fmt chunk: %w", err)
	}
	if extra := int64(chunkSize) - 16; extra > 0 {
		if _, err := r.Seek(extra, io.SeekCurrent); err != nil {
			return Format{}, fmt.Errorf("seeking past fmt extras: %w", err)
		}
	}
	return Format{
		AudioFormat:   f.AudioFormat,
		NumChannels:   f.NumChannels,
		SampleRate:    f.SampleRate,
		BitsPerSample: f.BitsPerSample,
	}, nil
}

// scan walks the chunk list until it has seen both fmt and data.
func scan(r io.ReadSeeker, fileSize int64) (Info, error) {
	var info Info
	fmtFound := false

	for {
		var hdr struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return Info{}, fmt.Errorf("reading chunk header: %w", err)
		}

		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return Info{}, err
		}

		switch string(hdr.ID[:]) {
		case "fmt ":
			f, err := readFmtChunk(r, hdr.Size)
			if err != nil {
				return Info{}, err
			}
			info.Format = f
			fmtFound = true

		case "data":
			if !fmtFound {
				return Info{}, ErrNoFmt
			}
			remaining := fileSize - pos
			info.DataOffset = pos
			switch {
			case hdr.Size == streamedSize || (hdr.Size == 0 && remaining > 0):
				info.DataBytes = remaining
				info.Streamed = true
			case int64(hdr.Size) > remaining:
				return Info{}, fmt.Errorf("%w: header declares %d bytes, %d present", ErrTruncated, hdr.Size, remaining)
			default:
				info.DataBytes = int64(hdr.Size)
			}
			return info, nil

		default:
			// LIST, fact, junk and friends
			if _, err := r.Seek(int64(hdr.Size), io.SeekCurrent); err != nil {
				return Info{}, fmt.Errorf("skipping chunk %q: %w", string(hdr.ID[:]), err)
			}
		}

		// If chunk size is odd, skip pad byte
		if hdr.Size%2 == 1 {
			if _, err := r.Seek(1, io.SeekCurrent); err != nil {
				return Info{}, fmt.Errorf("seeking pad byte: %w", err)
			}
		}
	}

	if !fmtFound {
		return Info{}, ErrNoFmt
	}
	return Info{}, ErrNoData
}

// Validate checks that path is a well-formed, untruncated WAV file holding at least one frame.
func Validate(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}
	if err := readRIFFHeader(f); err != nil {
		return Info{}, err
	}
	info, err := scan(f, st.Size())
	if err != nil {
		return Info{}, err
	}
	if info.NumChannels == 0 || info.SampleRate == 0 || info.BitsPerSample == 0 {
		return Info{}, fmt.Errorf("invalid fmt chunk: %d ch, %d Hz, %d bit", info.NumChannels, info.SampleRate, info.BitsPerSample)
	}
	if info.Frames() == 0 {
		return info, ErrEmpty
	}
	return info, nil
}

// Repair rewrites placeholder RIFF and data sizes left by tools that wrote to a pipe.
// Files with correct sizes are left untouched.
func Repair(path string) (Info, error) {
	info, err := Validate(path)
	if err != nil || !info.Streamed {
		return info, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	// Drop a trailing partial frame so the data size stays block aligned.
	frame := int64(info.NumChannels) * int64(info.BitsPerSample/8)
	data := info.Frames() * frame
	if data != info.DataBytes {
		if err := f.Truncate(info.DataOffset + data); err != nil {
			return Info{}, err
		}
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(info.DataOffset+data-8))
	if _, err := f.WriteAt(buf[:], 4); err != nil {
		return Info{}, fmt.Errorf("writing RIFF size: %w", err)
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(data))
	if _, err := f.WriteAt(buf[:], info.DataOffset-4); err != nil {
		return Info{}, fmt.Errorf("writing data size: %w", err)
	}

	info.DataBytes = data
	info.Streamed = false
	return info, nil
}
