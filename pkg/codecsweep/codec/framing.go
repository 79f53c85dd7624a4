package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Framing is the bitstream container a codec tool reads and writes.
type Framing string

const (
	FramingG192 Framing = "g192"
	FramingMIME Framing = "mime"
)

// ITU-T G.192 frame sync words, stored as little-endian 16-bit words.
const (
	g192SyncGood = 0x6B21
	g192SyncBad  = 0x6B20
)

// RTP payload storage header (RFC 4867 style) written by EVS tools in -mime mode.
var evsMIMEMagic = []byte("#!EVS_MC1.0\n")

func parseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case "", FramingG192:
		return FramingG192, nil
	case FramingMIME:
		return FramingMIME, nil
	}
	return "", fmt.Errorf("unknown framing %q (want g192 or mime)", s)
}

// detectFraming inspects the first bytes of a bitstream file.
func detectFraming(path string) (Framing, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, len(evsMIMEMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && n < 2 {
		return "", fmt.Errorf("bitstream %s is empty", path)
	}
	head = head[:n]

	if bytes.HasPrefix(head, evsMIMEMagic) {
		return FramingMIME, nil
	}
	switch binary.LittleEndian.Uint16(head[:2]) {
	case g192SyncGood, g192SyncBad:
		return FramingG192, nil
	}
	return "", fmt.Errorf("bitstream %s has unrecognized framing (first bytes % x)", path, head[:min(n, 4)])
}

// expectFraming fails when the tool wrote something other than the pinned framing.
func expectFraming(path string, want Framing) error {
	got, err := detectFraming(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("bitstream framing is %s, expected %s", got, want)
	}
	return nil
}
