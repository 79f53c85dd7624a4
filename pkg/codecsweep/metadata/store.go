// Package metadata keeps the append-only job log that scoring reads.
package metadata

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// Columns of the metadata file.
var Columns = []string{
	"run_id", "reference", "reference_path", "subset", "codec_set", "codec",
	"bitrate", "effective_bitrate", "output_path", "success", "error_kind", "reason",
	"started_at", "elapsed_ms", "output_duration_s", "bandwidth_hz",
}

var ErrHeaderMismatch = errors.New("metadata header does not match")

// Store appends JobResults to a CSV file. Each row reaches the file in a single
// write followed by fsync, so readers never see half a row from a live writer.
type Store struct {
	mu   sync.Mutex
	f    *os.File
	path string
	rows int
}

// Open opens or creates the metadata file at path. An existing file keeps its rows;
// a torn final line left by a crash is cut off before new rows are appended.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening metadata: %w", err)
	}

	s := &Store{f: f, path: path}
	if err := s.prepare(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare() error {
	data, err := io.ReadAll(io.NewSectionReader(s.f, 0, 1<<62))
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}
	if len(data) == 0 {
		return s.writeRow(Columns)
	}

	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		if err := s.f.Truncate(int64(i + 1)); err != nil {
			return fmt.Errorf("dropping torn row: %w", err)
		}
		data = data[:i+1]
		if len(data) == 0 {
			return s.writeRow(Columns)
		}
	}

	header, _, _ := bytes.Cut(data, []byte("\n"))
	if strings.TrimRight(string(header), "\r") != strings.Join(Columns, ",") {
		return fmt.Errorf("%w: %s", ErrHeaderMismatch, s.path)
	}
	return nil
}

func (s *Store) writeRow(fields []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return err
	}
	return s.f.Sync()
}

// Append records one job result.
func (s *Store) Append(r models.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("metadata store is closed")
	}
	if err := s.writeRow(encode(r)); err != nil {
		return fmt.Errorf("appending to %s: %w", s.path, err)
	}
	s.rows++
	return nil
}

// Rows is the number of rows appended through this Store.
func (s *Store) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Path returns the file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func encode(r models.JobResult) []string {
	return []string{
		r.RunID,
		r.Reference,
		r.ReferencePath,
		r.Subset,
		r.CodecSet,
		r.Codec,
		strconv.Itoa(r.Bitrate),
		strconv.Itoa(r.EffectiveBitrate),
		r.OutputPath,
		strconv.FormatBool(r.Success),
		string(r.ErrorKind),
		oneLine(r.Reason),
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
		strconv.FormatFloat(r.OutputDuration, 'f', 4, 64),
		strconv.FormatFloat(r.BandwidthHz, 'f', 0, 64),
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func decode(rec []string) (models.JobResult, error) {
	if len(rec) != len(Columns) {
		return models.JobResult{}, fmt.Errorf("expected %d fields, got %d", len(Columns), len(rec))
	}
	var r models.JobResult
	var err error
	r.RunID = rec[0]
	r.Reference = rec[1]
	r.ReferencePath = rec[2]
	r.Subset = rec[3]
	r.CodecSet = rec[4]
	r.Codec = rec[5]
	if r.Bitrate, err = strconv.Atoi(rec[6]); err != nil {
		return r, fmt.Errorf("bitrate: %w", err)
	}
	if r.EffectiveBitrate, err = strconv.Atoi(rec[7]); err != nil {
		return r, fmt.Errorf("effective_bitrate: %w", err)
	}
	r.OutputPath = rec[8]
	if r.Success, err = strconv.ParseBool(rec[9]); err != nil {
		return r, fmt.Errorf("success: %w", err)
	}
	r.ErrorKind = models.ErrorKind(rec[10])
	r.Reason = rec[11]
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, rec[12]); err != nil {
		return r, fmt.Errorf("started_at: %w", err)
	}
	ms, err := strconv.ParseInt(rec[13], 10, 64)
	if err != nil {
		return r, fmt.Errorf("elapsed_ms: %w", err)
	}
	r.Elapsed = time.Duration(ms) * time.Millisecond
	r.OutputDuration, _ = strconv.ParseFloat(rec[14], 64)
	r.BandwidthHz, _ = strconv.ParseFloat(rec[15], 64)
	return r, nil
}
