package score

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

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// Columns of the scores file.
var Columns = []string{
	"run_id", "reference_path", "degraded_path", "codec", "bitrate",
	"metric", "score", "success", "error_kind", "reason",
}

// SummaryColumns of the summary file.
var SummaryColumns = []string{"codec", "bitrate", "metric", "count", "failed", "mean", "min", "max", "stddev"}

// scoresFile appends score rows, one write per row.
type scoresFile struct {
	mu sync.Mutex
	f  *os.File
}

func openScores(path string) (*scoresFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating scores dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening scores: %w", err)
	}
	s := &scoresFile{f: f}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		err = s.write(Columns)
	} else {
		err = dropTornRow(f, info.Size())
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func dropTornRow(f *os.File, size int64) error {
	data, err := io.ReadAll(io.NewSectionReader(f, 0, size))
	if err != nil {
		return err
	}
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		return f.Truncate(int64(i + 1))
	}
	return nil
}

func (s *scoresFile) write(fields []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(fields)
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *scoresFile) Append(r models.ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write([]string{
		r.RunID,
		r.ReferencePath,
		r.DegradedPath,
		r.Codec,
		strconv.Itoa(r.Bitrate),
		r.Metric,
		strconv.FormatFloat(r.Score, 'f', 6, 64),
		strconv.FormatBool(r.Success),
		string(r.ErrorKind),
		strings.Join(strings.Fields(r.Reason), " "),
	})
}

func (s *scoresFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// ReadScores returns every complete row of a scores file.
func ReadScores(path string) ([]models.ScoreRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		data = data[:i+1]
	}

	cr := csv.NewReader(bytes.NewReader(data))
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading scores header: %w", err)
	}
	if len(header) != len(Columns) {
		return nil, fmt.Errorf("%s: unexpected scores header %v", path, header)
	}

	var out []models.ScoreRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		bitrate, err := strconv.Atoi(rec[4])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bitrate: %w", path, line, err)
		}
		value, err := strconv.ParseFloat(rec[6], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: score: %w", path, line, err)
		}
		ok, err := strconv.ParseBool(rec[7])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: success: %w", path, line, err)
		}
		out = append(out, models.ScoreRecord{
			RunID:         rec[0],
			ReferencePath: rec[1],
			DegradedPath:  rec[2],
			Codec:         rec[3],
			Bitrate:       bitrate,
			Metric:        rec[5],
			Score:         value,
			Success:       ok,
			ErrorKind:     models.ErrorKind(rec[8]),
			Reason:        rec[9],
		})
	}
	return out, nil
}

// WriteSummary replaces the summary file at path.
func WriteSummary(path string, sums []models.ScoreSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating summary: %w", err)
	}

	w := csv.NewWriter(f)
	w.Write(SummaryColumns)
	for _, s := range sums {
		w.Write([]string{
			s.Codec,
			strconv.Itoa(s.Bitrate),
			s.Metric,
			strconv.Itoa(s.Count),
			strconv.Itoa(s.Failed),
			strconv.FormatFloat(s.Mean, 'f', 4, 64),
			strconv.FormatFloat(s.Min, 'f', 4, 64),
			strconv.FormatFloat(s.Max, 'f', 4, 64),
			strconv.FormatFloat(s.StdDev, 'f', 4, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing summary: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
