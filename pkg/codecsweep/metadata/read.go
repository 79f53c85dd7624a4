package metadata

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// ReadAll returns every complete row of the metadata file in file order.
// A final line without a trailing newline is still being written and is ignored.
func ReadAll(path string) ([]models.JobResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		data = data[:i+1]
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata header: %w", err)
	}
	if len(header) != len(Columns) || header[0] != Columns[0] {
		return nil, fmt.Errorf("%w: %s", ErrHeaderMismatch, path)
	}

	var out []models.JobResult
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		r, err := decode(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Completed indexes the latest successful row of each job key.
func Completed(rows []models.JobResult) map[string]models.JobResult {
	done := make(map[string]models.JobResult)
	for _, r := range rows {
		if r.Success {
			done[r.Key()] = r
		}
	}
	return done
}

// Successful returns the latest successful row per output path, in first-seen order.
func Successful(rows []models.JobResult) []models.JobResult {
	idx := make(map[string]int)
	var out []models.JobResult
	for _, r := range rows {
		if !r.Success {
			continue
		}
		if i, ok := idx[r.OutputPath]; ok {
			out[i] = r
			continue
		}
		idx[r.OutputPath] = len(out)
		out = append(out, r)
	}
	return out
}
