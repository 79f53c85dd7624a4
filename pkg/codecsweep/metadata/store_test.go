package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

func row(i int, ok bool) models.JobResult {
	r := models.JobResult{
		RunID:            "run-1",
		Reference:        fmt.Sprintf("ref%03d.wav", i),
		ReferencePath:    fmt.Sprintf("/refs/ref%03d.wav", i),
		Subset:           "all",
		CodecSet:         "speech",
		Codec:            "opus",
		Bitrate:          32000,
		EffectiveBitrate: 32000,
		OutputPath:       fmt.Sprintf("/out/ref%03d/opus.wav", i),
		Success:          ok,
		StartedAt:        time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC),
		Elapsed:          1500 * time.Millisecond,
		OutputDuration:   2.0,
	}
	if !ok {
		r.ErrorKind = models.KindExternalTool
		r.Reason = "opusenc: exit status 1,\n\"bad\" input"
	}
	return r
}

func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta", "metadata.csv")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(row(1, true)))
	require.NoError(t, s.Append(row(2, false)))
	assert.Equal(t, 2, s.Rows())
	require.NoError(t, s.Close())

	rows, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, row(1, true), rows[0])
	assert.False(t, rows[1].Success)
	assert.Equal(t, models.KindExternalTool, rows[1].ErrorKind)
	assert.Equal(t, `opusenc: exit status 1, "bad" input`, rows[1].Reason)
}

func TestReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.csv")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(row(1, true)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(row(2, true)))
	require.NoError(t, s.Close())

	rows, err := ReadAll(path)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "run_id,"), "header written once")
}

func TestTornRowIgnoredByReaderAndDroppedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.csv")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(row(1, true)))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString(`run-1,ref002.wav,/refs/ref002.wav,all,speech,opus,32000,32000,"/out/ref0`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := ReadAll(path)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(row(3, true)))
	require.NoError(t, s.Close())

	rows, err = ReadAll(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ref003.wav", rows[1].Reference)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("path,sample_rate\na.wav,16000\n"), 0o644))
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrHeaderMismatch)
}

func TestConcurrentAppendsStayRowAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.csv")
	s, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(row(i, i%3 != 0)))
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	rows, err := ReadAll(path)
	require.NoError(t, err)
	assert.Len(t, rows, 64)
}

func TestCompletedAndSuccessful(t *testing.T) {
	first := row(1, false)
	retry := row(1, true)
	retry.RunID = "run-2"
	other := row(2, true)
	again := row(2, true)
	again.RunID = "run-3"

	rows := []models.JobResult{first, retry, other, again}
	done := Completed(rows)
	assert.Len(t, done, 2)
	assert.Equal(t, "run-2", done[first.Key()].RunID)

	ok := Successful(rows)
	require.Len(t, ok, 2)
	assert.Equal(t, "run-2", ok[0].RunID)
	assert.Equal(t, "run-3", ok[1].RunID)
}

func TestReadAllMissing(t *testing.T) {
	_, err := ReadAll(filepath.Join(t.TempDir(), "none.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
