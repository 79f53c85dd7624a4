package models

import (
	"fmt"
	"time"
)

// Reference is one catalog entry. It is read-only to the sweep.
type Reference struct {
	RelPath    string  // Path relative to the reference root, used for output layout
	Path       string  // Resolved path on disk
	Format     string  // Container format as reported by the catalog scan
	Channels   int     // Channel count
	BitDepth   int     // Bits per sample
	SampleRate int     // Sample rate in Hz
	Duration   float64 // Duration in seconds
	Dataset    string  // Source dataset tag
}

// Job is the unit of work: one reference through one codec at one bitrate.
type Job struct {
	Reference Reference
	Codec     string
	Bitrate   int
	Subset    string
	CodecSet  string
}

// Key identifies a job within a codec set. Two jobs with the same key are the same job.
func (j Job) Key() string {
	return JobKey(j.Codec, j.Bitrate, j.Subset, j.Reference.RelPath)
}

// JobKey builds the identity string shared by jobs and metadata rows.
func JobKey(codec string, bitrate int, subset, refRel string) string {
	return fmt.Sprintf("%s|%d|%s|%s", codec, bitrate, subset, refRel)
}

// JobResult is one metadata row: the outcome of one attempted job.
type JobResult struct {
	RunID            string
	Reference        string // Reference relative path
	ReferencePath    string
	Subset           string
	CodecSet         string
	Codec            string
	Bitrate          int // Requested bitrate
	EffectiveBitrate int // Bitrate actually passed to the codec
	OutputPath       string
	Success          bool
	ErrorKind        ErrorKind
	Reason           string
	StartedAt        time.Time
	Elapsed          time.Duration
	OutputDuration   float64 // Seconds, zero when unknown
	BandwidthHz      float64 // Zero when not measured
}

// Key returns the identity of the job that produced this row.
func (r JobResult) Key() string {
	return JobKey(r.Codec, r.Bitrate, r.Subset, r.Reference)
}

// ScoreRecord is one row of the scores file.
type ScoreRecord struct {
	RunID         string
	ReferencePath string
	DegradedPath  string
	Codec         string
	Bitrate       int
	Metric        string
	Score         float64
	Success       bool
	ErrorKind     ErrorKind
	Reason        string
}
