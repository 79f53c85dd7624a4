package score

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/internal/wavcheck"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/audio"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/layout"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/metadata"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/storage"
	"github.com/himanishpuri/CodecSweep/pkg/models"
	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

const DefaultTimeout = 10 * time.Minute

// Logger is the logging surface the aggregator needs.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Options configure an Aggregator. Zero values take defaults.
type Options struct {
	Logger  Logger
	Workers int
	Timeout time.Duration // Per pair
	Runner  runner.Runner // Used for resampling
	TempDir string
	DB      *storage.DBClient // Optional ledger; the scores file is used when nil
	RunID   string
}

// Aggregator scores metadata files.
type Aggregator struct {
	log     Logger
	workers int
	timeout time.Duration
	runner  runner.Runner
	tempDir string
	db      *storage.DBClient
	runID   string
}

func New(opts Options) *Aggregator {
	a := &Aggregator{
		log:     opts.Logger,
		workers: opts.Workers,
		timeout: opts.Timeout,
		runner:  opts.Runner,
		tempDir: opts.TempDir,
		db:      opts.DB,
		runID:   opts.RunID,
	}
	if a.log == nil {
		a.log = nopLogger{}
	}
	if a.workers <= 0 {
		a.workers = runtime.NumCPU()
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.runner == nil {
		a.runner = runner.Exec{}
	}
	if a.runID == "" {
		a.runID = utils.NewRunID()
	}
	return a
}

// Request names the metadata file to score and where results go.
type Request struct {
	MetadataPath string
	ScoresPath   string // Defaults to the scores_ sibling of MetadataPath
	SummaryPath  string // Defaults to the summary_ sibling of MetadataPath
	Metric       Metric
	Force        bool // Rescore pairs already in the ledger
}

// Report summarizes one scoring run.
type Report struct {
	RunID       string
	Pairs       int
	Skipped     int
	Scored      int
	Failed      int
	ScoresPath  string
	SummaryPath string
	Summaries   []models.ScoreSummary
	Elapsed     time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("Run %s: %d pairs, %d skipped, %d scored, %d failed in %s\n  scores  %s\n  summary %s",
		r.RunID, r.Pairs, r.Skipped, r.Scored, r.Failed, r.Elapsed.Round(time.Millisecond), r.ScoresPath, r.SummaryPath)
}

// Run scores every successful row of the metadata file once. Pair failures are
// recorded as rows; the error is non-nil only for unreadable input or unwritable output.
func (a *Aggregator) Run(ctx context.Context, req Request) (Report, error) {
	start := time.Now()
	if req.Metric == nil {
		return Report{}, errors.New("no metric configured")
	}
	if req.ScoresPath == "" {
		req.ScoresPath = layout.ScoresPathFor(req.MetadataPath)
	}
	if req.SummaryPath == "" {
		req.SummaryPath = layout.SummaryPathFor(req.MetadataPath)
	}
	report := Report{RunID: a.runID, ScoresPath: req.ScoresPath, SummaryPath: req.SummaryPath}
	metric := req.Metric.Name()

	rows, err := metadata.ReadAll(req.MetadataPath)
	if err != nil {
		return report, fmt.Errorf("reading metadata: %w", err)
	}
	pairs := metadata.Successful(rows)
	report.Pairs = len(pairs)

	done, err := a.scored(req.ScoresPath, metric)
	if err != nil {
		return report, err
	}

	out, err := openScores(req.ScoresPath)
	if err != nil {
		return report, err
	}
	defer out.Close()

	work, err := os.MkdirTemp(a.tempDir, "codecsweep-score-*")
	if err != nil {
		return report, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(work)
	cache := newResampleCache(a.runner, work)

	a.log.Infof("Scoring %d pairs from %s with %s, %d workers", len(pairs), req.MetadataPath, metric, a.workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, pair := range pairs {
		pair := pair
		if gctx.Err() != nil {
			break
		}
		if !req.Force {
			ok, err := a.isScored(done, pair.OutputPath, metric)
			if err != nil {
				return report, err
			}
			if ok {
				report.Skipped++
				continue
			}
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			rec := a.scorePair(gctx, ctx, cache, req.Metric, pair)

			mu.Lock()
			if rec.Success {
				report.Scored++
			} else {
				report.Failed++
			}
			mu.Unlock()

			if err := out.Append(rec); err != nil {
				return fmt.Errorf("writing scores: %w", err)
			}
			if a.db != nil {
				if err := a.db.UpsertScore(req.MetadataPath, rec); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := out.Close(); err != nil {
		return report, fmt.Errorf("closing scores: %w", err)
	}

	report.Summaries, err = a.summarize(req.MetadataPath, req.ScoresPath, metric)
	if err != nil {
		return report, err
	}
	if err := WriteSummary(req.SummaryPath, report.Summaries); err != nil {
		return report, err
	}
	report.Elapsed = time.Since(start)

	if a.db != nil {
		run := storage.Run{
			ID: a.runID, Kind: "score", MetadataPath: req.MetadataPath,
			Attempted: report.Scored + report.Failed, Failed: report.Failed,
			StartedAt: start.UTC(), FinishedAt: time.Now().UTC(),
		}
		if err := a.db.RecordRun(run); err != nil {
			a.log.Warnf("Recording run: %v", err)
		}
	}
	return report, nil
}

// scored loads the successful pairs of the scores file when no database ledger is set.
func (a *Aggregator) scored(path, metric string) (map[string]bool, error) {
	done := make(map[string]bool)
	if a.db != nil {
		return done, nil
	}
	records, err := ReadScores(path)
	if errors.Is(err, os.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading prior scores: %w", err)
	}
	for _, r := range Latest(records) {
		if r.Metric == metric && r.Success {
			done[r.DegradedPath] = true
		}
	}
	return done, nil
}

func (a *Aggregator) isScored(done map[string]bool, degraded, metric string) (bool, error) {
	if a.db != nil {
		return a.db.HasScore(degraded, metric)
	}
	return done[degraded], nil
}

func (a *Aggregator) summarize(metadataPath, scoresPath, metric string) ([]models.ScoreSummary, error) {
	if a.db != nil {
		return a.db.Aggregate(metadataPath, metric)
	}
	records, err := ReadScores(scoresPath)
	if err != nil {
		return nil, err
	}
	var keep []models.ScoreRecord
	for _, r := range records {
		if r.Metric == metric {
			keep = append(keep, r)
		}
	}
	return Summarize(keep), nil
}

// scorePair reconciles sample rates and runs the metric. parent distinguishes an
// interrupted run from a per-pair timeout.
func (a *Aggregator) scorePair(ctx, parent context.Context, cache *resampleCache, m Metric, row models.JobResult) models.ScoreRecord {
	rec := models.ScoreRecord{
		RunID:         a.runID,
		ReferencePath: row.ReferencePath,
		DegradedPath:  row.OutputPath,
		Codec:         row.Codec,
		Bitrate:       row.Bitrate,
		Metric:        m.Name(),
	}
	fail := func(op string, err error) models.ScoreRecord {
		rec.ErrorKind = models.KindScoring
		if parent.Err() != nil {
			rec.ErrorKind = models.KindCancelled
		}
		rec.Reason = models.Reason(models.NewError(rec.ErrorKind, op, err))
		a.log.Warnf("%s: %s", row.OutputPath, rec.Reason)
		return rec
	}

	deg, err := wavcheck.Validate(row.OutputPath)
	if err != nil {
		return fail("degraded", err)
	}
	ref, err := wavcheck.Validate(row.ReferencePath)
	if err != nil {
		return fail("reference", err)
	}

	pctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	refPath := row.ReferencePath
	if ref.SampleRate != deg.SampleRate {
		refPath, err = cache.get(pctx, row.ReferencePath, int(deg.SampleRate))
		if err != nil {
			return fail("resample", fmt.Errorf("reference %d Hz to %d Hz: %w", ref.SampleRate, deg.SampleRate, err))
		}
		a.log.Debugf("Using %s for %s", refPath, row.OutputPath)
	}

	value, err := m.Measure(pctx, refPath, row.OutputPath)
	if err != nil {
		return fail(m.Name(), err)
	}
	rec.Score = value
	rec.Success = true
	a.log.Debugf("%s %s @ %d: %.4f", filepath.Base(filepath.Dir(row.OutputPath)), row.Codec, row.Bitrate, value)
	return rec
}

// resampleCache resamples each (reference, rate) at most once per run.
type resampleCache struct {
	runner runner.Runner
	dir    string
	mu     sync.Mutex
	items  map[string]*cached
}

type cached struct {
	once sync.Once
	seq  int
	path string
	err  error
}

func newResampleCache(r runner.Runner, dir string) *resampleCache {
	return &resampleCache{runner: r, dir: dir, items: make(map[string]*cached)}
}

// entry returns the item for key, numbering it when first seen. The number keeps
// file names unique across references that share a base name.
func (c *resampleCache) entry(key string) *cached {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		item = &cached{seq: len(c.items) + 1}
		c.items[key] = item
	}
	return item
}

func (c *resampleCache) get(ctx context.Context, reference string, rate int) (string, error) {
	item := c.entry(fmt.Sprintf("%s@%d", reference, rate))
	item.once.Do(func() {
		name := fmt.Sprintf("%04d_%s_%d.wav", item.seq, strings.TrimSuffix(filepath.Base(reference), filepath.Ext(reference)), rate)
		path := filepath.Join(c.dir, name)
		item.err = audio.Resample(ctx, c.runner, reference, path, rate)
		item.path = path
	})
	return item.path, item.err
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
