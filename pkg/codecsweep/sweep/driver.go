package sweep

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/CodecSweep/internal/wavcheck"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/metadata"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/registry"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/spectrum"
	"github.com/himanishpuri/CodecSweep/pkg/models"
	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

const (
	DefaultTimeout   = 5 * time.Minute
	DefaultTolerance = 0.25 // seconds
)

// Logger is the logging surface the driver needs.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Options configure a Driver. Zero values take defaults.
type Options struct {
	Logger           Logger
	Workers          int
	Timeout          time.Duration // Per job
	Tolerance        float64       // Allowed output duration drift in seconds
	MeasureBandwidth bool
	RunID            string
}

// Driver executes sweep plans.
type Driver struct {
	log       Logger
	workers   int
	timeout   time.Duration
	tolerance float64
	bandwidth bool
	runID     string
}

// New returns a Driver with opts applied over the defaults.
func New(opts Options) *Driver {
	d := &Driver{
		log:       opts.Logger,
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		tolerance: opts.Tolerance,
		bandwidth: opts.MeasureBandwidth,
		runID:     opts.RunID,
	}
	if d.log == nil {
		d.log = nopLogger{}
	}
	if d.workers <= 0 {
		d.workers = runtime.NumCPU()
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.tolerance <= 0 {
		d.tolerance = DefaultTolerance
	}
	if d.runID == "" {
		d.runID = utils.NewRunID()
	}
	return d
}

// Run executes every job of plan not already completed, appending one metadata row
// per attempted job. Job failures are recorded, not returned; the error is non-nil
// only when the plan is invalid or the metadata file cannot be written.
func (d *Driver) Run(ctx context.Context, plan Plan) (Report, error) {
	start := time.Now()
	report := Report{RunID: d.runID, MetadataPath: plan.metadataPath()}
	report.Stats.ByKind = make(map[models.ErrorKind]int)

	if err := plan.Validate(); err != nil {
		return report, fmt.Errorf("invalid plan: %w", err)
	}
	entries := make(map[string]*registry.Entry, len(plan.Entries))
	for _, e := range plan.Entries {
		entries[e.Name] = e
	}

	store, err := metadata.Open(report.MetadataPath)
	if err != nil {
		return report, err
	}
	defer store.Close()

	prior, err := metadata.ReadAll(report.MetadataPath)
	if err != nil {
		return report, fmt.Errorf("reading prior metadata: %w", err)
	}
	done := metadata.Completed(prior)

	jobs := plan.Jobs()
	report.Stats.Planned = len(jobs)
	d.log.Infof("Sweep %s: %d jobs (%d references, %d codecs, %d bitrates), %d workers",
		d.runID, len(jobs), countRefs(jobs), len(plan.Entries), len(plan.Bitrates), d.workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, job := range jobs {
		job := job
		if gctx.Err() != nil {
			break
		}
		output := plan.Layout.OutputPath(job.Bitrate, job.Reference.RelPath, job.Codec)
		if d.resumable(done, job, output) {
			report.Stats.Skipped++
			continue
		}

		entry := entries[job.Codec]
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := d.runJob(gctx, ctx, job, entry, output)

			mu.Lock()
			report.add(res)
			mu.Unlock()

			if err := store.Append(res); err != nil {
				return fmt.Errorf("writing metadata: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	report.Elapsed = time.Since(start)
	report.Appended = store.Rows()
	if err != nil {
		return report, err
	}
	if cerr := store.Close(); cerr != nil {
		return report, fmt.Errorf("closing metadata: %w", cerr)
	}
	d.log.Infof("Appended %d rows to %s", report.Appended, store.Path())
	if ctx.Err() != nil {
		d.log.Warnf("Sweep interrupted: %v", ctx.Err())
	}
	return report, nil
}

// resumable reports whether job already has a successful row and a sound output file.
func (d *Driver) resumable(done map[string]models.JobResult, job models.Job, output string) bool {
	if _, ok := done[job.Key()]; !ok {
		return false
	}
	info, err := wavcheck.Validate(output)
	if err != nil || info.DataBytes == 0 {
		d.log.Warnf("Redoing %s: recorded as done but output is unusable: %v", job.Key(), err)
		return false
	}
	return true
}

// runJob performs one job and returns its row. parent distinguishes an interrupted
// run from a per-job timeout.
func (d *Driver) runJob(ctx, parent context.Context, job models.Job, entry *registry.Entry, output string) models.JobResult {
	res := models.JobResult{
		RunID:         d.runID,
		Reference:     job.Reference.RelPath,
		ReferencePath: job.Reference.Path,
		Subset:        job.Subset,
		CodecSet:      job.CodecSet,
		Codec:         job.Codec,
		Bitrate:       job.Bitrate,
		OutputPath:    output,
		StartedAt:     time.Now().UTC(),
	}
	fail := func(err error) models.JobResult {
		utils.DeleteFile(output)
		utils.DeleteFile(output + ".tmp.wav")
		res.Success = false
		res.ErrorKind = models.KindOf(err)
		if parent.Err() != nil {
			res.ErrorKind = models.KindCancelled
		}
		res.Reason = models.Reason(err)
		res.Elapsed = time.Since(res.StartedAt)
		d.log.Warnf("%s %s @ %d: %s: %s", job.Reference.RelPath, job.Codec, job.Bitrate, res.ErrorKind, res.Reason)
		return res
	}

	if entry == nil {
		return fail(models.Errorf(models.KindConfiguration, job.Codec, "%w", registry.ErrUnknownCodec))
	}
	eff, err := entry.Bitrates.Resolve(entry.Name, job.Bitrate)
	if err != nil {
		return fail(err)
	}
	res.EffectiveBitrate = eff
	if eff != job.Bitrate {
		d.log.Infof("%s: bitrate %d not supported, using %d", entry.Name, job.Bitrate, eff)
	}

	ref, err := wavcheck.Validate(job.Reference.Path)
	if err != nil {
		return fail(models.Errorf(models.KindFormatConversion, "reference", "%s: %v", job.Reference.Path, err))
	}
	if ref.NumChannels != 1 {
		return fail(models.Errorf(models.KindFormatConversion, "reference", "%s has %d channels, adapters take mono input", job.Reference.Path, ref.NumChannels))
	}

	if utils.FileExists(output) {
		d.log.Debugf("Removing stray output %s", output)
	}
	utils.DeleteFile(output)
	if err := utils.MakeDir(filepath.Dir(output)); err != nil {
		return fail(models.NewError(models.KindExternalTool, "layout", err))
	}

	jctx, cancel := context.WithTimeout(ctx, d.timeout)
	result, err := entry.Adapter.Apply(jctx, job.Reference.Path, output, eff)
	cancel()
	for _, l := range result.Logs {
		d.log.Debugf("  %s %s: exit %d in %s", l.Command, strings.Join(l.Args, " "), l.ExitCode, l.Elapsed.Round(time.Millisecond))
	}
	if err != nil {
		return fail(err)
	}

	outDur := result.Duration
	if outDur == 0 {
		info, err := wavcheck.Validate(output)
		if err != nil {
			return fail(models.Errorf(models.KindExternalTool, entry.Name, "malformed output: %v", err))
		}
		outDur = info.Duration()
	}
	res.OutputDuration = outDur
	if diff := math.Abs(outDur - ref.Duration()); diff > d.tolerance {
		return fail(models.Errorf(models.KindExternalTool, entry.Name,
			"output is %.3fs, reference is %.3fs (tolerance %.3fs)", outDur, ref.Duration(), d.tolerance))
	}

	if d.bandwidth {
		bw, err := spectrum.BandwidthFile(output)
		if err != nil {
			d.log.Warnf("Bandwidth of %s: %v", output, err)
		}
		res.BandwidthHz = bw
	}

	res.Success = true
	res.Elapsed = time.Since(res.StartedAt)
	d.log.Debugf("%s %s @ %d -> %s (%s)", job.Reference.RelPath, job.Codec, eff, output, res.Elapsed.Round(time.Millisecond))
	return res
}

func countRefs(jobs []models.Job) int {
	seen := make(map[string]bool)
	for _, j := range jobs {
		seen[j.Reference.RelPath] = true
	}
	return len(seen)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
