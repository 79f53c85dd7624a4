// Package codecsweep is the entry point for running codec sweeps and scoring them.
package codecsweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/catalog"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/codec"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/layout"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/metadata"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/registry"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/score"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/spectrum"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/storage"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/sweep"
	"github.com/himanishpuri/CodecSweep/pkg/logger"
	"github.com/himanishpuri/CodecSweep/pkg/models"
	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

// SweepRequest selects what to encode.
type SweepRequest struct {
	CodecSetPath string
	Codecs       []string // Subset of the set's codecs; empty means all
	CatalogPath  string
	RefRoot      string // Relative catalog paths resolve against this
	Subset       string
	Bitrates     []int
	Smoke        bool
	SmokeCount   int
	OutputRoot   string
	MetadataPath string // Overrides the layout default
}

// ScoreRequest selects the metric and the metadata file to score.
type ScoreRequest struct {
	MetadataPath string
	Metric       string // visqol or command
	MetricBin    string
	MetricArgs   []string // command metric only; {ref} and {deg} are substituted
	MetricName   string   // command metric only
	Speech       bool     // visqol speech mode
	Model        string   // visqol SVR model
	Force        bool
}

// ArtifactReport counts files derived from a metadata file.
type ArtifactReport struct {
	Written int
	Skipped int
	Failed  int
	Paths   []string
}

type sweepService struct {
	log      Logger
	config   *Config
	registry *registry.Registry
	db       *storage.DBClient
	ownsDB   bool
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.Default(codec.Env{Runner: cfg.Runner, TempDir: cfg.TempDir})
	}

	s := &sweepService{log: cfg.Logger, config: cfg, registry: reg, db: cfg.ScoreDB}
	if s.db == nil && cfg.DBPath != "" {
		db, err := storage.NewDBClientWithPath(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open score ledger: %w", err)
		}
		s.db = db
		s.ownsDB = true
	}
	return s, nil
}

// Check loads a codec set, which validates every codec's binaries.
func (s *sweepService) Check(codecSetPath string) (*registry.Set, error) {
	set, err := s.registry.Load(codecSetPath)
	if err != nil {
		return nil, err
	}
	for _, e := range set.Entries {
		s.log.Debugf("Codec %s (%s): bitrates %s", e.Name, e.Kind, e.Bitrates)
	}
	return set, nil
}

func (s *sweepService) Sweep(ctx context.Context, req SweepRequest) (sweep.Report, error) {
	set, err := s.Check(req.CodecSetPath)
	if err != nil {
		return sweep.Report{}, err
	}
	entries, err := set.Select(req.Codecs)
	if err != nil {
		return sweep.Report{}, err
	}

	refs, err := catalog.Read(req.CatalogPath, req.RefRoot)
	if err != nil {
		return sweep.Report{}, err
	}
	subset := req.Subset
	if subset == "" {
		subset = catalog.SubsetAll
	}
	refs, err = catalog.NewSubsets(set.Subsets).Filter(refs, subset)
	if err != nil {
		return sweep.Report{}, err
	}
	s.log.Infof("Catalog %s: %d references in subset %s", req.CatalogPath, len(refs), subset)

	plan := sweep.Plan{
		CodecSet:     set.Name,
		Entries:      entries,
		References:   refs,
		Subset:       subset,
		Bitrates:     req.Bitrates,
		Smoke:        req.Smoke,
		SmokeCount:   req.SmokeCount,
		Layout:       layout.Planner{Root: req.OutputRoot, CodecSet: set.Name, Subset: subset, Smoke: req.Smoke},
		MetadataPath: req.MetadataPath,
	}

	start := time.Now().UTC()
	driver := sweep.New(sweep.Options{
		Logger:           s.log,
		Workers:          s.config.Workers,
		Timeout:          s.config.Timeout,
		Tolerance:        s.config.Tolerance,
		MeasureBandwidth: s.config.MeasureBandwidth,
	})
	report, err := driver.Run(ctx, plan)
	if err != nil {
		return report, err
	}

	if s.db != nil {
		run := storage.Run{
			ID: report.RunID, Kind: "sweep", MetadataPath: report.MetadataPath,
			Attempted: report.Stats.Attempted, Failed: report.Stats.Failed,
			StartedAt: start, FinishedAt: time.Now().UTC(),
		}
		if err := s.db.RecordRun(run); err != nil {
			s.log.Warnf("Recording run: %v", err)
		}
	}
	return report, nil
}

func (s *sweepService) metric(req ScoreRequest) (score.Metric, error) {
	switch req.Metric {
	case "", "visqol":
		return score.ViSQOL{Runner: s.config.Runner, Bin: req.MetricBin, Speech: req.Speech, Model: req.Model}, nil
	case "command":
		if req.MetricBin == "" {
			return nil, errors.New("command metric needs a binary")
		}
		return score.CommandMetric{Runner: s.config.Runner, MetricName: req.MetricName, Bin: req.MetricBin, Args: req.MetricArgs}, nil
	}
	return nil, fmt.Errorf("unknown metric %q (want visqol or command)", req.Metric)
}

func (s *sweepService) Score(ctx context.Context, req ScoreRequest) (score.Report, error) {
	m, err := s.metric(req)
	if err != nil {
		return score.Report{}, err
	}
	agg := score.New(score.Options{
		Logger:  s.log,
		Workers: s.config.Workers,
		Timeout: s.config.Timeout,
		Runner:  s.config.Runner,
		TempDir: s.config.TempDir,
		DB:      s.db,
	})
	return agg.Run(ctx, score.Request{MetadataPath: req.MetadataPath, Metric: m, Force: req.Force})
}

// Anchors writes the low-pass anchors of every reference named in the metadata file
// under <metadata dir>/anchors.
func (s *sweepService) Anchors(ctx context.Context, metadataPath string) (ArtifactReport, error) {
	var report ArtifactReport
	rows, err := metadata.ReadAll(metadataPath)
	if err != nil {
		return report, err
	}
	root := filepath.Dir(metadataPath)

	seen := make(map[string]bool)
	for _, row := range rows {
		if seen[row.ReferencePath] {
			continue
		}
		seen[row.ReferencePath] = true

		for _, a := range spectrum.Anchors {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			out := layout.AnchorPath(root, row.Reference, int(a.Cutoff))
			if utils.FileExists(out) {
				report.Skipped++
				continue
			}
			if err := spectrum.WriteAnchor(row.ReferencePath, out, a); err != nil {
				s.log.Warnf("Anchor %s: %v", out, err)
				report.Failed++
				continue
			}
			report.Written++
			report.Paths = append(report.Paths, out)
		}
	}
	s.log.Infof("Anchors: %d written, %d present, %d failed", report.Written, report.Skipped, report.Failed)
	return report, nil
}

// Spectrograms renders a PNG next to every successful output of the metadata file.
func (s *sweepService) Spectrograms(ctx context.Context, metadataPath string) (ArtifactReport, error) {
	var report ArtifactReport
	rows, err := metadata.ReadAll(metadataPath)
	if err != nil {
		return report, err
	}
	for _, row := range metadata.Successful(rows) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := layout.SpectrogramPath(row.OutputPath)
		if utils.FileExists(out) {
			report.Skipped++
			continue
		}
		if err := spectrum.RenderPNG(row.OutputPath, out, 0, 0); err != nil {
			s.log.Warnf("Spectrogram %s: %v", out, err)
			report.Failed++
			continue
		}
		report.Written++
		report.Paths = append(report.Paths, out)
	}
	return report, nil
}

// Catalog scans dir and writes the reference catalog to output.
func (s *sweepService) Catalog(ctx context.Context, dir, dataset, output string) ([]models.Reference, error) {
	refs, err := catalog.Scan(ctx, s.config.Runner, dir, dataset, s.log)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("no audio files found under %s", dir)
	}
	if err := catalog.Write(output, refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// ErrNoLedger is returned by ledger queries when the service has no score database.
var ErrNoLedger = errors.New("no score ledger configured (--db)")

// Runs lists the recorded sweep or score runs, newest first.
func (s *sweepService) Runs(kind string) ([]storage.Run, error) {
	if s.db == nil {
		return nil, ErrNoLedger
	}
	return s.db.Runs(kind)
}

// Scores returns the ledger rows scored from one metadata file. An empty metric
// returns every metric.
func (s *sweepService) Scores(metadataPath, metric string) ([]models.ScoreRecord, error) {
	if s.db == nil {
		return nil, ErrNoLedger
	}
	return s.db.ScoresFor(metadataPath, metric)
}

func (s *sweepService) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
