package codecsweep

import (
	"context"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/registry"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/score"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/storage"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/sweep"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

type Service interface {
	Sweep(ctx context.Context, req SweepRequest) (sweep.Report, error)
	Score(ctx context.Context, req ScoreRequest) (score.Report, error)
	Anchors(ctx context.Context, metadataPath string) (ArtifactReport, error)
	Spectrograms(ctx context.Context, metadataPath string) (ArtifactReport, error)
	Catalog(ctx context.Context, dir, dataset, output string) ([]models.Reference, error)
	Check(codecSetPath string) (*registry.Set, error)
	Runs(kind string) ([]storage.Run, error)
	Scores(metadataPath, metric string) ([]models.ScoreRecord, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
