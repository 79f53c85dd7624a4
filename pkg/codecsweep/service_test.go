package codecsweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/internal/testaudio"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/codec"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/layout"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/registry"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/storage"
	"github.com/himanishpuri/CodecSweep/pkg/logger"
)

type copyAdapter struct{ name string }

func (a copyAdapter) Name() string { return a.name }

func (a copyAdapter) Apply(ctx context.Context, input, output string, bitrate int) (codec.Result, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return codec.Result{}, err
	}
	tmp := output + ".tmp.wav"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return codec.Result{}, err
	}
	return codec.Result{}, os.Rename(tmp, output)
}

// scoreRunner answers every metric command with a fixed score.
type scoreRunner struct{ calls atomic.Int32 }

func (s *scoreRunner) Run(ctx context.Context, cmd runner.Cmd, stdout io.Writer) (runner.CommandLog, error) {
	s.calls.Add(1)
	fmt.Fprintln(stdout, "score 4.25")
	return runner.CommandLog{Command: cmd.Name}, nil
}

func (s *scoreRunner) Pipe(context.Context, runner.Cmd, runner.Cmd, io.Writer) ([]runner.CommandLog, error) {
	return nil, errors.New("not used")
}

const pairSet = `name: pair
codecs:
  - name: fast
    kind: copy
  - name: slow
    kind: copy
`

type serviceFixture struct {
	dir     string
	setPath string
	catalog string
	refs    string
	runner  *scoreRunner
	reg     *registry.Registry
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{dir: t.TempDir(), runner: &scoreRunner{}}
	f.refs = filepath.Join(f.dir, "refs")
	testaudio.WriteSine(t, filepath.Join(f.refs, "A.wav"), 16000, 1.0)

	f.catalog = filepath.Join(f.dir, "catalog.csv")
	require.NoError(t, os.WriteFile(f.catalog, []byte("path,sample_rate\nA.wav,16000\n"), 0o644))

	f.setPath = filepath.Join(f.dir, "pair.yaml")
	require.NoError(t, os.WriteFile(f.setPath, []byte(pairSet), 0o644))

	f.reg = registry.New(codec.Env{LookPath: func(file string) (string, error) { return file, nil }})
	f.reg.MustRegister("copy", registry.Kind{
		New: func(name string, env codec.Env, params codec.Params) (codec.Adapter, error) {
			return copyAdapter{name: name}, nil
		},
		Bitrates: codec.BitrateSpec{Min: 1000, Max: 64000},
	})
	return f
}

func (f *serviceFixture) service(t *testing.T, opts ...Option) Service {
	t.Helper()
	opts = append([]Option{
		WithLogger(logger.Discard()),
		WithRegistry(f.reg),
		WithRunner(f.runner),
		WithTempDir(t.TempDir()),
		WithWorkers(2),
	}, opts...)
	svc, err := NewService(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func (f *serviceFixture) sweepRequest() SweepRequest {
	return SweepRequest{
		CodecSetPath: f.setPath,
		CatalogPath:  f.catalog,
		RefRoot:      f.refs,
		Bitrates:     []int{32000},
		OutputRoot:   filepath.Join(f.dir, "out"),
	}
}

func TestServiceSweepThenScore(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service(t)
	ctx := context.Background()

	rep, err := svc.Sweep(ctx, f.sweepRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Stats.Succeeded)

	planner := layout.Planner{Root: filepath.Join(f.dir, "out"), CodecSet: "pair", Subset: "all"}
	assert.Equal(t, planner.MetadataPath(), rep.MetadataPath)
	assert.FileExists(t, planner.OutputPath(32000, "A.wav", "fast"))
	assert.FileExists(t, planner.OutputPath(32000, "A.wav", "slow"))

	sr, err := svc.Score(ctx, ScoreRequest{
		MetadataPath: rep.MetadataPath,
		Metric:       "command",
		MetricName:   "fake",
		MetricBin:    "fake-metric",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sr.Scored)
	assert.Equal(t, 0, sr.Failed)
	assert.EqualValues(t, 2, f.runner.calls.Load())
	require.Len(t, sr.Summaries, 2)
	assert.InDelta(t, 4.25, sr.Summaries[0].Mean, 1e-9)
	assert.FileExists(t, planner.SummaryPath())
}

func TestServiceSweepSelectsCodecs(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service(t)

	req := f.sweepRequest()
	req.Codecs = []string{"slow"}
	rep, err := svc.Sweep(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stats.Attempted)

	req.Codecs = []string{"missing"}
	_, err = svc.Sweep(context.Background(), req)
	assert.ErrorIs(t, err, registry.ErrUnknownCodec)
}

func TestServiceSweepUnknownSubset(t *testing.T) {
	f := newServiceFixture(t)
	req := f.sweepRequest()
	req.Subset = "nope"
	_, err := f.service(t).Sweep(context.Background(), req)
	assert.Error(t, err)
}

func TestServiceRecordsRuns(t *testing.T) {
	f := newServiceFixture(t)
	db, err := storage.NewDBClientWithPath(filepath.Join(f.dir, "ledger.sqlite3"))
	require.NoError(t, err)
	defer db.Close()

	svc := f.service(t, WithScoreDB(db))
	rep, err := svc.Sweep(context.Background(), f.sweepRequest())
	require.NoError(t, err)
	_, err = svc.Score(context.Background(), ScoreRequest{MetadataPath: rep.MetadataPath, Metric: "command", MetricBin: "fake-metric"})
	require.NoError(t, err)

	runs, err := svc.Runs("sweep")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Attempted)

	runs, err = svc.Runs("score")
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	scores, err := svc.Scores(rep.MetadataPath, "fake-metric")
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "fast", scores[0].Codec)
	assert.Equal(t, "slow", scores[1].Codec)
	assert.InDelta(t, 4.25, scores[0].Score, 1e-9)

	scores, err = svc.Scores(rep.MetadataPath, "other")
	require.NoError(t, err)
	assert.Empty(t, scores)

	require.NoError(t, svc.Close())
	ok, err := db.HasScore(f.outputPath("fast"), "fake-metric")
	require.NoError(t, err, "service must not close a ledger it was handed")
	assert.True(t, ok)
}

func TestServiceLedgerNeedsDatabase(t *testing.T) {
	svc := newServiceFixture(t).service(t)
	_, err := svc.Runs("sweep")
	assert.ErrorIs(t, err, ErrNoLedger)
	_, err = svc.Scores("metadata.csv", "")
	assert.ErrorIs(t, err, ErrNoLedger)
}

func (f *serviceFixture) outputPath(codecName string) string {
	return layout.Planner{Root: filepath.Join(f.dir, "out"), CodecSet: "pair", Subset: "all"}.OutputPath(32000, "A.wav", codecName)
}

func TestServiceArtifacts(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service(t)
	ctx := context.Background()

	rep, err := svc.Sweep(ctx, f.sweepRequest())
	require.NoError(t, err)

	anchors, err := svc.Anchors(ctx, rep.MetadataPath)
	require.NoError(t, err)
	assert.Equal(t, 2, anchors.Written)
	root := filepath.Dir(rep.MetadataPath)
	assert.FileExists(t, layout.AnchorPath(root, "A.wav", 3500))
	assert.FileExists(t, layout.AnchorPath(root, "A.wav", 7000))

	anchors, err = svc.Anchors(ctx, rep.MetadataPath)
	require.NoError(t, err)
	assert.Equal(t, 0, anchors.Written)
	assert.Equal(t, 2, anchors.Skipped)

	specs, err := svc.Spectrograms(ctx, rep.MetadataPath)
	require.NoError(t, err)
	assert.Equal(t, 2, specs.Written)
	assert.FileExists(t, layout.SpectrogramPath(f.outputPath("fast")))
}

func TestServiceMetricSelection(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service(t)

	_, err := svc.Score(context.Background(), ScoreRequest{MetadataPath: "x.csv", Metric: "pesq"})
	assert.ErrorContains(t, err, "unknown metric")

	_, err = svc.Score(context.Background(), ScoreRequest{MetadataPath: "x.csv", Metric: "command"})
	assert.ErrorContains(t, err, "needs a binary")
}

func TestServiceCheck(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service(t)

	set, err := svc.Check(f.setPath)
	require.NoError(t, err)
	assert.Equal(t, "pair", set.Name)
	assert.Len(t, set.Entries, 2)

	bad := filepath.Join(f.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("codecs:\n  - name: x\n    kind: warp\n"), 0o644))
	_, err = svc.Check(bad)
	assert.Error(t, err)
}
