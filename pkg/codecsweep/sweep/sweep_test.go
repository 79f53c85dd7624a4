package sweep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/CodecSweep/internal/testaudio"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/audio"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/codec"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/layout"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/metadata"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/registry"
	"github.com/himanishpuri/CodecSweep/pkg/logger"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// fakeAdapter copies its input to the output, optionally slowly, short or failing.
type fakeAdapter struct {
	name    string
	delay   time.Duration
	fail    bool
	seconds float64 // When set, writes a tone of this length instead of copying
	started chan struct{}
	calls   atomic.Int32
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Apply(ctx context.Context, input, output string, bitrate int) (codec.Result, error) {
	a.calls.Add(1)
	if a.started != nil {
		close(a.started)
		a.started = nil
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return codec.Result{}, models.NewError(models.KindOf(ctx.Err()), a.name, ctx.Err())
		}
	}
	if a.fail {
		return codec.Result{}, models.Errorf(models.KindExternalTool, a.name, "exit status 1")
	}

	tmp := output + ".tmp.wav"
	if a.seconds > 0 {
		if err := audio.WriteFloat(tmp, testaudio.Sine(16000, a.seconds, 440), 16000, 16); err != nil {
			return codec.Result{}, err
		}
	} else {
		data, err := os.ReadFile(input)
		if err != nil {
			return codec.Result{}, err
		}
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return codec.Result{}, err
		}
	}
	return codec.Result{}, os.Rename(tmp, output)
}

type fixture struct {
	dir      string
	refs     []models.Reference
	adapters map[string]*fakeAdapter
	set      *registry.Set
}

func newFixture(t *testing.T, codecs ...registry.CodecConfig) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir(), adapters: make(map[string]*fakeAdapter)}

	path := testaudio.WriteSine(t, filepath.Join(f.dir, "refs", "A.wav"), 16000, 2.0)
	f.refs = []models.Reference{{
		RelPath: "A.wav", Path: path, Format: "wav", Channels: 1, BitDepth: 16, SampleRate: 16000, Duration: 2.0, Dataset: "test",
	}}

	r := registry.New(codec.Env{LookPath: func(file string) (string, error) { return file, nil }})
	require.NoError(t, r.Register("fake", registry.Kind{
		New: func(name string, env codec.Env, params codec.Params) (codec.Adapter, error) {
			a := &fakeAdapter{name: name}
			f.adapters[name] = a
			return a, nil
		},
		Bitrates: codec.BitrateSpec{Min: 1000, Max: 64000},
	}))
	if len(codecs) == 0 {
		codecs = []registry.CodecConfig{{Name: "fast", Kind: "fake"}, {Name: "slow", Kind: "fake"}}
	}
	set, err := r.Build(registry.SetFile{Name: "pair", Codecs: codecs})
	require.NoError(t, err)
	f.set = set
	return f
}

func (f *fixture) plan(bitrates ...int) Plan {
	return Plan{
		CodecSet:   f.set.Name,
		Entries:    f.set.Entries,
		References: f.refs,
		Subset:     "all",
		Bitrates:   bitrates,
		Layout:     layout.Planner{Root: filepath.Join(f.dir, "out"), CodecSet: f.set.Name, Subset: "all"},
	}
}

func testDriver(opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	return New(opts)
}

func readRows(t *testing.T, path string) []models.JobResult {
	t.Helper()
	rows, err := metadata.ReadAll(path)
	require.NoError(t, err)
	return rows
}

func TestTwoAdapterScenario(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(32000)

	report, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.Attempted)
	assert.Equal(t, 2, report.Stats.Succeeded)
	assert.Positive(t, report.Stats.Bytes)

	runDir := filepath.Join(f.dir, "out", "codecs=pair-subset=all-bitrate=32")
	assert.FileExists(t, filepath.Join(runDir, "A", "fast.wav"))
	assert.FileExists(t, filepath.Join(runDir, "A", "slow.wav"))

	rows := readRows(t, plan.Layout.MetadataPath())
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.True(t, r.Success)
		assert.Equal(t, "A.wav", r.Reference)
		assert.Equal(t, 32000, r.EffectiveBitrate)
		assert.Equal(t, report.RunID, r.RunID)
		assert.InDelta(t, 2.0, r.OutputDuration, DefaultTolerance)
	}
	assert.Contains(t, report.String(), "succeeded 2")
}

func TestRerunAttemptsNothing(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(32000, 64000)

	_, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)

	report, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Stats.Attempted)
	assert.Equal(t, 0, report.Appended)
	assert.Equal(t, 4, report.Stats.Skipped)
	assert.EqualValues(t, 2, f.adapters["fast"].calls.Load())
	assert.Len(t, readRows(t, plan.Layout.MetadataPath()), 4)
}

func TestRerunRetriesFailuresAndDamagedOutputs(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(32000)
	f.adapters["slow"].fail = true

	_, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)

	// A recorded success whose file was later truncated is not trusted.
	fast := plan.Layout.OutputPath(32000, "A.wav", "fast")
	require.NoError(t, os.Truncate(fast, 30))
	f.adapters["slow"].fail = false

	report, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.Attempted)
	assert.Equal(t, 2, report.Stats.Succeeded)

	rows := readRows(t, plan.Layout.MetadataPath())
	assert.Len(t, rows, 4)
	assert.Len(t, metadata.Completed(rows), 2)
}

func TestMetadataRowsEqualAttempts(t *testing.T) {
	f := newFixture(t)
	f.adapters["slow"].fail = true
	plan := f.plan(16000, 32000, 32000)

	report, err := testDriver(Options{Workers: 4}).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Stats.Planned, "duplicate bitrate collapses")
	assert.Equal(t, report.Stats.Attempted, len(readRows(t, plan.Layout.MetadataPath())))
	assert.Equal(t, report.Stats.Attempted, report.Appended)
	assert.Equal(t, 2, report.Stats.Failed)
	assert.Equal(t, 2, report.Stats.ByKind[models.KindExternalTool])
	assert.NoFileExists(t, plan.Layout.OutputPath(16000, "A.wav", "slow"))
	assert.FileExists(t, plan.Layout.OutputPath(16000, "A.wav", "fast"))
}

func TestUnsupportedBitrate(t *testing.T) {
	f := newFixture(t,
		registry.CodecConfig{Name: "strict", Kind: "fake", Bitrates: []int{16000, 32000}},
		registry.CodecConfig{Name: "loose", Kind: "fake", Bitrates: []int{16000, 32000}, Policy: "nearest"},
	)
	plan := f.plan(20000)

	_, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)

	rows := readRows(t, plan.Layout.MetadataPath())
	require.Len(t, rows, 2)
	byCodec := map[string]models.JobResult{rows[0].Codec: rows[0], rows[1].Codec: rows[1]}

	strict := byCodec["strict"]
	assert.False(t, strict.Success)
	assert.Equal(t, models.KindConfiguration, strict.ErrorKind)
	assert.Contains(t, strict.Reason, "20000")
	assert.Zero(t, f.adapters["strict"].calls.Load())

	loose := byCodec["loose"]
	assert.True(t, loose.Success)
	assert.Equal(t, 20000, loose.Bitrate)
	assert.Equal(t, 16000, loose.EffectiveBitrate)
}

func TestSmokeModeProcessesExactlyN(t *testing.T) {
	f := newFixture(t, registry.CodecConfig{Name: "fast", Kind: "fake"})
	src := f.refs[0]
	f.refs = nil
	for i := 0; i < 25; i++ {
		ref := src
		ref.RelPath = fmt.Sprintf("spk%02d/utt.wav", i)
		f.refs = append(f.refs, ref)
	}

	plan := f.plan(32000)
	plan.Smoke = true
	plan.SmokeCount = 10
	plan.Layout.Smoke = true

	report, err := testDriver(Options{Workers: 3}).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Stats.Attempted)

	rows := readRows(t, plan.Layout.MetadataPath())
	require.Len(t, rows, 10)
	seen := map[string]bool{}
	for _, r := range rows {
		seen[r.Reference] = true
	}
	for i := 0; i < 10; i++ {
		assert.True(t, seen[fmt.Sprintf("spk%02d/utt.wav", i)])
	}
	assert.Contains(t, plan.Layout.MetadataPath(), "-test.csv")
}

func TestToolTimeout(t *testing.T) {
	f := newFixture(t, registry.CodecConfig{Name: "slow", Kind: "fake"})
	f.adapters["slow"].delay = 5 * time.Second
	plan := f.plan(32000)

	start := time.Now()
	_, err := testDriver(Options{Timeout: 50 * time.Millisecond}).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	rows := readRows(t, plan.Layout.MetadataPath())
	require.Len(t, rows, 1)
	assert.Equal(t, models.KindToolTimeout, rows[0].ErrorKind)
	assert.NoFileExists(t, rows[0].OutputPath)
}

func TestDurationOutsideTolerance(t *testing.T) {
	f := newFixture(t, registry.CodecConfig{Name: "short", Kind: "fake"})
	f.adapters["short"].seconds = 1.0
	plan := f.plan(32000)

	_, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)

	rows := readRows(t, plan.Layout.MetadataPath())
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Success)
	assert.Equal(t, models.KindExternalTool, rows[0].ErrorKind)
	assert.Contains(t, rows[0].Reason, "reference is 2.000s")
	assert.NoFileExists(t, rows[0].OutputPath)
}

func TestStereoReferenceRejected(t *testing.T) {
	f := newFixture(t, registry.CodecConfig{Name: "fast", Kind: "fake"})
	stereo := filepath.Join(f.dir, "refs", "B.wav")
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 16000},
		Data:           make([]int, 2*16000),
		SourceBitDepth: 16,
	}
	require.NoError(t, audio.WritePCM(stereo, buf))
	f.refs[0].RelPath, f.refs[0].Path = "B.wav", stereo
	plan := f.plan(32000)

	_, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)

	rows := readRows(t, plan.Layout.MetadataPath())
	require.Len(t, rows, 1)
	assert.Equal(t, models.KindFormatConversion, rows[0].ErrorKind)
	assert.Contains(t, rows[0].Reason, "2 channels")
	assert.EqualValues(t, 0, f.adapters["fast"].calls.Load())
}

func TestInterruptRecordsCancelled(t *testing.T) {
	f := newFixture(t, registry.CodecConfig{Name: "slow", Kind: "fake"})
	started := make(chan struct{})
	f.adapters["slow"].delay = 10 * time.Second
	f.adapters["slow"].started = started
	plan := f.plan(32000)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := testDriver(Options{Workers: 1}).Run(ctx, plan)
	require.NoError(t, err)

	rows := readRows(t, plan.Layout.MetadataPath())
	require.Len(t, rows, 1)
	assert.Equal(t, models.KindCancelled, rows[0].ErrorKind)
	assert.NoFileExists(t, rows[0].OutputPath)
	assert.NoFileExists(t, rows[0].OutputPath+".tmp.wav")
}

func TestStrayOutputRemoved(t *testing.T) {
	f := newFixture(t, registry.CodecConfig{Name: "broken", Kind: "fake"})
	f.adapters["broken"].fail = true
	plan := f.plan(32000)

	stray := plan.Layout.OutputPath(32000, "A.wav", "broken")
	require.NoError(t, os.MkdirAll(filepath.Dir(stray), 0o755))
	require.NoError(t, os.WriteFile(stray, []byte("partial"), 0o644))

	report, err := testDriver(Options{}).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Attempted, "a file without a success row is not a completed job")
	assert.NoFileExists(t, stray)
}

func TestBandwidthMeasured(t *testing.T) {
	f := newFixture(t, registry.CodecConfig{Name: "fast", Kind: "fake"})
	plan := f.plan(32000)

	_, err := testDriver(Options{MeasureBandwidth: true}).Run(context.Background(), plan)
	require.NoError(t, err)

	rows := readRows(t, plan.Layout.MetadataPath())
	require.Len(t, rows, 1)
	assert.InDelta(t, 440, rows[0].BandwidthHz, 100)
}

func TestMetadataFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(f.dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	plan := f.plan(32000)
	plan.MetadataPath = filepath.Join(blocker, "metadata.csv")

	_, err := testDriver(Options{}).Run(context.Background(), plan)
	assert.Error(t, err)
	assert.Zero(t, f.adapters["fast"].calls.Load())
}

func TestInvalidPlan(t *testing.T) {
	f := newFixture(t)
	_, err := testDriver(Options{}).Run(context.Background(), f.plan())
	assert.Error(t, err)
}

func TestEnumerateOrderAndDedup(t *testing.T) {
	refs := []models.Reference{{RelPath: "a.wav"}, {RelPath: "b.wav"}}
	entries := []*registry.Entry{{Name: "x"}, {Name: "y"}}

	jobs := Enumerate(refs, entries, []int{8000, 16000, 8000})
	require.Len(t, jobs, 8)
	assert.Equal(t, "a.wav", jobs[0].Reference.RelPath)
	assert.Equal(t, "x", jobs[0].Codec)
	assert.Equal(t, 8000, jobs[0].Bitrate)
	assert.Equal(t, 16000, jobs[1].Bitrate)
	assert.Equal(t, "y", jobs[2].Codec)
	assert.Equal(t, "b.wav", jobs[4].Reference.RelPath)
}

func TestReportString(t *testing.T) {
	r := Report{RunID: "r1", MetadataPath: "m.csv", Stats: models.SweepStats{
		Planned: 1200, Attempted: 3, Succeeded: 2, Failed: 1, Bytes: 2048,
		ByKind: map[models.ErrorKind]int{models.KindToolTimeout: 1},
	}}
	s := r.String()
	assert.Contains(t, s, "1,200")
	assert.Contains(t, s, "2.0 kB")
	assert.Contains(t, s, string(models.KindToolTimeout))
}
