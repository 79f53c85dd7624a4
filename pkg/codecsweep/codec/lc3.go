package codec

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// LC3 streams liblc3's elc3 into dlc3. No intermediate bitstream is kept.
//
//	elc3 <in.wav> -b <bps> [-m <ms>] | dlc3 > <out.wav>
type LC3 struct {
	name    string
	env     Env
	encoder string
	decoder string
	libDir  string
	frameMs string
}

// NewLC3 builds an LC3 adapter. Params: bin_dir (directory holding elc3 and dlc3,
// also used as LD_LIBRARY_PATH), frame_ms (optional frame duration).
func NewLC3(name string, env Env, params Params) (Adapter, error) {
	env = env.withDefaults()
	a := &LC3{name: name, env: env, frameMs: params.String("frame_ms", "")}

	binDir := params.String("bin_dir", "")
	enc, dec := "elc3", "dlc3"
	if binDir != "" {
		enc, dec = filepath.Join(binDir, enc), filepath.Join(binDir, dec)
		a.libDir = binDir
	}
	var err error
	if a.encoder, err = env.resolve(enc); err != nil {
		return nil, err
	}
	if a.decoder, err = env.resolve(dec); err != nil {
		return nil, err
	}
	if a.frameMs != "" {
		if _, err := strconv.ParseFloat(a.frameMs, 64); err != nil {
			return nil, models.Errorf(models.KindConfiguration, name, "frame_ms %q is not a number", a.frameMs)
		}
	}
	return a, nil
}

func (a *LC3) Name() string { return a.name }

func (a *LC3) commands(input string, bitrate int) (runner.Cmd, runner.Cmd) {
	var env []string
	if a.libDir != "" {
		env = []string{"LD_LIBRARY_PATH=" + a.libDir}
	}
	args := []string{input, "-b", strconv.Itoa(bitrate)}
	if a.frameMs != "" {
		args = append(args, "-m", a.frameMs)
	}
	return runner.Cmd{Name: a.encoder, Args: args, Env: env},
		runner.Cmd{Name: a.decoder, Env: env}
}

func (a *LC3) Apply(ctx context.Context, input, output string, bitrate int) (Result, error) {
	if _, err := checkInput(a.name, input); err != nil {
		return Result{}, err
	}

	tmp := output + ".tmp.wav"
	defer os.Remove(tmp)

	f, err := os.Create(tmp)
	if err != nil {
		return Result{}, models.NewError(models.KindExternalTool, a.name, err)
	}
	enc, dec := a.commands(input, bitrate)
	logs, err := a.env.Runner.Pipe(ctx, enc, dec, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return Result{Logs: logs}, toolError(ctx, a.name, logs, err)
	}

	dur, err := commit(ctx, a.name, tmp, output)
	return Result{Logs: logs, Duration: dur}, err
}
