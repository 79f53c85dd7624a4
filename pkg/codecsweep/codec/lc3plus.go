package codec

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// LC3Plus runs the ETSI LC3plus tool as two steps with a G.192 bitstream in between.
// The combined encode+decode mode and the raw bitstream default are not used.
//
//	LC3plus -E -formatG192 -frame_ms <ms> <in.wav> <tmp.g192> <bps>
//	LC3plus -D -formatG192 <tmp.g192> <out.wav>
type LC3Plus struct {
	name    string
	env     Env
	bin     string
	frameMs string
}

// NewLC3Plus builds an LC3plus adapter. Params: bin (binary path, default LC3plus on PATH),
// frame_ms (2.5, 5 or 10, default 10).
func NewLC3Plus(name string, env Env, params Params) (Adapter, error) {
	env = env.withDefaults()
	a := &LC3Plus{name: name, env: env, frameMs: params.String("frame_ms", "10")}

	switch a.frameMs {
	case "2.5", "5", "10":
	default:
		return nil, models.Errorf(models.KindConfiguration, name, "frame_ms %q not one of 2.5, 5, 10", a.frameMs)
	}

	var err error
	if a.bin, err = env.resolve(params.String("bin", "LC3plus")); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *LC3Plus) Name() string { return a.name }

func (a *LC3Plus) Apply(ctx context.Context, input, output string, bitrate int) (Result, error) {
	if _, err := checkInput(a.name, input); err != nil {
		return Result{}, err
	}

	work, err := os.MkdirTemp(a.env.TempDir, "lc3plus-*")
	if err != nil {
		return Result{}, models.NewError(models.KindExternalTool, a.name, err)
	}
	// The encoder also writes <bitstream>.cfg next to the bitstream.
	defer os.RemoveAll(work)

	bitstream := filepath.Join(work, "frames.g192")
	tmp := output + ".tmp.wav"
	defer os.Remove(tmp)

	var res Result
	enc := runner.Cmd{Name: a.bin, Args: []string{"-E", "-formatG192", "-frame_ms", a.frameMs, input, bitstream, strconv.Itoa(bitrate)}}
	log, err := a.env.Runner.Run(ctx, enc, nil)
	res.Logs = append(res.Logs, log)
	if err != nil {
		return res, toolError(ctx, a.name, res.Logs, err)
	}
	if err := expectFraming(bitstream, FramingG192); err != nil {
		return res, models.Errorf(models.KindExternalTool, a.name, "encoder output: %v", err)
	}

	dec := runner.Cmd{Name: a.bin, Args: []string{"-D", "-formatG192", bitstream, tmp}}
	log, err = a.env.Runner.Run(ctx, dec, nil)
	res.Logs = append(res.Logs, log)
	if err != nil {
		return res, toolError(ctx, a.name, res.Logs, err)
	}

	res.Duration, err = commit(ctx, a.name, tmp, output)
	return res, err
}
