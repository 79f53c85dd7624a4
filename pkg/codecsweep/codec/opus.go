package codec

import (
	"context"
	"os"
	"strconv"

	"github.com/himanishpuri/CodecSweep/internal/runner"
)

// Opus pipes opus-tools' encoder straight into its decoder.
//
//	opusenc --quiet --hard-cbr --bitrate <kbps> <in.wav> - | opusdec --quiet --rate <fs> - <out.wav>
//
// The decoder is pinned to the input rate so the output never changes sample rate.
type Opus struct {
	name    string
	env     Env
	encoder string
	decoder string
	extra   []string
}

// NewOpus builds an Opus adapter. Params: opusenc, opusdec (binary paths),
// complexity (0-10, optional), framesize (ms, optional).
func NewOpus(name string, env Env, params Params) (Adapter, error) {
	env = env.withDefaults()
	a := &Opus{name: name, env: env}

	var err error
	if a.encoder, err = env.resolve(params.String("opusenc", "opusenc")); err != nil {
		return nil, err
	}
	if a.decoder, err = env.resolve(params.String("opusdec", "opusdec")); err != nil {
		return nil, err
	}
	if c := params.String("complexity", ""); c != "" {
		a.extra = append(a.extra, "--comp", c)
	}
	if fs := params.String("framesize", ""); fs != "" {
		a.extra = append(a.extra, "--framesize", fs)
	}
	return a, nil
}

func (a *Opus) Name() string { return a.name }

func (a *Opus) Apply(ctx context.Context, input, output string, bitrate int) (Result, error) {
	info, err := checkInput(a.name, input)
	if err != nil {
		return Result{}, err
	}

	tmp := output + ".tmp.wav"
	defer os.Remove(tmp)

	encArgs := []string{"--quiet", "--hard-cbr", "--bitrate", kbps(bitrate)}
	encArgs = append(encArgs, a.extra...)
	encArgs = append(encArgs, input, "-")
	enc := runner.Cmd{Name: a.encoder, Args: encArgs}
	dec := runner.Cmd{Name: a.decoder, Args: []string{"--quiet", "--rate", strconv.Itoa(int(info.SampleRate)), "-", tmp}}

	logs, err := a.env.Runner.Pipe(ctx, enc, dec, nil)
	if err != nil {
		return Result{Logs: logs}, toolError(ctx, a.name, logs, err)
	}

	dur, err := commit(ctx, a.name, tmp, output)
	return Result{Logs: logs, Duration: dur}, err
}
