package codec

import (
	"context"
	"os"
	"strconv"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// FFmpeg round-trips through any encoder ffmpeg was built with, piping the
// encoded stream from one ffmpeg process into a second one that decodes.
//
//	ffmpeg -i <in.wav> -c:a <encoder> -b:a <bps> -f <container> pipe:1 |
//	ffmpeg -f <container> -i pipe:0 -ar <fs> -ac 1 -c:a pcm_s16le <out.wav>
type FFmpeg struct {
	name      string
	env       Env
	bin       string
	encoder   string
	container string
}

// NewFFmpeg builds a generic ffmpeg adapter. Params: encoder (required, e.g. libopus,
// aac, libmp3lame), container (default matroska), bin (ffmpeg path).
func NewFFmpeg(name string, env Env, params Params) (Adapter, error) {
	env = env.withDefaults()
	a := &FFmpeg{
		name:      name,
		env:       env,
		encoder:   params.String("encoder", ""),
		container: params.String("container", "matroska"),
	}
	if a.encoder == "" {
		return nil, models.Errorf(models.KindConfiguration, name, "%w: encoder", ErrMissingParam)
	}
	var err error
	if a.bin, err = env.resolve(params.String("bin", "ffmpeg")); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *FFmpeg) Name() string { return a.name }

func (a *FFmpeg) Apply(ctx context.Context, input, output string, bitrate int) (Result, error) {
	info, err := checkInput(a.name, input)
	if err != nil {
		return Result{}, err
	}

	tmp := output + ".tmp.wav"
	defer os.Remove(tmp)

	enc := runner.Cmd{Name: a.bin, Args: []string{
		"-nostdin", "-v", "error",
		"-i", input,
		"-c:a", a.encoder,
		"-b:a", strconv.Itoa(bitrate),
		"-f", a.container,
		"pipe:1",
	}}
	dec := runner.Cmd{Name: a.bin, Args: []string{
		"-nostdin", "-v", "error", "-y",
		"-f", a.container,
		"-i", "pipe:0",
		"-ar", strconv.Itoa(int(info.SampleRate)),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		tmp,
	}}

	logs, err := a.env.Runner.Pipe(ctx, enc, dec, nil)
	if err != nil {
		return Result{Logs: logs}, toolError(ctx, a.name, logs, err)
	}

	dur, err := commit(ctx, a.name, tmp, output)
	return Result{Logs: logs, Duration: dur}, err
}
