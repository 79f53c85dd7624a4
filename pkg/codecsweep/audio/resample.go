package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

// DefaultResampleTimeout bounds one ffmpeg resample when ctx has no deadline.
const DefaultResampleTimeout = 2 * time.Minute

// Resample converts input to a mono 16-bit WAV at rate, writing output atomically.
func Resample(ctx context.Context, r runner.Runner, input, output string, rate int) error {
	if rate <= 0 {
		return fmt.Errorf("invalid target sample rate %d", rate)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultResampleTimeout)
		defer cancel()
	}

	if err := utils.MakeDir(filepath.Dir(output)); err != nil {
		return err
	}

	tmpPath := output + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := runner.Cmd{
		Name: "ffmpeg",
		Args: []string{
			"-y",
			"-v", "error",
			"-i", input,
			"-ac", "1",
			"-ar", strconv.Itoa(rate),
			"-c:a", "pcm_s16le",
			tmpPath,
		},
	}
	if log, err := r.Run(ctx, cmd, nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %v (%s)", err, log.Tail(400))
	}

	return utils.MoveFile(tmpPath, output)
}
