// Package codec drives external speech and audio codec tools through one contract:
// encode a mono WAV at a bitrate and decode it back to a WAV at the output path.
package codec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/internal/wavcheck"
	"github.com/himanishpuri/CodecSweep/pkg/models"
	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

var (
	ErrBinaryNotFound = errors.New("codec binary not found")
	ErrMissingParam   = errors.New("missing codec parameter")
)

// Adapter wraps one external codec's encode and decode round trip.
//
// Apply writes exactly one WAV at output on success and nothing on failure.
// bitrate is in bits per second and must already be one the adapter can realize.
type Adapter interface {
	Name() string
	Apply(ctx context.Context, input, output string, bitrate int) (Result, error)
}

// Result reports what an Apply call ran.
type Result struct {
	Logs     []runner.CommandLog
	Duration float64 // Seconds of decoded audio
}

// Env is everything an adapter needs from its surroundings.
type Env struct {
	Runner   runner.Runner
	TempDir  string
	LookPath func(file string) (string, error)
}

func (e Env) withDefaults() Env {
	if e.Runner == nil {
		e.Runner = runner.Exec{}
	}
	if e.TempDir == "" {
		e.TempDir = os.TempDir()
	}
	if e.LookPath == nil {
		e.LookPath = exec.LookPath
	}
	return e
}

// resolve finds bin on PATH or, when it contains a separator, checks it directly.
func (e Env) resolve(bin string) (string, error) {
	path, err := e.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, bin, err)
	}
	return path, nil
}

// Params are the adapter-specific settings from the codec-set file.
type Params map[string]string

// String returns the value for key, or def when unset.
func (p Params) String(key, def string) string {
	if v, ok := p[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// Int returns the integer value for key, or def when unset.
func (p Params) Int(key string, def int) (int, error) {
	v := p.String(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: %q is not an integer", key, v)
	}
	return n, nil
}

// checkInput enforces the mono, fixed bit depth WAV precondition.
func checkInput(op, input string) (wavcheck.Info, error) {
	info, err := wavcheck.Validate(input)
	if err != nil {
		return info, models.Errorf(models.KindFormatConversion, op, "input %s: %v", input, err)
	}
	if info.AudioFormat != 1 {
		return info, models.Errorf(models.KindFormatConversion, op, "input is not integer PCM (format %d)", info.AudioFormat)
	}
	if info.NumChannels != 1 {
		return info, models.Errorf(models.KindFormatConversion, op, "input has %d channels, want mono", info.NumChannels)
	}
	return info, nil
}

// commit validates the decoded temporary file and moves it into place.
func commit(ctx context.Context, op, tmp, output string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, models.NewError(models.KindOf(err), op, err)
	}
	info, err := wavcheck.Repair(tmp)
	if err != nil {
		return 0, models.Errorf(models.KindExternalTool, op, "malformed output: %v", err)
	}
	if err := utils.MoveFile(tmp, output); err != nil {
		return 0, models.NewError(models.KindExternalTool, op, err)
	}
	return info.Duration(), nil
}

// toolError classifies a failed invocation, preferring the context's verdict.
func toolError(ctx context.Context, op string, logs []runner.CommandLog, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.NewError(models.KindOf(ctxErr), op, ctxErr)
	}
	for i := len(logs) - 1; i >= 0; i-- {
		if logs[i].ExitCode != 0 {
			if tail := logs[i].Tail(300); tail != "" {
				return models.Errorf(models.KindExternalTool, op, "%v: %s", err, tail)
			}
			break
		}
	}
	return models.NewError(models.KindExternalTool, op, err)
}

// kbps formats a bitrate for tools that take kbit/s, keeping fractional values like 6.5.
func kbps(bitrate int) string {
	return strconv.FormatFloat(float64(bitrate)/1000, 'f', -1, 64)
}
