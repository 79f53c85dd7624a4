// Package score runs an external perceptual-quality metric over the successful
// outputs of a sweep and aggregates the results per codec and bitrate.
package score

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/himanishpuri/CodecSweep/internal/runner"
)

var ErrNoScore = errors.New("metric output has no score")

// Metric compares a degraded file against a reference of the same sample rate.
type Metric interface {
	Name() string
	Measure(ctx context.Context, reference, degraded string) (float64, error)
}

// ViSQOL drives the visqol command line tool.
type ViSQOL struct {
	Runner runner.Runner
	Bin    string // Defaults to "visqol"
	Speech bool   // Speech mode (16 kHz) instead of audio mode (48 kHz)
	Model  string // Optional SVR model for audio mode
}

func (v ViSQOL) Name() string { return "visqol" }

func (v ViSQOL) args(reference, degraded string) []string {
	args := []string{"--reference_file", reference, "--degraded_file", degraded}
	if v.Speech {
		args = append(args, "--use_speech_mode")
	}
	if v.Model != "" {
		args = append(args, "--similarity_to_quality_model", v.Model)
	}
	return args
}

func (v ViSQOL) Measure(ctx context.Context, reference, degraded string) (float64, error) {
	bin := v.Bin
	if bin == "" {
		bin = "visqol"
	}
	r := v.Runner
	if r == nil {
		r = runner.Exec{}
	}

	var out bytes.Buffer
	log, err := r.Run(ctx, runner.Cmd{Name: bin, Args: v.args(reference, degraded)}, &out)
	if err != nil {
		if tail := log.Tail(300); tail != "" {
			return 0, fmt.Errorf("%s: %w: %s", bin, err, tail)
		}
		return 0, fmt.Errorf("%s: %w", bin, err)
	}
	return parseMOS(out.String())
}

// parseMOS finds the "MOS-LQO:" line visqol prints.
func parseMOS(out string) (float64, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		rest, ok := strings.CutPrefix(line, "MOS-LQO:")
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return 0, fmt.Errorf("parsing MOS-LQO %q: %w", rest, err)
		}
		return v, nil
	}
	return 0, ErrNoScore
}

// CommandMetric runs any tool that prints a score as the last line of stdout.
// {ref} and {deg} in Args are replaced by the file paths.
type CommandMetric struct {
	Runner     runner.Runner
	MetricName string
	Bin        string
	Args       []string
}

func (c CommandMetric) Name() string {
	if c.MetricName != "" {
		return c.MetricName
	}
	return c.Bin
}

func (c CommandMetric) Measure(ctx context.Context, reference, degraded string) (float64, error) {
	if c.Bin == "" {
		return 0, errors.New("metric command is not set")
	}
	r := c.Runner
	if r == nil {
		r = runner.Exec{}
	}

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, "{ref}", reference)
		args[i] = strings.ReplaceAll(a, "{deg}", degraded)
	}
	if len(args) == 0 {
		args = []string{reference, degraded}
	}

	var out bytes.Buffer
	log, err := r.Run(ctx, runner.Cmd{Name: c.Bin, Args: args}, &out)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %s", c.Bin, err, log.Tail(300))
	}
	return lastFloat(out.String())
}

func lastFloat(out string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return 0, ErrNoScore
	}
	fields := strings.Fields(last)
	v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoScore, last)
	}
	return v, nil
}
