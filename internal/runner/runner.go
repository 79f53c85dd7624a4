package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Cmd describes one external process invocation.
type Cmd struct {
	Name string
	Args []string
	Env  []string // Extra KEY=VALUE entries appended to the parent environment
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Elapsed  time.Duration
}

// Tail returns the last n bytes of stderr, trimmed.
func (l CommandLog) Tail(n int) string {
	s := strings.TrimSpace(l.Stderr)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

// Runner abstracts process execution so codecs can be tested without binaries.
type Runner interface {
	// Run executes cmd, writing its stdout to stdout when non-nil.
	Run(ctx context.Context, cmd Cmd, stdout io.Writer) (CommandLog, error)
	// Pipe streams producer stdout into consumer stdin. Consumer stdout goes to stdout when non-nil.
	Pipe(ctx context.Context, producer, consumer Cmd, stdout io.Writer) ([]CommandLog, error)
}

// Exec runs commands via os/exec.
type Exec struct{}

func (Exec) command(ctx context.Context, c Cmd) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.WaitDelay = 2 * time.Second
	return cmd
}

func (e Exec) Run(ctx context.Context, c Cmd, stdout io.Writer) (CommandLog, error) {
	cmd := e.command(ctx, c)
	var stderr bytes.Buffer
	if stdout != nil {
		cmd.Stdout = stdout
	}
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log := CommandLog{Command: c.Name, Args: c.Args, Stderr: stderr.String(), Elapsed: time.Since(start)}
	log.ExitCode = exitCode(err)
	if err != nil {
		return log, wrap(ctx, c, err)
	}
	return log, nil
}

func (e Exec) Pipe(ctx context.Context, producer, consumer Cmd, stdout io.Writer) ([]CommandLog, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating pipe: %w", err)
	}

	enc := e.command(ctx, producer)
	dec := e.command(ctx, consumer)
	var encErr, decErr bytes.Buffer
	enc.Stdout = pw
	enc.Stderr = &encErr
	dec.Stdin = pr
	dec.Stderr = &decErr
	if stdout != nil {
		dec.Stdout = stdout
	}

	start := time.Now()
	if err := enc.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, wrap(ctx, producer, err)
	}
	if err := dec.Start(); err != nil {
		pr.Close()
		pw.Close()
		enc.Process.Kill()
		enc.Wait()
		return nil, wrap(ctx, consumer, err)
	}
	// The children hold their own copies; closing ours lets EOF and EPIPE propagate.
	pw.Close()
	pr.Close()

	errEnc := enc.Wait()
	errDec := dec.Wait()
	elapsed := time.Since(start)

	logs := []CommandLog{
		{Command: producer.Name, Args: producer.Args, ExitCode: exitCode(errEnc), Stderr: encErr.String(), Elapsed: elapsed},
		{Command: consumer.Name, Args: consumer.Args, ExitCode: exitCode(errDec), Stderr: decErr.String(), Elapsed: elapsed},
	}
	if errEnc != nil {
		return logs, wrap(ctx, producer, errEnc)
	}
	if errDec != nil {
		return logs, wrap(ctx, consumer, errDec)
	}
	return logs, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// wrap prefers the context error so callers can tell a timeout from a tool failure.
func wrap(ctx context.Context, c Cmd, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", c.Name, ctxErr)
	}
	return fmt.Errorf("%s: %w", c.Name, err)
}
