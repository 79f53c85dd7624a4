package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunCapturesStdout(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	log, err := Exec{}.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "printf hello; echo oops >&2"}}, &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "hello" {
		t.Errorf("stdout = %q, want hello", out.String())
	}
	if !strings.Contains(log.Stderr, "oops") {
		t.Errorf("stderr = %q", log.Stderr)
	}
}

func TestExecRunExitCode(t *testing.T) {
	requireShell(t)
	log, err := Exec{}.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "exit 3"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if log.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", log.ExitCode)
	}
}

func TestExecRunEnv(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	_, err := Exec{}.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "printf $LD_LIBRARY_PATH"}, Env: []string{"LD_LIBRARY_PATH=/opt/lc3/bin"}}, &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "/opt/lc3/bin" {
		t.Errorf("env not passed: %q", out.String())
	}
}

func TestExecPipe(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	logs, err := Exec{}.Pipe(context.Background(),
		Cmd{Name: "sh", Args: []string{"-c", "printf abc"}},
		Cmd{Name: "sh", Args: []string{"-c", "tr a-z A-Z"}},
		&out)
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	if out.String() != "ABC" {
		t.Errorf("stdout = %q, want ABC", out.String())
	}
	if len(logs) != 2 {
		t.Errorf("expected 2 logs, got %d", len(logs))
	}
}

func TestExecPipeConsumerFailure(t *testing.T) {
	requireShell(t)
	logs, err := Exec{}.Pipe(context.Background(),
		Cmd{Name: "sh", Args: []string{"-c", "printf abc"}},
		Cmd{Name: "sh", Args: []string{"-c", "cat >/dev/null; exit 2"}},
		nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if logs[1].ExitCode != 2 {
		t.Errorf("consumer exit = %d, want 2", logs[1].ExitCode)
	}
}

func TestExecRunTimeout(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Exec{}.Run(ctx, Cmd{Name: "sh", Args: []string{"-c", "sleep 5"}}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
