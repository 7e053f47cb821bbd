package process_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/process"
	"github.com/xraph/jobgraph/process/processtest"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_MissingExecutable(t *testing.T) {
	r := process.NewExecRunner(nil)
	_, err := r.Run(context.Background(), process.Command{Name: "jobgraph-definitely-not-installed"})
	if err == nil {
		t.Fatal("expected error")
	}
	if jobgraph.KindOf(err) != jobgraph.KindEnvironment {
		t.Errorf("kind = %q, want %q", jobgraph.KindOf(err), jobgraph.KindEnvironment)
	}
	if jobgraph.Retryable(err) {
		t.Error("missing executable must not be retryable")
	}
}

func TestExecRunner_Stdout(t *testing.T) {
	requireShell(t)
	r := process.NewExecRunner(nil)
	res, err := r.Run(context.Background(), process.Command{
		Name: "sh",
		Args: []string{"-c", "echo $GREETING"},
		Env:  []string{"GREETING=hello"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "hello" {
		t.Errorf("stdout = %q, want %q", got, "hello")
	}
}

func TestExecRunner_ExitCode(t *testing.T) {
	requireShell(t)
	r := process.NewExecRunner(nil)
	res, err := r.Run(context.Background(), process.Command{
		Name: "sh",
		Args: []string{"-c", "echo boom >&2; exit 3"},
	})
	var ee *process.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if ee.Code != 3 || res.ExitCode != 3 {
		t.Errorf("exit code = %d/%d, want 3", ee.Code, res.ExitCode)
	}
	if ee.Stderr != "boom" {
		t.Errorf("stderr = %q, want %q", ee.Stderr, "boom")
	}
	if process.ExitCode(err) != 3 {
		t.Errorf("ExitCode(err) = %d, want 3", process.ExitCode(err))
	}
}

func TestExecRunner_StreamStdout(t *testing.T) {
	requireShell(t)
	var sb strings.Builder
	r := process.NewExecRunner(nil)
	res, err := r.Run(context.Background(), process.Command{
		Name:   "sh",
		Args:   []string{"-c", "printf streamed"},
		Stdout: &sb,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sb.String() != "streamed" {
		t.Errorf("writer got %q", sb.String())
	}
	if len(res.Stdout) != 0 {
		t.Errorf("Result.Stdout should be empty when streaming, got %q", res.Stdout)
	}
}

func TestFakeRunner_RecordsAndScripts(t *testing.T) {
	r := processtest.New(func(_ context.Context, cmd process.Command) (*process.Result, error) {
		if cmd.Name == "bad" {
			return &process.Result{ExitCode: 2, Stderr: []byte("nope\n")}, nil
		}
		return &process.Result{Stdout: []byte("ok")}, nil
	}).Missing("absent")

	ctx := context.Background()
	if _, err := r.Run(ctx, process.Command{Name: "good", Args: []string{"-o", "out"}}); err != nil {
		t.Fatalf("good: %v", err)
	}
	_, err := r.Run(ctx, process.Command{Name: "bad"})
	if process.ExitCode(err) != 2 {
		t.Errorf("bad exit = %d, want 2", process.ExitCode(err))
	}
	_, err = r.Run(ctx, process.Command{Name: "absent"})
	if jobgraph.KindOf(err) != jobgraph.KindEnvironment {
		t.Errorf("absent kind = %q", jobgraph.KindOf(err))
	}

	if n := len(r.Calls()); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
	good := r.CallsTo("good")
	if len(good) != 1 || processtest.Arg(good[0].Args, "-o") != "out" {
		t.Errorf("unexpected good calls: %+v", good)
	}
}

func TestCommand_StringRedactsSecrets(t *testing.T) {
	c := process.Command{Name: "curl", Args: []string{"-H", "key:abc"}, Secret: true}
	if strings.Contains(c.String(), "abc") {
		t.Errorf("secret leaked: %q", c.String())
	}
	c.Secret = false
	if c.String() != "curl -H key:abc" {
		t.Errorf("String() = %q", c.String())
	}
}
