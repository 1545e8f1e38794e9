package syscmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a system utility and returns its output streams.
// The production implementation shells out; tests substitute a fake.
type Runner interface {
	// Run executes name with args and returns stdout and stderr as strings.
	// A non-zero exit, a missing binary, or a timeout is reported through
	// err with trimmed stderr folded into the message. Some macOS tools
	// (sysadminctl in particular) report results on stderr with a zero
	// exit, so stderr is returned even on success.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs utilities as subprocesses with a per-call timeout.
type ExecRunner struct {
	Timeout time.Duration
}

func New() *ExecRunner {
	return &ExecRunner{Timeout: 10 * time.Second}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.String(), stderr.String(), fmt.Errorf("%s %v: timed out", name, args)
		}
		s := strings.TrimSpace(stderr.String())
		if s == "" {
			return stdout.String(), stderr.String(), fmt.Errorf("%s %v: %w", name, args, err)
		}
		return stdout.String(), stderr.String(), fmt.Errorf("%s %v: %s", name, args, s)
	}
	return stdout.String(), stderr.String(), nil
}
