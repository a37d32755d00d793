package tdd

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// ExecRunner runs `go test` against a path and reports pass/fail. It is the
// default TestRunner; callers needing a different toolchain (pytest, jest)
// swap in their own implementation of the same interface.
type ExecRunner struct {
	// Dir is the working directory test commands run from.
	Dir string
	// Timeout bounds a single test invocation; zero means no timeout.
	Timeout time.Duration
}

// Run executes `go test <testPath>` and reports whether it exited clean.
// Coverage is left nil: wiring `-cover` parsing is left to a caller that
// needs it, since the parsed percentage format varies by package layout.
func (r ExecRunner) Run(ctx context.Context, testPath string) (bool, *float64, error) {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "go", "test", testPath)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, nil, nil
}
