package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// maxCapture bounds the stdout/stderr kept per run.
const maxCapture = 4 << 10

// Result is the outcome of one process run.
type Result struct {
	Action   string
	Stdout   []byte
	Stderr   []byte
	ExitCode int32
	Elapsed  time.Duration
}

// CommandRunner abstracts process execution so actions can be tested.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) (Result, error)
}

// ExecRunner executes argv on the local host. Exit code 127 means the
// binary could not be started.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{ExitCode: 127}, exec.ErrNotFound
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:  truncate(stdout.Bytes()),
		Stderr:  truncate(stderr.Bytes()),
		Elapsed: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	res.ExitCode = 1
	var exitErr *exec.ExitError
	var execErr *exec.Error
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = int32(exitErr.ExitCode())
	case errors.As(err, &execErr):
		res.ExitCode = 127
	}
	return res, err
}

func truncate(b []byte) []byte {
	if len(b) > maxCapture {
		return b[:maxCapture]
	}
	return b
}
