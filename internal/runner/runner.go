// Package runner launches the hg engine as a subprocess and collects its
// output. stdout and stderr are drained concurrently so that neither pipe
// can fill up while the other is being read.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sergeknystautas/hgrun/internal/hgerr"
)

// ExecutablePlaceholder stands in for the engine path until the request
// reaches the runner.
const ExecutablePlaceholder = "{hg}"

// DefaultExecutable is used when nothing else is configured.
const DefaultExecutable = "hg"

// abnormalExitCode is what hg (and the shell) report when the command line
// could not be handed to the engine at all.
const abnormalExitCode = 255

// Stderr lines dropped from results: engine warnings (prefix only, so that
// remote and hook messages quoting a warning survive) and deprecation notices.
const (
	stderrWarningPrefix = "warning:"
	stderrDeprecated    = "is deprecated:"
)

// ExitStatus describes how a process terminated.
type ExitStatus int

const (
	ExitNormal ExitStatus = iota
	ExitAbnormal
	ExitKilled
)

func (s ExitStatus) String() string {
	switch s {
	case ExitNormal:
		return "normal"
	case ExitAbnormal:
		return "abnormal"
	case ExitKilled:
		return "killed"
	}
	return "unknown"
}

// Request is one subprocess call.
type Request struct {
	// ID correlates log lines and history rows.
	ID string
	// Executable is a path, a bare name or ExecutablePlaceholder.
	Executable string
	Args       []string
	// Redacted is the argument list safe to log. Falls back to the
	// subcommand only when empty.
	Redacted []string
	Dir      string
	// Env is overlaid on the current process environment (KEY=VALUE).
	Env []string
}

// Subcommand returns the first argument.
func (r Request) Subcommand() string {
	if len(r.Args) == 0 {
		return ""
	}
	return r.Args[0]
}

// Result is the collected output of one process.
type Result struct {
	// Lines holds stdout lines followed by filtered stderr lines.
	Lines    []string
	ExitCode int
	Status   ExitStatus
	Duration time.Duration
}

// Empty reports whether the process produced no output at all.
func (r *Result) Empty() bool {
	return r == nil || len(r.Lines) == 0
}

// Runner runs requests to completion.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Resolver maps the logical engine name to something exec can start.
type Resolver interface {
	Resolve(name string) string
}

// StaticResolver always answers with the same path. An empty path means the
// bare name is used and looked up in PATH.
type StaticResolver string

func (s StaticResolver) Resolve(name string) string {
	if s == "" {
		return name
	}
	return string(s)
}

// ExecRunner runs requests with os/exec.
type ExecRunner struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewExecRunner creates an ExecRunner. A nil resolver resolves to the bare
// engine name.
func NewExecRunner(resolver Resolver, logger *zap.Logger) *ExecRunner {
	if resolver == nil {
		resolver = StaticResolver("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{resolver: resolver, logger: logger.Named("runner")}
}

// Run starts the process, drains both streams and waits for it to exit.
// A non-zero exit code is not an error here; callers classify the output.
func (r *ExecRunner) Run(ctx context.Context, req Request) (*Result, error) {
	op := req.Subcommand()
	if err := ctx.Err(); err != nil {
		return nil, hgerr.New(hgerr.Canceled, op, nil, err)
	}

	exe := req.Executable
	if exe == "" || exe == ExecutablePlaceholder {
		exe = r.resolver.Resolve(DefaultExecutable)
	}

	log := r.logger.With(zap.String("id", req.ID), zap.String("op", op))
	if len(req.Redacted) > 0 {
		log.Debug("running", zap.Strings("args", req.Redacted), zap.String("dir", req.Dir))
	} else {
		log.Debug("running", zap.Int("argc", len(req.Args)), zap.String("dir", req.Dir))
	}

	cmd := exec.CommandContext(ctx, exe, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, hgerr.New(hgerr.IOFailure, op, nil, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, hgerr.New(hgerr.IOFailure, op, nil, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, launchError(op, exe, err)
	}

	// Closing the read ends unblocks both readers even when a grandchild
	// keeps the write ends open after the child is killed.
	stop := context.AfterFunc(ctx, func() {
		stdout.Close()
		stderr.Close()
	})
	defer stop()

	var outLines, errLines []string
	var g errgroup.Group
	g.Go(func() error {
		var err error
		outLines, err = readLines(stdout, nil)
		return err
	})
	g.Go(func() error {
		var err error
		errLines, err = readLines(stderr, isStderrNoise)
		return err
	})
	readErr := g.Wait()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Debug("canceled", zap.Duration("elapsed", time.Since(start)))
		return nil, hgerr.New(hgerr.Canceled, op, nil, ctxErr)
	}
	if readErr != nil {
		return nil, hgerr.New(hgerr.IOFailure, op, nil, readErr)
	}

	res := &Result{
		Lines:    append(outLines, errLines...),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.Status = ExitNormal
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		res.Status = ExitAbnormal
		if res.ExitCode < 0 {
			res.Status = ExitKilled
		}
	default:
		return nil, hgerr.New(hgerr.IOFailure, op, res.Lines, waitErr)
	}

	if res.Empty() && (res.ExitCode == abnormalExitCode || res.Status == ExitKilled) {
		log.Warn("abnormal exit with no output", zap.Int("exit", res.ExitCode), zap.Int("argc", len(req.Args)))
		return nil, &hgerr.Error{
			Kind:   hgerr.ArgumentListTooLong,
			Op:     op,
			Reason: fmt.Sprintf("exit %d with no output, %d arguments", res.ExitCode, len(req.Args)),
		}
	}

	log.Debug("finished", zap.Int("exit", res.ExitCode), zap.Int("lines", len(res.Lines)), zap.Duration("elapsed", res.Duration))
	return res, nil
}

func launchError(op, exe string, err error) error {
	switch {
	case errors.Is(err, syscall.E2BIG), strings.Contains(strings.ToLower(err.Error()), "argument list too long"):
		return &hgerr.Error{Kind: hgerr.ArgumentListTooLong, Op: op, Err: err}
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return &hgerr.Error{Kind: hgerr.ProcessLaunchFailed, Op: op, Reason: "executable not found: " + exe, Err: err}
	default:
		return &hgerr.Error{Kind: hgerr.ProcessLaunchFailed, Op: op, Reason: exe, Err: err}
	}
}

func isStderrNoise(line string) bool {
	return strings.HasPrefix(line, stderrWarningPrefix) || strings.Contains(line, stderrDeprecated)
}

// readLines reads r to EOF, dropping lines for which skip returns true.
func readLines(r io.Reader, skip func(string) bool) ([]string, error) {
	var lines []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			if skip == nil || !skip(line) {
				lines = append(lines, line)
			}
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
	}
}
