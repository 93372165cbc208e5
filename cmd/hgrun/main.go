package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sergeknystautas/hgrun/internal/hgerr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(rootOptions{}).ExecuteContext(ctx)
	if err == nil {
		return
	}
	code := report(os.Stderr, err)
	stop()
	os.Exit(code)
}

// report prints err on one line and returns the exit status. An interrupted
// command exits quietly.
func report(w io.Writer, err error) int {
	code := exitCode(err)
	if code == exitInterrupted {
		return code
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if msg == "" {
		msg = "error"
	}
	fmt.Fprintln(w, "hgrun: "+msg)
	return code
}

const exitInterrupted = 130

// exitCode maps error kinds to distinct exit statuses so scripts can tell
// an abort from a missing engine or a refused login.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	var he *hgerr.Error
	if !errors.As(err, &he) {
		return 1
	}
	switch he.Kind {
	case hgerr.Canceled:
		return exitInterrupted
	case hgerr.AuthenticationRequired, hgerr.AuthenticationFailed:
		return 3
	case hgerr.ProcessLaunchFailed, hgerr.Unavailable:
		return 4
	case hgerr.EngineReportedAbort:
		return 255
	}
	return 1
}
