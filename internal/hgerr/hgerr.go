// Package hgerr defines the error taxonomy shared by the runner, the
// output classifier and the operations built on top of them.
package hgerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a class of failure.
type Kind int

const (
	// CommandFailed is the fallback when no signature matched.
	CommandFailed Kind = iota
	ProcessLaunchFailed
	ArgumentListTooLong
	Canceled
	IOFailure
	AuthenticationRequired
	AuthenticationFailed
	EngineReportedAbort
	ProxyPossiblyMisconfigured
	Unavailable
)

var kindNames = map[Kind]string{
	CommandFailed:              "command failed",
	ProcessLaunchFailed:        "process launch failed",
	ArgumentListTooLong:        "argument list too long",
	Canceled:                   "canceled",
	IOFailure:                  "i/o failure",
	AuthenticationRequired:     "authentication required",
	AuthenticationFailed:       "authentication failed",
	EngineReportedAbort:        "engine reported abort",
	ProxyPossiblyMisconfigured: "proxy possibly misconfigured",
	Unavailable:                "engine unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels usable with errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrCommandFailed              = &Error{Kind: CommandFailed}
	ErrProcessLaunchFailed        = &Error{Kind: ProcessLaunchFailed}
	ErrArgumentListTooLong        = &Error{Kind: ArgumentListTooLong}
	ErrCanceled                   = &Error{Kind: Canceled}
	ErrIOFailure                  = &Error{Kind: IOFailure}
	ErrAuthenticationRequired     = &Error{Kind: AuthenticationRequired}
	ErrAuthenticationFailed       = &Error{Kind: AuthenticationFailed}
	ErrEngineReportedAbort        = &Error{Kind: EngineReportedAbort}
	ErrProxyPossiblyMisconfigured = &Error{Kind: ProxyPossiblyMisconfigured}
	ErrUnavailable                = &Error{Kind: Unavailable}
)

// Error is the typed failure returned by every operation.
type Error struct {
	Kind Kind
	// Op is the subcommand that failed, e.g. "pull".
	Op string
	// Reason is the classifier category or a short human message.
	Reason string
	// Output holds the raw output lines for diagnostics.
	Output []string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString("hg ")
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Output) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Output, "\n"))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Reason == "" && t.Output == nil && t.Err == nil && t.Kind == e.Kind
}

// New builds an *Error.
func New(kind Kind, op string, output []string, err error) *Error {
	return &Error{Kind: kind, Op: op, Output: output, Err: err}
}

// KindOf returns the Kind of err, or CommandFailed when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return CommandFailed
}

// ReasonOf returns the Reason of err if it is an *Error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsCanceled reports whether err is a cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
