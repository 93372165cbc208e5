// Package classify recognizes known engine messages in output lines.
//
// The engine's messages are not a stable machine-readable protocol, so
// recognition is a table of substring and prefix tests kept as plain data
// (see DefaultSignatures). Classification never fails: an unrecognized line
// simply has no category.
package classify

import (
	"strings"

	"github.com/sergeknystautas/hgrun/internal/hgerr"
)

// Classifier walks a signature table in order.
type Classifier struct {
	signatures []Signature
}

// New returns a Classifier over sigs, which must be in precedence order.
func New(sigs []Signature) *Classifier {
	return &Classifier{signatures: sigs}
}

// Default returns a Classifier over DefaultSignatures.
func Default() *Classifier {
	return New(DefaultSignatures)
}

// Classify returns the first signature matching line.
func (c *Classifier) Classify(line string) (Signature, bool) {
	for _, s := range c.signatures {
		if s.Matches(line) {
			return s, true
		}
	}
	return Signature{}, false
}

// Is reports whether any row of category cat matches line, regardless of
// precedence.
func (c *Classifier) Is(line string, cat Category) bool {
	for _, s := range c.signatures {
		if s.Category == cat && s.Matches(line) {
			return true
		}
	}
	return false
}

// Any reports whether some line matches cat.
func (c *Classifier) Any(lines []string, cat Category) bool {
	for _, l := range lines {
		if c.Is(l, cat) {
			return true
		}
	}
	return false
}

// FirstIs tests the first line.
func (c *Classifier) FirstIs(lines []string, cat Category) bool {
	return len(lines) > 0 && c.Is(lines[0], cat)
}

// LastIs tests the last line.
func (c *Classifier) LastIs(lines []string, cat Category) bool {
	return len(lines) > 0 && c.Is(lines[len(lines)-1], cat)
}

// Benign reports whether the first or last line is a benign condition.
func (c *Classifier) Benign(lines []string) (Category, bool) {
	for _, l := range edges(lines) {
		if s, ok := c.Classify(l); ok && s.Severity == Benign {
			return s.Category, true
		}
	}
	return "", false
}

// Failure inspects the first and last lines and returns an error for the
// first fatal signature found, or nil.
func (c *Classifier) Failure(op string, lines []string) error {
	for _, l := range edges(lines) {
		if s, ok := c.Classify(l); ok && s.Severity == Fatal {
			return ErrorFor(op, lines, s.Category)
		}
	}
	return nil
}

// Matches tests one line against the signature.
func (s Signature) Matches(line string) bool {
	switch s.Kind {
	case Prefix:
		for _, p := range s.Patterns {
			if strings.HasPrefix(line, p) {
				return true
			}
		}
	case Contains, AnyOf:
		for _, p := range s.Patterns {
			if strings.Contains(line, p) {
				return true
			}
		}
	case ContainsFold, AnyOfFold:
		lower := strings.ToLower(line)
		for _, p := range s.Patterns {
			if strings.Contains(lower, strings.ToLower(p)) {
				return true
			}
		}
	case AllOf:
		if len(s.Patterns) == 0 {
			return false
		}
		for _, p := range s.Patterns {
			if !strings.Contains(line, p) {
				return false
			}
		}
		return true
	}
	return false
}

// ErrorFor maps a category to an *hgerr.Error carrying the raw output.
func ErrorFor(op string, lines []string, cat Category) *hgerr.Error {
	return &hgerr.Error{Kind: kindOf(cat), Op: op, Reason: string(cat), Output: lines}
}

// Unrecognized wraps output that matched no signature.
func Unrecognized(op string, lines []string) *hgerr.Error {
	return &hgerr.Error{Kind: hgerr.CommandFailed, Op: op, Output: lines}
}

func kindOf(cat Category) hgerr.Kind {
	switch cat {
	case AuthFailed:
		return hgerr.AuthenticationFailed
	case AuthRequired:
		return hgerr.AuthenticationRequired
	case ProxyMisconfigured:
		return hgerr.ProxyPossiblyMisconfigured
	case ArgumentListTooLong:
		return hgerr.ArgumentListTooLong
	case CommandNotFound, ViewUnavailable:
		return hgerr.Unavailable
	case "":
		return hgerr.CommandFailed
	}
	return hgerr.EngineReportedAbort
}

func edges(lines []string) []string {
	switch len(lines) {
	case 0:
		return nil
	case 1:
		return lines
	}
	return []string{lines[0], lines[len(lines)-1]}
}

// First returns the first line or "".
func First(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// Last returns the last line or "".
func Last(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
