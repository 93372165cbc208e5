package runner

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/sergeknystautas/hgrun/internal/hgerr"
)

// Response is a scripted answer for Fake.
type Response struct {
	Lines    []string
	ExitCode int
	Err      error
}

type fakeStub struct {
	match     func(Request) bool
	responses []Response
}

// Fake is a scripted Runner for tests. Stubs are matched newest first; each
// stub answers with its responses in order and repeats the last one.
type Fake struct {
	mu    sync.Mutex
	stubs []*fakeStub
	calls []Request
}

// NewFake returns an empty Fake. Unmatched requests get an empty result.
func NewFake() *Fake {
	return &Fake{}
}

// Stub answers requests for subcommand whose arguments contain every token
// in contains.
func (f *Fake) Stub(subcommand string, contains []string, responses ...Response) {
	f.StubFunc(func(req Request) bool {
		if req.Subcommand() != subcommand {
			return false
		}
		for _, c := range contains {
			if !slices.Contains(req.Args, c) {
				return false
			}
		}
		return true
	}, responses...)
}

// StubLines is shorthand for a single successful response.
func (f *Fake) StubLines(subcommand string, lines ...string) {
	f.Stub(subcommand, nil, Response{Lines: lines})
}

// StubFunc answers requests accepted by match.
func (f *Fake) StubFunc(match func(Request) bool, responses ...Response) {
	if len(responses) == 0 {
		responses = []Response{{}}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, &fakeStub{match: match, responses: responses})
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cloneRequest(req))
	var resp Response
	for i := len(f.stubs) - 1; i >= 0; i-- {
		s := f.stubs[i]
		if !s.match(req) {
			continue
		}
		resp = s.responses[0]
		if len(s.responses) > 1 {
			s.responses = s.responses[1:]
		}
		break
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, hgerr.New(hgerr.Canceled, req.Subcommand(), nil, err)
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	status := ExitNormal
	if resp.ExitCode != 0 {
		status = ExitAbnormal
	}
	return &Result{Lines: slices.Clone(resp.Lines), ExitCode: resp.ExitCode, Status: status}, nil
}

// Calls returns the requests received so far.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the requests for one subcommand.
func (f *Fake) CallsFor(subcommand string) []Request {
	var out []Request
	for _, c := range f.Calls() {
		if c.Subcommand() == subcommand {
			out = append(out, c)
		}
	}
	return out
}

// CommandLines renders calls as space-joined argument strings.
func (f *Fake) CommandLines() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, strings.Join(c.Args, " "))
	}
	return out
}

func cloneRequest(r Request) Request {
	r.Args = slices.Clone(r.Args)
	r.Env = slices.Clone(r.Env)
	r.Redacted = slices.Clone(r.Redacted)
	return r
}
