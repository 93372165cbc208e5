// Package hgcmd assembles hg command lines. A Builder produces single-use
// Invocations; the engine path stays a placeholder until the runner resolves it.
package hgcmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sergeknystautas/hgrun/internal/runner"
)

// ErrInvocationReused is returned when an Invocation is prepared twice.
var ErrInvocationReused = errors.New("invocation already submitted")

const (
	OptRepository = "--repository"
	OptCwd        = "--cwd"
	OptConfig     = "--config"
	OptStyle      = "--style"
	optTemplateEq = "--template="
)

// Defaults holds per-client settings applied to every Invocation.
type Defaults struct {
	// Executable overrides the placeholder. Usually left empty.
	Executable string
	// Encoding is exported as HGENCODING when set.
	Encoding string
	// Proxy is exported as http_proxy (host:port) when set.
	Proxy string
	// RootOf maps a path inside a repository to the repository root. Nil
	// keeps --repository paths as given.
	RootOf func(path string) string
}

// Builder collects options for one subcommand.
type Builder struct {
	defaults   Defaults
	subcommand string
	args       []string
	env        []string
	dir        string
	repo       string
	noPlain    bool
	styled     bool
}

// New starts a Builder with the given defaults.
func (d Defaults) New(subcommand string) *Builder {
	return &Builder{defaults: d, subcommand: subcommand}
}

// New starts a Builder with no defaults.
func New(subcommand string) *Builder {
	return Defaults{}.New(subcommand)
}

// Verbose adds -v.
func (b *Builder) Verbose() *Builder { return b.Flag("-v") }

// Flag appends a bare flag.
func (b *Builder) Flag(name string) *Builder {
	b.args = append(b.args, name)
	return b
}

// FlagIf appends name when cond holds.
func (b *Builder) FlagIf(cond bool, name string) *Builder {
	if cond {
		b.args = append(b.args, name)
	}
	return b
}

// Option appends a flag followed by its value. Empty values are skipped.
func (b *Builder) Option(name, value string) *Builder {
	if value == "" {
		return b
	}
	b.args = append(b.args, name, value)
	return b
}

// Config adds a --config key=value override.
func (b *Builder) Config(key, value string) *Builder {
	b.args = append(b.args, OptConfig, key+"="+value)
	return b
}

// Extension enables a bundled extension for this call.
func (b *Builder) Extension(name string) *Builder {
	return b.Config("extensions."+name, "")
}

// Repository sets --repository and remembers the target repository. The
// process runs in the repository when it is an existing directory and no
// other Dir was set.
func (b *Builder) Repository(path string) *Builder {
	if path != "" && b.defaults.RootOf != nil {
		path = b.defaults.RootOf(path)
	}
	b.repo = path
	return b.Option(OptRepository, path)
}

// Cwd adds --cwd.
func (b *Builder) Cwd(path string) *Builder { return b.Option(OptCwd, path) }

// Rev adds -r when rev is set.
func (b *Builder) Rev(rev string) *Builder { return b.Option("-r", rev) }

// Branch adds -b when branch is set.
func (b *Builder) Branch(branch string) *Builder { return b.Option("-b", branch) }

// Limit adds -l when n is positive.
func (b *Builder) Limit(n int) *Builder {
	if n <= 0 {
		return b
	}
	return b.Option("-l", strconv.Itoa(n))
}

// Template passes an inline --template= argument.
func (b *Builder) Template(t string) *Builder {
	b.args = append(b.args, optTemplateEq+t)
	return b
}

// StyleTemplate passes t through a generated style file instead of inline.
func (b *Builder) StyleTemplate(t string) *Builder {
	b.styled = true
	return b.Template(t)
}

// Args appends positional arguments.
func (b *Builder) Args(args ...string) *Builder {
	b.args = append(b.args, args...)
	return b
}

// Env adds an environment variable for this call only.
func (b *Builder) Env(key, value string) *Builder {
	b.env = append(b.env, key+"="+value)
	return b
}

// Dir sets the working directory of the process.
func (b *Builder) Dir(path string) *Builder {
	b.dir = path
	return b
}

// NoPlain stops HGPLAIN from being exported.
func (b *Builder) NoPlain() *Builder {
	b.noPlain = true
	return b
}

// Build freezes the builder into an Invocation. The builder may keep being
// used; later changes do not affect Invocations already built.
func (b *Builder) Build() *Invocation {
	return b.build(b.args)
}

// Clone copies the builder so that a shared prefix can be extended per call.
func (b *Builder) Clone() *Builder {
	c := *b
	c.args = slices.Clone(b.args)
	c.env = slices.Clone(b.env)
	return &c
}

func (b *Builder) build(args []string) *Invocation {
	exe := b.defaults.Executable
	if exe == "" {
		exe = runner.ExecutablePlaceholder
	}
	var env []string
	if !b.noPlain {
		env = append(env, "HGPLAIN=true")
	}
	if b.defaults.Encoding != "" {
		env = append(env, "HGENCODING="+b.defaults.Encoding)
	}
	if b.defaults.Proxy != "" {
		env = append(env, "http_proxy="+b.defaults.Proxy)
	}
	env = append(env, b.env...)

	dir := b.dir
	if dir == "" && b.repo != "" {
		if info, err := os.Stat(b.repo); err == nil && info.IsDir() {
			dir = b.repo
		}
	}

	return &Invocation{
		id:         uuid.NewString(),
		executable: exe,
		subcommand: b.subcommand,
		args:       slices.Clone(args),
		env:        env,
		dir:        dir,
		repo:       b.repo,
		styled:     b.styled,
	}
}

// Invocation is an immutable, single-use description of one engine call.
type Invocation struct {
	id         string
	executable string
	subcommand string
	args       []string
	env        []string
	dir        string
	repo       string
	styled     bool
	submitted  atomic.Bool
}

func (i *Invocation) ID() string         { return i.id }
func (i *Invocation) Subcommand() string { return i.subcommand }
func (i *Invocation) Dir() string        { return i.dir }
func (i *Invocation) Repository() string { return i.repo }

// Args returns the full argument list, subcommand first.
func (i *Invocation) Args() []string {
	return append([]string{i.subcommand}, i.args...)
}

// Env returns the environment overlay.
func (i *Invocation) Env() []string { return slices.Clone(i.env) }

// Capabilities returns the flags of the subcommand. Setting a branch name
// moves the working copy parent, listing it does not.
func (i *Invocation) Capabilities() Capability {
	c := CapabilitiesOf(i.subcommand)
	if i.subcommand == "branch" && len(positionals(i.args)) > 0 {
		c = (c &^ ReadOnly) | ModifiesParent
	}
	return c
}

// Redacted returns the argument list with URL passwords masked.
func (i *Invocation) Redacted() []string {
	args := i.Args()
	for n, a := range args {
		args[n] = RedactURL(a)
	}
	return args
}

// String renders the redacted command line for logs and errors.
func (i *Invocation) String() string {
	return "hg " + strings.Join(i.Redacted(), " ")
}

// Length estimates the command line length in bytes. An unresolved
// executable is counted at its reserve.
func (i *Invocation) Length() int {
	n := executableCost(i.executable)
	for _, a := range i.Args() {
		n += len(a) + 1
	}
	return n
}

// Prepare turns the Invocation into a runner request. Style templates are
// written to a file under tmpDir (the OS temp dir when empty); cleanup
// removes it and must be called on every path. A second call fails with
// ErrInvocationReused.
func (i *Invocation) Prepare(tmpDir string) (runner.Request, func(), error) {
	noop := func() {}
	if !i.submitted.CompareAndSwap(false, true) {
		return runner.Request{}, noop, ErrInvocationReused
	}

	args := i.Args()
	cleanup := noop
	if i.styled {
		for n, a := range args {
			if !strings.HasPrefix(a, optTemplateEq) {
				continue
			}
			path, err := writeStyleFile(tmpDir, strings.TrimPrefix(a, optTemplateEq))
			if err != nil {
				return runner.Request{}, noop, err
			}
			cleanup = func() { os.Remove(path) }
			args = slices.Replace(args, n, n+1, OptStyle, path)
			break
		}
	}

	redacted := slices.Clone(args)
	for n, a := range redacted {
		redacted[n] = RedactURL(a)
	}
	return runner.Request{
		ID:         i.id,
		Executable: i.executable,
		Args:       args,
		Redacted:   redacted,
		Dir:        i.dir,
		Env:        slices.Clone(i.env),
	}, cleanup, nil
}

func writeStyleFile(dir, template string) (string, error) {
	f, err := os.CreateTemp(dir, "hgstyle-*.style")
	if err != nil {
		return "", fmt.Errorf("failed to create style file: %w", err)
	}
	content := "changeset = \"" + strings.ReplaceAll(template, `"`, `\"`) + "\"\n"
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write style file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write style file: %w", err)
	}
	return f.Name(), nil
}

// RedactURL masks the password of a URL argument. Anything else is returned
// unchanged.
func RedactURL(arg string) string {
	if !strings.Contains(arg, "://") || !strings.Contains(arg, "@") {
		return arg
	}
	u, err := url.Parse(arg)
	if err != nil || u.User == nil {
		return arg
	}
	return u.Redacted()
}

// positionals returns the arguments that are neither flags nor flag values.
// Only flags known to take a value are skipped with their value.
func positionals(args []string) []string {
	var out []string
	for n := 0; n < len(args); n++ {
		a := args[n]
		if strings.HasPrefix(a, "-") {
			if takesValue(a) {
				n++
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

func takesValue(flag string) bool {
	switch flag {
	case OptRepository, OptCwd, OptConfig, OptStyle, "-r", "--rev", "-b", "-l", "-m", "--message", "-u", "--user", "--logfile", "-o", "-X", "--exclude":
		return true
	}
	return false
}
