// Package hg runs Mercurial operations. Each operation builds its
// invocations, runs them through a runner.Runner, checks the first and
// last output lines against the classifier and parses what is left.
package hg

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/sergeknystautas/hgrun/internal/classify"
	"github.com/sergeknystautas/hgrun/internal/credentials"
	"github.com/sergeknystautas/hgrun/internal/hgcmd"
	"github.com/sergeknystautas/hgrun/internal/hgerr"
	"github.com/sergeknystautas/hgrun/internal/history"
	"github.com/sergeknystautas/hgrun/internal/notify"
	"github.com/sergeknystautas/hgrun/internal/runner"
)

// mergeTool makes merges leave conflict markers instead of opening a tool.
const mergeTool = "internal:merge"

// Options configures a Client. Only Runner is required.
type Options struct {
	Runner     runner.Runner
	Defaults   hgcmd.Defaults
	Classifier *classify.Classifier

	Store    credentials.Store
	Prompter credentials.Prompter
	Batch    bool

	Notifier notify.Notifier
	History  history.Recorder
	Logger   *zap.Logger

	// ActiveRepo is the repository in use. NoLog commands run against any
	// other repository are left out of the history.
	ActiveRepo string
	// MaxCommandLine replaces the OS budget when it is at least 1024.
	MaxCommandLine int
	// GOOS selects the OS budget. Defaults to runtime.GOOS.
	GOOS string
	// Username is the commit user when neither the caller nor the
	// repository hgrc names one.
	Username       string
	CommandTimeout time.Duration
	RemoteTimeout  time.Duration
	// TmpDir receives style and message files. Empty means the OS default.
	TmpDir string
	// ProxyHandler is offered proxy errors before they are returned.
	ProxyHandler func(error)
	// UserFetch runs fetch without enabling the bundled extension and
	// without HGPLAIN, so a fetch alias or extension from the user's hgrc
	// is used instead.
	UserFetch bool
	// Now is used for date ranges. Defaults to time.Now.
	Now func() time.Time
}

// Client runs hg operations against local repositories.
type Client struct {
	runner     runner.Runner
	defaults   hgcmd.Defaults
	classifier *classify.Classifier

	store    credentials.Store
	prompter credentials.Prompter
	batch    bool

	notifier notify.Notifier
	history  history.Recorder
	logger   *zap.Logger

	activeMu   sync.RWMutex
	activeRepo string

	budget         int
	goos           string
	username       string
	commandTimeout time.Duration
	remoteTimeout  time.Duration
	tmpDir         string
	proxyHandler   func(error)
	userFetch      bool
	now            func() time.Time

	versionMu  sync.Mutex
	version    *semver.Version
	versionErr error
	versionSet bool
}

// New creates a Client.
func New(opts Options) *Client {
	c := &Client{
		runner:         opts.Runner,
		defaults:       opts.Defaults,
		classifier:     opts.Classifier,
		store:          opts.Store,
		prompter:       opts.Prompter,
		batch:          opts.Batch,
		notifier:       opts.Notifier,
		history:        opts.History,
		logger:         opts.Logger,
		activeRepo:     rootOf(opts.ActiveRepo),
		goos:           opts.GOOS,
		username:       opts.Username,
		commandTimeout: opts.CommandTimeout,
		remoteTimeout:  opts.RemoteTimeout,
		tmpDir:         opts.TmpDir,
		proxyHandler:   opts.ProxyHandler,
		userFetch:      opts.UserFetch,
		now:            opts.Now,
	}
	if c.defaults.RootOf == nil {
		c.defaults.RootOf = rootOf
	}
	if c.classifier == nil {
		c.classifier = classify.Default()
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("hg")
	if c.goos == "" {
		c.goos = runtime.GOOS
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.budget = hgcmd.MaxCommandLine(c.goos, opts.MaxCommandLine)
	return c
}

// SetActiveRepo changes the repository whose NoLog commands are recorded.
func (c *Client) SetActiveRepo(repo string) {
	repo = rootOf(repo)
	c.activeMu.Lock()
	c.activeRepo = repo
	c.activeMu.Unlock()
}

func (c *Client) active() string {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	return c.activeRepo
}

// check inspects the output of one invocation and returns an error for
// output that means the invocation failed.
type check func(lines []string) error

func (c *Client) cmd(subcommand string) *hgcmd.Builder {
	return c.defaults.New(subcommand)
}

// run executes one invocation and notifies on success.
func (c *Client) run(ctx context.Context, inv *hgcmd.Invocation, chk check) ([]string, error) {
	return c.runAll(ctx, inv.Repository(), []*hgcmd.Invocation{inv}, chk)
}

// runAll executes invocations in order, stopping at the first failure.
// When at least one of them moves the working copy parent and all of them
// succeed, repo is notified once.
func (c *Client) runAll(ctx context.Context, repo string, invs []*hgcmd.Invocation, chk check) ([]string, error) {
	var all []string
	modifies := false
	for _, inv := range invs {
		lines, err := c.exec(ctx, inv)
		all = append(all, lines...)
		if err != nil {
			return all, err
		}
		if chk != nil {
			if err := chk(lines); err != nil {
				return all, err
			}
		}
		if inv.Capabilities().Has(hgcmd.ModifiesParent) {
			modifies = true
		}
	}
	if modifies {
		c.changed(repo)
	}
	return all, nil
}

// exec runs one invocation and returns its output lines. It applies the
// timeout for the command, records history and turns proxy failures into
// errors. It never notifies.
func (c *Client) exec(ctx context.Context, inv *hgcmd.Invocation) ([]string, error) {
	caps := inv.Capabilities()
	if d := c.timeoutFor(caps); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	req, cleanup, err := inv.Prepare(c.tmpDir)
	defer cleanup()
	if err != nil {
		if errors.Is(err, hgcmd.ErrInvocationReused) {
			return nil, err
		}
		return nil, hgerr.New(hgerr.IOFailure, inv.Subcommand(), nil, err)
	}

	log := c.logger.With(zap.String("id", inv.ID()), zap.String("op", inv.Subcommand()))
	started := time.Now()
	res, err := c.runner.Run(ctx, req)
	c.record(ctx, inv, req, res, err, started)
	if err != nil {
		if hgerr.IsCanceled(err) {
			log.Debug("canceled", zap.String("cmd", inv.String()))
		} else {
			log.Warn("invocation failed", zap.String("cmd", inv.String()), zap.Error(err))
		}
		return nil, err
	}

	if c.classifier.Any(res.Lines, classify.ProxyMisconfigured) {
		return res.Lines, c.offer(classify.ErrorFor(inv.Subcommand(), res.Lines, classify.ProxyMisconfigured))
	}
	return res.Lines, nil
}

func (c *Client) timeoutFor(caps hgcmd.Capability) time.Duration {
	if caps.Has(hgcmd.Remote) && c.remoteTimeout > 0 {
		return c.remoteTimeout
	}
	return c.commandTimeout
}

// record stores one history row. NoLog commands are only kept for the
// active repository.
func (c *Client) record(ctx context.Context, inv *hgcmd.Invocation, req runner.Request, res *runner.Result, runErr error, started time.Time) {
	if c.history == nil {
		return
	}
	if inv.Capabilities().Has(hgcmd.NoLog) {
		if active := c.active(); active == "" || inv.Repository() != active {
			return
		}
	}
	e := history.Entry{
		ID:         inv.ID(),
		Repo:       inv.Repository(),
		Subcommand: inv.Subcommand(),
		Args:       req.Redacted,
		Duration:   time.Since(started),
		StartedAt:  started,
	}
	if res != nil {
		e.ExitCode = res.ExitCode
	}
	if runErr != nil {
		e.ErrorKind = hgerr.KindOf(runErr).String()
	}
	if err := c.history.Record(context.WithoutCancel(ctx), e); err != nil {
		c.logger.Warn("failed to record invocation", zap.String("id", e.ID), zap.Error(err))
	}
}

// offer hands proxy errors to the ProxyHandler.
func (c *Client) offer(err error) error {
	if c.proxyHandler != nil && hgerr.KindOf(err) == hgerr.ProxyPossiblyMisconfigured {
		c.proxyHandler(err)
	}
	return err
}

func (c *Client) changed(repo string) {
	if repo == "" {
		return
	}
	repo = rootOf(repo)
	c.logger.Debug("working copy changed", zap.String("repo", repo))
	c.notifier.WorkingCopyChanged(repo)
}

// controller builds the credential loop for one remote operation. Saved
// credentials are recorded in the hgrc of repo when it is known.
func (c *Client) controller(repo string) *credentials.Controller {
	ctl := &credentials.Controller{
		Store:      c.store,
		Prompter:   c.prompter,
		Batch:      c.batch,
		Classifier: c.classifier,
		Logger:     c.logger,
	}
	if repo != "" {
		root := rootOf(repo)
		ctl.SavePaths = func(remote string) error {
			return credentials.SavePaths(root, remote)
		}
	}
	return ctl
}

// remote runs a command against another repository. Network URLs go
// through the credential loop; anything else runs once. build is called
// once per attempt with the target to pass to hg.
func (c *Client) remote(ctx context.Context, op, repo, target string, build func(target string) *hgcmd.Invocation, chk check) ([]string, error) {
	if !credentials.IsRemoteURL(target) {
		return c.runAll(ctx, repo, []*hgcmd.Invocation{build(target)}, chk)
	}

	out, err := c.controller(repo).Run(ctx, op, target, func(ctx context.Context, t string) ([]string, error) {
		return c.exec(ctx, build(t))
	})
	if err != nil {
		var lines []string
		if out != nil {
			lines = out.Lines
		}
		return lines, err
	}
	if chk != nil {
		if err := chk(out.Lines); err != nil {
			return out.Lines, err
		}
	}
	if hgcmd.CapabilitiesOf(op).Has(hgcmd.ModifiesParent) {
		c.changed(repo)
	}
	return out.Lines, nil
}

// errorAt classifies line and returns the matching error, falling back to
// a generic abort.
func (c *Client) errorAt(op string, lines []string, line string) error {
	cat := classify.Abort
	if s, ok := c.classifier.Classify(line); ok {
		cat = s.Category
	}
	return classify.ErrorFor(op, lines, cat)
}

// abortLast fails when the last line is an abort.
func (c *Client) abortLast(op string) check {
	return func(lines []string) error {
		last := classify.Last(lines)
		if c.classifier.Is(last, classify.Abort) {
			return c.errorAt(op, lines, last)
		}
		return nil
	}
}

// abortFirst fails when the first line is an abort.
func (c *Client) abortFirst(op string) check {
	return func(lines []string) error {
		first := classify.First(lines)
		if c.classifier.Is(first, classify.Abort) {
			return c.errorAt(op, lines, first)
		}
		return nil
	}
}

// fatal fails on a fatal signature in the first or last line.
func (c *Client) fatal(op string) check {
	return func(lines []string) error {
		return c.classifier.Failure(op, lines)
	}
}

// silent fails on any output that is not benign.
func (c *Client) silent(op string) check {
	return func(lines []string) error {
		if len(lines) == 0 {
			return nil
		}
		if _, ok := c.classifier.Benign(lines); ok {
			return nil
		}
		if err := c.classifier.Failure(op, lines); err != nil {
			return err
		}
		return classify.Unrecognized(op, lines)
	}
}

// nonEmpty fails when the command printed nothing.
func nonEmpty(op string, next check) check {
	return func(lines []string) error {
		if len(lines) == 0 {
			return &hgerr.Error{Kind: hgerr.CommandFailed, Op: op, Reason: "no output"}
		}
		if next != nil {
			return next(lines)
		}
		return nil
	}
}

// both runs a then b.
func both(a, b check) check {
	return func(lines []string) error {
		if err := a(lines); err != nil {
			return err
		}
		return b(lines)
	}
}
