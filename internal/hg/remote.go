package hg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergeknystautas/hgrun/internal/classify"
	"github.com/sergeknystautas/hgrun/internal/hgcmd"
	"github.com/sergeknystautas/hgrun/internal/hgerr"
	"github.com/sergeknystautas/hgrun/internal/parse"
)

// RemoteResult is the output of a command that brought in or sent
// changesets.
type RemoteResult struct {
	Lines []string
	// NoChanges is set when there was nothing to exchange.
	NoChanges bool
	// NewHeads is set when the repository gained a head that needs merging.
	NewHeads bool
	// UpdateNeeded is set when the working copy was left behind.
	UpdateNeeded bool
}

func (c *Client) remoteResult(lines []string) *RemoteResult {
	return &RemoteResult{
		Lines:        lines,
		NoChanges:    c.classifier.Any(lines, classify.NoChangesFound),
		NewHeads:     c.classifier.Any(lines, classify.NewHeadCreated) || c.classifier.Any(lines, classify.MergeNeeded),
		UpdateNeeded: c.classifier.Any(lines, classify.NoWorkingCopy),
	}
}

// PullOptions selects what Pull brings in.
type PullOptions struct {
	// Source is a URL, a path or a path alias. Empty means the default path.
	Source string
	Rev    string
	Branch string
	// Update updates the working copy after pulling.
	Update bool
}

// Pull brings changesets from a remote into repo.
func (c *Client) Pull(ctx context.Context, repo string, opts PullOptions) (*RemoteResult, error) {
	source := opts.Source
	if source == "" {
		source = c.defaultPath(ctx, repo, "default")
	}
	build := func(src string) *hgcmd.Invocation {
		return c.cmd("pull").Verbose().
			FlagIf(opts.Update, "-u").
			Config("ui.merge", mergeTool).
			Repository(repo).
			Rev(opts.Rev).
			Branch(opts.Branch).
			Args(optional(src)...).
			Build()
	}
	lines, err := c.remote(ctx, "pull", repo, source, build, c.abortLast("pull"))
	if err != nil {
		return nil, err
	}
	return c.remoteResult(lines), nil
}

// PushOptions selects what Push sends.
type PushOptions struct {
	// Dest is a URL, a path or a path alias. Empty means default-push,
	// then default.
	Dest   string
	Rev    string
	Branch string
	// NewBranch allows creating named branches on the remote.
	NewBranch bool
	// Force pushes even when new remote heads would be created.
	Force bool
}

// Push sends changesets from repo to a remote. A push refused because it
// would create new remote heads fails with reason push-creates-new-heads.
func (c *Client) Push(ctx context.Context, repo string, opts PushOptions) (*RemoteResult, error) {
	dest := opts.Dest
	if dest == "" {
		dest = c.defaultPath(ctx, repo, "default-push")
	}
	if dest == "" {
		dest = c.defaultPath(ctx, repo, "default")
	}
	newBranch := (opts.NewBranch || opts.Branch != "") && c.supports(ctx, newBranchVersion)
	build := func(dst string) *hgcmd.Invocation {
		return c.cmd("push").
			FlagIf(opts.Force, "-f").
			FlagIf(newBranch, "--new-branch").
			Repository(repo).
			Rev(opts.Rev).
			Branch(opts.Branch).
			Args(optional(dst)...).
			Build()
	}
	lines, err := c.remote(ctx, "push", repo, dest, build, func(lines []string) error {
		if c.classifier.LastIs(lines, classify.PushCreatesNewHeads) {
			return classify.ErrorFor("push", lines, classify.PushCreatesNewHeads)
		}
		return c.abortLast("push")(lines)
	})
	if err != nil {
		return nil, err
	}
	return c.remoteResult(lines), nil
}

// Fetch pulls, merges and commits the merge in one step.
func (c *Client) Fetch(ctx context.Context, repo, source string) (*RemoteResult, error) {
	if source == "" {
		source = c.defaultPath(ctx, repo, "default")
	}
	build := func(src string) *hgcmd.Invocation {
		b := c.cmd("fetch").Verbose()
		if c.userFetch {
			b.NoPlain()
		} else {
			b.Extension("fetch")
		}
		return b.Config("ui.merge", mergeTool).
			Repository(repo).
			Args(optional(src)...).
			Build()
	}
	lines, err := c.remote(ctx, "fetch", repo, source, build, c.abortLast("fetch"))
	if err != nil {
		return nil, err
	}
	return c.remoteResult(lines), nil
}

// ExchangeOptions selects the changesets listed by Incoming and Outgoing.
type ExchangeOptions struct {
	// Remote is the source for Incoming and the destination for Outgoing.
	Remote string
	Rev    string
	Branch string
	// Bundle keeps the incoming changesets in a file. Incoming only.
	Bundle string
}

// Incoming lists changesets a pull would bring in. Nothing to pull is an
// empty result, not an error.
func (c *Client) Incoming(ctx context.Context, repo string, opts ExchangeOptions) ([]parse.ChangesetRecord, error) {
	return c.exchange(ctx, "incoming", "default", repo, opts)
}

// Outgoing lists changesets a push would send.
func (c *Client) Outgoing(ctx context.Context, repo string, opts ExchangeOptions) ([]parse.ChangesetRecord, error) {
	opts.Bundle = ""
	return c.exchange(ctx, "outgoing", "default-push", repo, opts)
}

func (c *Client) exchange(ctx context.Context, op, pathName, repo string, opts ExchangeOptions) ([]parse.ChangesetRecord, error) {
	target := opts.Remote
	if target == "" {
		target = c.defaultPath(ctx, repo, pathName)
	}
	if target == "" && pathName != "default" {
		target = c.defaultPath(ctx, repo, "default")
	}
	build := func(t string) *hgcmd.Invocation {
		return c.cmd(op).Verbose().
			Option("--bundle", opts.Bundle).
			Repository(repo).
			Rev(opts.Rev).
			Branch(opts.Branch).
			StyleTemplate(parse.LogTemplate(false)).
			Args(optional(t)...).
			Build()
	}
	lines, err := c.remote(ctx, op, repo, target, build, func(lines []string) error {
		if c.classifier.FirstIs(lines, classify.NoRepository) {
			return classify.ErrorFor(op, lines, classify.NoRepository)
		}
		return c.abortLast(op)(lines)
	})
	if err != nil {
		return nil, err
	}
	if c.classifier.Any(lines, classify.NoChangesFound) {
		return nil, nil
	}
	return parse.ParseLog(lines, false), nil
}

// Bundle writes the changesets after base (up to rev when set) to output.
func (c *Client) Bundle(ctx context.Context, repo, base, rev, output string) ([]string, error) {
	if err := makeParent("bundle", output); err != nil {
		return nil, err
	}
	inv := c.cmd("bundle").Verbose().
		Repository(repo).
		Option("--base", base).
		Rev(rev).
		Args(output).
		Build()
	return c.run(ctx, inv, c.abortLast("bundle"))
}

// Unbundle applies a bundle file to repo.
func (c *Client) Unbundle(ctx context.Context, repo, bundle string, update bool) (*RemoteResult, error) {
	inv := c.cmd("unbundle").Verbose().
		FlagIf(update, "-u").
		Config("ui.merge", mergeTool).
		Repository(repo).
		Args(bundle).
		Build()
	lines, err := c.run(ctx, inv, c.abortLast("unbundle"))
	if err != nil {
		return nil, err
	}
	return c.remoteResult(lines), nil
}

// Export writes rev as a git-style patch to output. hg expands format
// keys such as %R in output.
func (c *Client) Export(ctx context.Context, repo, rev, output string) ([]string, error) {
	if err := makeParent("export", output); err != nil {
		return nil, err
	}
	inv := c.cmd("export").Verbose().
		Flag("--git").
		Repository(repo).
		Option("-o", output).
		Args(optional(rev)...).
		Build()
	return c.run(ctx, inv, c.abortLast("export"))
}

// Import applies a patch file. With commit unset the changes are left in
// the working copy.
func (c *Client) Import(ctx context.Context, repo, patch string, commit bool) ([]string, error) {
	inv := c.cmd("import").Verbose().
		FlagIf(!commit, "--no-commit").
		Repository(repo).
		Cwd(repo).
		Args(patch).
		Build()
	return c.run(ctx, inv, c.abortLast("import"))
}

func makeParent(op, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return hgerr.New(hgerr.IOFailure, op, nil, fmt.Errorf("failed to create parent directory: %w", err))
	}
	return nil
}

// optional drops empty arguments.
func optional(args ...string) []string {
	var out []string
	for _, a := range args {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}
