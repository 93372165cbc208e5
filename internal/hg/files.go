package hg

import (
	"context"

	"github.com/sergeknystautas/hgrun/internal/classify"
	"github.com/sergeknystautas/hgrun/internal/hgcmd"
	"github.com/sergeknystautas/hgrun/internal/parse"
)

// Add schedules files for addition. Long file lists are split across
// several invocations. Already tracked files are not an error.
func (c *Client) Add(ctx context.Context, repo string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	invs := c.cmd("add").Repository(repo).SplitFiles(repo, files, c.budget)
	_, err := c.runAll(ctx, repo, invs, func(lines []string) error {
		first := classify.First(lines)
		if len(lines) == 0 ||
			c.classifier.Is(first, classify.AlreadyTracked) ||
			c.classifier.Is(first, classify.Adding) ||
			c.classifier.Is(first, classify.PerformanceWarning) {
			return nil
		}
		return c.errorAt("add", lines, first)
	})
	return err
}

// Remove schedules files for removal, deleting them from the working copy.
func (c *Client) Remove(ctx context.Context, repo string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	invs := c.cmd("remove").Repository(repo).Flag("-f").SplitFiles(repo, files, c.budget)
	_, err := c.runAll(ctx, repo, invs, c.silent("remove"))
	return err
}

// Rename moves src to dst. With after set the move already happened on
// disk and is only recorded.
func (c *Client) Rename(ctx context.Context, repo, src, dst string, after bool) error {
	return c.copyOrRename(ctx, "rename", repo, src, dst, after)
}

// Copy copies src to dst. With after set the copy already exists and is
// only recorded.
func (c *Client) Copy(ctx context.Context, repo, src, dst string, after bool) error {
	return c.copyOrRename(ctx, "copy", repo, src, dst, after)
}

func (c *Client) copyOrRename(ctx context.Context, op, repo, src, dst string, after bool) error {
	inv := c.cmd(op).
		FlagIf(after, "-A").
		Repository(repo).
		Cwd(repo).
		Args(hgcmd.RelativeTo(repo, src), hgcmd.RelativeTo(repo, dst)).
		Build()
	_, err := c.run(ctx, inv, func(lines []string) error {
		last := classify.Last(lines)
		if !c.classifier.Is(last, classify.Abort) {
			return nil
		}
		if after && c.classifier.Is(last, classify.NoFilesToCopy) {
			return nil
		}
		return c.errorAt(op, lines, last)
	})
	return err
}

// Revert restores files to their state at rev, or at the working copy
// parent when rev is empty. Files that need no change are not an error.
func (c *Client) Revert(ctx context.Context, repo string, files []string, rev string, noBackup bool) error {
	if len(files) == 0 {
		return nil
	}
	invs := c.cmd("revert").
		FlagIf(noBackup, "--no-backup").
		Repository(repo).
		Rev(rev).
		SplitFiles(repo, files, c.budget)
	_, err := c.runAll(ctx, repo, invs, c.fatal("revert"))
	return err
}

// Purge deletes untracked files. With no files the whole working copy is
// purged. Files matching excludes are kept.
func (c *Client) Purge(ctx context.Context, repo string, files, excludes []string) error {
	b := c.cmd("purge").Extension("purge").Repository(repo)
	for _, x := range excludes {
		b.Option("--exclude", x)
	}
	invs := b.SplitFiles(repo, files, c.budget)
	_, err := c.runAll(ctx, repo, invs, c.silent("purge"))
	return err
}

// StatusOptions selects what Status reports.
type StatusOptions struct {
	// Files limits the report. Empty means the whole working copy.
	Files []string
	// RevFrom and RevTo compare two revisions instead of the working copy.
	RevFrom string
	RevTo   string
	// Copies adds copy sources.
	Copies  bool
	Clean   bool
	Ignored bool
}

// Status reports file states. Modified, added, removed, deleted and
// unknown files are always listed.
func (c *Client) Status(ctx context.Context, repo string, opts StatusOptions) (parse.StatusResult, error) {
	flags := "-mardu"
	if opts.Ignored {
		flags += "i"
	}
	if opts.Clean {
		flags += "c"
	}
	if opts.Copies {
		flags += "C"
	}
	b := c.cmd("status").
		Flag(flags).
		Repository(repo).
		Option("--rev", opts.RevFrom).
		Option("--rev", opts.RevTo)
	invs := b.SplitFiles(repo, opts.Files, c.budget)
	lines, err := c.runAll(ctx, repo, invs, func(lines []string) error {
		if c.classifier.FirstIs(lines, classify.NoRepository) {
			return classify.ErrorFor("status", lines, classify.NoRepository)
		}
		return nil
	})
	if err != nil {
		return parse.StatusResult{}, err
	}
	return parse.ParseStatus(lines, c.logger), nil
}

// UnresolvedFiles lists files left conflicted by a merge.
func (c *Client) UnresolvedFiles(ctx context.Context, repo string, files []string) ([]string, error) {
	invs := c.cmd("resolve").Flag("-l").Repository(repo).SplitFiles(repo, files, c.budget)
	lines, err := c.runAll(ctx, repo, invs, c.abortFirst("resolve"))
	if err != nil {
		return nil, err
	}
	return parse.ParseResolveList(lines), nil
}
