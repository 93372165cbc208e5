package hg

import (
	"context"

	"github.com/sergeknystautas/hgrun/internal/classify"
	"github.com/sergeknystautas/hgrun/internal/hgerr"
)

// mergeEditor accepts the default message of merge commits hg creates on
// its own.
const mergeEditor = "success || $TEST -s"

// MergeResult is the outcome of a merge that ran to completion.
type MergeResult struct {
	Lines []string
	// Conflicts is set when some files were left with conflict markers.
	Conflicts bool
}

// Merge merges rev, or the other head when rev is empty, into the working
// copy. Conflicts are reported in the result, not as an error.
func (c *Client) Merge(ctx context.Context, repo, rev string) (*MergeResult, error) {
	inv := c.cmd("merge").
		Flag("-f").
		Repository(repo).
		Config("ui.merge", mergeTool).
		Env("EDITOR", mergeEditor).
		Args(optional(rev)...).
		Build()
	lines, err := c.run(ctx, inv, c.abortLast("merge"))
	if err != nil {
		return nil, err
	}
	return &MergeResult{Lines: lines, Conflicts: c.classifier.Any(lines, classify.MergeConflict)}, nil
}

// Update moves the working copy to rev, or to the branch head when rev is
// empty. Clean discards local changes.
func (c *Client) Update(ctx context.Context, repo, rev string, clean bool) ([]string, error) {
	inv := c.cmd("update").Verbose().
		FlagIf(clean, "-C").
		Config("ui.merge", mergeTool).
		Repository(repo).
		Args(optional(rev)...).
		Build()
	return c.run(ctx, inv, func(lines []string) error {
		first := classify.First(lines)
		switch {
		case c.classifier.Is(first, classify.UpdateCrossesBranches):
			return classify.ErrorFor("update", lines, classify.UpdateCrossesBranches)
		case c.classifier.Is(first, classify.MergeInProgress):
			return classify.ErrorFor("update", lines, classify.MergeInProgress)
		}
		return c.abortLast("update")(lines)
	})
}

// Backout commits a change that undoes rev. With merge set the backout is
// merged into the working copy right away.
func (c *Client) Backout(ctx context.Context, repo, rev string, merge bool, message string) ([]string, error) {
	if message == "" {
		message = "Backed out changeset " + rev
	}
	b := c.cmd("backout").FlagIf(merge, "--merge")
	if merge {
		b.Env("EDITOR", mergeEditor)
	}
	inv := b.Option("-m", message).Repository(repo).Rev(rev).Build()
	return c.run(ctx, inv, nonEmpty("backout", c.abortLast("backout")))
}

// Rollback undoes the last transaction. It reports false when there was
// nothing to roll back.
func (c *Client) Rollback(ctx context.Context, repo string) (bool, error) {
	inv := c.cmd("rollback").Repository(repo).Build()
	lines, err := c.exec(ctx, inv)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, &hgerr.Error{Kind: hgerr.CommandFailed, Op: "rollback", Reason: "no output"}
	}
	if c.classifier.Any(lines, classify.NoRollback) {
		return false, nil
	}
	if err := c.fatal("rollback")(lines); err != nil {
		return false, err
	}
	c.changed(repo)
	return true, nil
}

// Strip removes rev and its descendants. Unless backup is set no backup
// bundle is kept.
func (c *Client) Strip(ctx context.Context, repo, rev string, backup bool) ([]string, error) {
	inv := c.cmd("strip").
		Extension("mq").
		Flag("-f").
		FlagIf(!backup, "-n").
		Verbose().
		Repository(repo).
		Args(rev).
		Build()
	chk := c.abortLast("strip")
	if backup {
		chk = nonEmpty("strip", chk)
	}
	return c.run(ctx, inv, chk)
}
