package hg

import (
	"context"
	"fmt"
	"os"

	"github.com/sergeknystautas/hgrun/internal/classify"
	"github.com/sergeknystautas/hgrun/internal/credentials"
	"github.com/sergeknystautas/hgrun/internal/hgcmd"
	"github.com/sergeknystautas/hgrun/internal/hgerr"
)

// DefaultCommitMessage is used when a commit has no message.
const DefaultCommitMessage = "[no commit message]"

// CommitOptions describes one commit.
type CommitOptions struct {
	// Files limits the commit. Empty commits every change.
	Files   []string
	Message string
	// User overrides the repository and configured user names.
	User        string
	CloseBranch bool
}

// Commit records changes in repo. The message is passed through a
// temporary file so that it survives any quoting. A command line over the
// budget fails with ArgumentListTooLong before anything runs.
func (c *Client) Commit(ctx context.Context, repo string, opts CommitOptions) error {
	msgFile, cleanup, err := c.messageFile("commit", opts.Message)
	if err != nil {
		return err
	}
	defer cleanup()

	b := c.cmd("commit").
		Repository(repo).
		Cwd(repo).
		Option("--user", c.commitUser(repo, opts.User)).
		FlagIf(opts.CloseBranch, "--close-branch").
		Option("--logfile", msgFile)
	for _, f := range opts.Files {
		b.Args(hgcmd.RelativeTo(repo, f))
	}
	inv := b.Build()
	if err := c.guardLength(inv); err != nil {
		return err
	}

	_, err = c.run(ctx, inv, c.commitCheck("commit"))
	return err
}

func (c *Client) commitCheck(op string) check {
	return func(lines []string) error {
		if len(lines) == 0 {
			return nil
		}
		if c.classifier.LastIs(lines, classify.CommitAfterMerge) {
			return classify.ErrorFor(op, lines, classify.CommitAfterMerge)
		}
		first, last := classify.First(lines), classify.Last(lines)
		switch {
		case c.classifier.Is(first, classify.NotTracked):
			return classify.ErrorFor(op, lines, classify.NotTracked)
		case c.classifier.Is(first, classify.CannotReadCommitMsg):
			return classify.ErrorFor(op, lines, classify.CannotReadCommitMsg)
		case c.classifier.Is(last, classify.Abort):
			return c.errorAt(op, lines, last)
		case c.classifier.Is(first, classify.Abort):
			return c.errorAt(op, lines, first)
		}
		return nil
	}
}

// commitUser picks the explicit user, then ui.username of the repository
// hgrc, then the configured user name. Empty leaves it to hg.
func (c *Client) commitUser(repo, user string) string {
	if user != "" {
		return user
	}
	if u, ok := credentials.RepoValue(repo, "ui", "username"); ok && u != "" {
		return u
	}
	return c.username
}

// messageFile writes msg to a hgcommit*.hgm file. cleanup removes it.
func (c *Client) messageFile(op, msg string) (string, func(), error) {
	if msg == "" {
		msg = DefaultCommitMessage
	}
	f, err := os.CreateTemp(c.tmpDir, "hgcommit*.hgm")
	if err != nil {
		return "", func() {}, hgerr.New(hgerr.IOFailure, op, nil, fmt.Errorf("failed to create message file: %w", err))
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := f.WriteString(msg); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, hgerr.New(hgerr.IOFailure, op, nil, fmt.Errorf("failed to write message file: %w", err))
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, hgerr.New(hgerr.IOFailure, op, nil, fmt.Errorf("failed to write message file: %w", err))
	}
	return f.Name(), cleanup, nil
}

// guardLength rejects invocations that cannot be split and exceed the
// command line budget.
func (c *Client) guardLength(inv *hgcmd.Invocation) error {
	if n := inv.Length(); n > c.budget {
		return &hgerr.Error{
			Kind:   hgerr.ArgumentListTooLong,
			Op:     inv.Subcommand(),
			Reason: fmt.Sprintf("%d bytes exceed the budget of %d, %d arguments", n, c.budget, len(inv.Args())),
		}
	}
	return nil
}
