package hg

import (
	"context"

	"github.com/sergeknystautas/hgrun/internal/hgcmd"
	"github.com/sergeknystautas/hgrun/internal/parse"
)

// mq starts a patch queue command with the extension enabled.
func (c *Client) mq(subcommand, repo string) *hgcmd.Builder {
	return c.cmd(subcommand).Extension("mq").Repository(repo).Cwd(repo)
}

// QSeries lists the patches of the active queue. Applied patches carry
// their changeset.
func (c *Client) QSeries(ctx context.Context, repo string) ([]parse.PatchInfo, error) {
	inv := c.mq("qseries", repo).Verbose().Flag("--summary").Build()
	lines, err := c.run(ctx, inv, c.abortFirst("qseries"))
	if err != nil {
		return nil, err
	}
	patches := parse.ParsePatches(lines, nil, c.logger)
	applied := false
	for _, p := range patches {
		applied = applied || p.Applied
	}
	if !applied {
		return patches, nil
	}

	log := c.mq("log", repo).Rev("qbase:qtip").StyleTemplate(parse.LogTemplate(false)).Build()
	recLines, err := c.run(ctx, log, c.abortFirst("log"))
	if err != nil {
		return nil, err
	}
	return parse.ParsePatches(lines, parse.ParseLog(recLines, false), c.logger), nil
}

// QQueues lists the patch queues of repo.
func (c *Client) QQueues(ctx context.Context, repo string) ([]parse.QueueInfo, error) {
	inv := c.mq("qqueue", repo).Flag("--list").Build()
	lines, err := c.run(ctx, inv, c.abortFirst("qqueue"))
	if err != nil {
		return nil, err
	}
	return parse.ParseQueues(lines), nil
}

// QSwitchQueue makes name the active queue.
func (c *Client) QSwitchQueue(ctx context.Context, repo, name string) error {
	inv := c.mq("qqueue", repo).Args(name).Build()
	_, err := c.run(ctx, inv, c.abortFirst("qqueue"))
	return err
}

// QPush applies patches up to name, or all of them when name is empty.
func (c *Client) QPush(ctx context.Context, repo, name string) ([]string, error) {
	inv := c.mq("qpush", repo).Args(orAll(name)).Build()
	return c.run(ctx, inv, c.abortFirst("qpush"))
}

// QPop unapplies patches down to name, or all of them when name is empty.
func (c *Client) QPop(ctx context.Context, repo, name string) ([]string, error) {
	inv := c.mq("qpop", repo).Args(orAll(name)).Build()
	return c.run(ctx, inv, c.abortFirst("qpop"))
}

// QGoTo pushes or pops until name is the top patch.
func (c *Client) QGoTo(ctx context.Context, repo, name string) ([]string, error) {
	inv := c.mq("qgoto", repo).Args(name).Build()
	return c.run(ctx, inv, c.abortFirst("qgoto"))
}

// QFinish turns the applied patches up to name into regular changesets.
func (c *Client) QFinish(ctx context.Context, repo, name string) error {
	inv := c.mq("qfinish", repo).Args(name).Build()
	_, err := c.run(ctx, inv, c.abortFirst("qfinish"))
	return err
}

// PatchOptions describes the content of a new or refreshed patch.
type PatchOptions struct {
	// Name is required by QNew and ignored by QRefresh.
	Name    string
	Message string
	User    string
	// Files are included in the patch. QNew with no files creates an
	// empty patch.
	Files []string
	// Excludes are left out of a refreshed patch.
	Excludes []string
}

// QNew creates a patch on top of the applied ones.
func (c *Client) QNew(ctx context.Context, repo string, opts PatchOptions) error {
	return c.writePatch(ctx, "qnew", repo, opts)
}

// QRefresh updates the top patch.
func (c *Client) QRefresh(ctx context.Context, repo string, opts PatchOptions) error {
	opts.Name = ""
	return c.writePatch(ctx, "qrefresh", repo, opts)
}

func (c *Client) writePatch(ctx context.Context, op, repo string, opts PatchOptions) error {
	msgFile, cleanup, err := c.messageFile(op, opts.Message)
	if err != nil {
		return err
	}
	defer cleanup()

	b := c.mq(op, repo).
		Option("--user", c.commitUser(repo, opts.User)).
		Option("--logfile", msgFile)
	if op == "qrefresh" {
		b.Flag("--short")
		for _, x := range opts.Excludes {
			b.Option("--exclude", x)
		}
	} else {
		if len(opts.Files) == 0 {
			b.Option("--exclude", "*")
		}
		b.Args(opts.Name)
	}
	for _, f := range opts.Files {
		b.Args(hgcmd.RelativeTo(repo, f))
	}
	inv := b.Build()
	if err := c.guardLength(inv); err != nil {
		return err
	}
	_, err = c.run(ctx, inv, c.commitCheck(op))
	return err
}

func orAll(name string) string {
	if name == "" {
		return "--all"
	}
	return name
}
