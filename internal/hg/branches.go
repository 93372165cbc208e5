package hg

import (
	"context"

	"github.com/sergeknystautas/hgrun/internal/parse"
)

// Branch returns the branch name of the working copy.
func (c *Client) Branch(ctx context.Context, repo string) (string, error) {
	inv := c.cmd("branch").Repository(repo).Build()
	lines, err := c.run(ctx, inv, c.fatal("branch"))
	if err != nil {
		return "", err
	}
	return trimFirst(lines), nil
}

// SetBranch marks the working copy as belonging to branch name. Force
// allows reusing the name of an existing branch.
func (c *Client) SetBranch(ctx context.Context, repo, name string, force bool) error {
	inv := c.cmd("branch").FlagIf(force, "-f").Repository(repo).Args(name).Build()
	_, err := c.run(ctx, inv, c.fatal("branch"))
	return err
}

// Branches lists named branches with their head changesets. Closed
// branches are included when closed is set.
func (c *Client) Branches(ctx context.Context, repo string, closed bool) ([]parse.BranchInfo, error) {
	inv := c.cmd("branches").Verbose().FlagIf(closed, "-c").Repository(repo).Build()
	lines, err := c.run(ctx, inv, c.abortFirst("branches"))
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	heads := c.cmd("heads").FlagIf(closed, "-c").Repository(repo).StyleTemplate(parse.LogTemplate(false)).Build()
	headLines, err := c.run(ctx, heads, c.abortFirst("heads"))
	if err != nil {
		return nil, err
	}
	return parse.ParseBranches(lines, parse.ParseLog(headLines, false), c.logger), nil
}

// Tags lists tags with their changesets.
func (c *Client) Tags(ctx context.Context, repo string) ([]parse.TagInfo, error) {
	inv := c.cmd("tags").Verbose().Repository(repo).Build()
	lines, err := c.run(ctx, inv, c.abortFirst("tags"))
	if err != nil {
		return nil, err
	}
	revs := parse.TagRevisions(lines)
	if len(revs) == 0 {
		return nil, nil
	}

	b := c.cmd("log").Repository(repo)
	for _, r := range revs {
		b.Rev(r)
	}
	recLines, err := c.run(ctx, b.StyleTemplate(parse.LogTemplate(false)).Build(), c.abortFirst("log"))
	if err != nil {
		return nil, err
	}
	return parse.ParseTags(lines, parse.ParseLog(recLines, false), c.logger), nil
}

// TagOptions describes a tag to add or remove.
type TagOptions struct {
	Name string
	// Rev is the changeset to tag. Empty tags the working copy parent.
	Rev string
	// Message is the commit message of a global tag.
	Message string
	// Local keeps the tag out of version control.
	Local  bool
	Remove bool
}

// Tag adds or removes a tag. Global tags are committed.
func (c *Client) Tag(ctx context.Context, repo string, opts TagOptions) error {
	b := c.cmd("tag").Repository(repo)
	if opts.Local {
		b.Flag("--local")
	} else {
		b.Option("--message", opts.Message)
	}
	if opts.Remove {
		b.Flag("--remove")
	} else {
		b.Option("--rev", opts.Rev)
	}
	_, err := c.run(ctx, b.Args(opts.Name).Build(), c.fatal("tag"))
	return err
}
