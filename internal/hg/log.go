package hg

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sergeknystautas/hgrun/internal/classify"
	"github.com/sergeknystautas/hgrun/internal/hgcmd"
	"github.com/sergeknystautas/hgrun/internal/hgerr"
	"github.com/sergeknystautas/hgrun/internal/parse"
)

// LogOptions selects the changesets listed by Log.
type LogOptions struct {
	// Files limits the history to these paths.
	Files []string
	// From and To bound a revision range. "tip" and "HEAD" name the head.
	From string
	To   string
	// Since and Until bound a date range. A date range replaces From/To.
	Since time.Time
	Until time.Time
	// Branches limits the history to these named branches.
	Branches []string
	Limit    int
	// Follow follows copies and renames when every file is a regular file.
	Follow   bool
	NoMerges bool
	// WithFiles adds the modified, added, deleted and copied file lists.
	WithFiles bool
	// Reverse returns the oldest changeset first.
	Reverse bool
}

func (o LogOptions) dated() bool {
	return !o.Since.IsZero() || !o.Until.IsZero()
}

// Log lists changesets. A revision range is first tried as given; when hg
// does not know one of its ends the range is rebuilt against the head
// revision and tried once more. A range starting past the head is empty.
func (c *Client) Log(ctx context.Context, repo string, opts LogOptions) ([]parse.ChangesetRecord, error) {
	if opts.dated() {
		spec, ok := parse.DateRange(opts.Since, opts.Until, c.now())
		if !ok {
			return nil, nil
		}
		lines, err := c.run(ctx, c.logInvocation(repo, opts, "--date", spec), c.logCheck)
		if err != nil {
			return nil, err
		}
		return parse.ParseLog(lines, opts.Reverse), nil
	}

	rng, _ := parse.RevRange(opts.From, opts.To, -1)
	lines, err := c.run(ctx, c.logInvocation(repo, opts, "--rev", rng), c.logCheck)
	if err != nil {
		return nil, err
	}
	if !c.classifier.Any(lines, classify.UnknownRevision) {
		return parse.ParseLog(lines, opts.Reverse), nil
	}

	tip, err := c.Tip(ctx, repo)
	if err != nil {
		return nil, err
	}
	head := tip.RevisionNumber()
	if head < 0 {
		return nil, nil
	}
	rng, ok := parse.RevRange(opts.From, opts.To, head)
	if !ok {
		c.logger.Debug("range starts past head", zap.String("from", opts.From), zap.Int("head", head))
		return nil, nil
	}
	lines, err = c.run(ctx, c.logInvocation(repo, opts, "--rev", rng), c.logCheck)
	if err != nil {
		return nil, err
	}
	if c.classifier.Any(lines, classify.UnknownRevision) {
		return nil, classify.ErrorFor("log", lines, classify.UnknownRevision)
	}
	return parse.ParseLog(lines, opts.Reverse), nil
}

func (c *Client) logInvocation(repo string, opts LogOptions, rangeFlag, rangeValue string) *hgcmd.Invocation {
	b := c.cmd("log").Verbose().
		Limit(opts.Limit).
		FlagIf(opts.Follow && followable(opts.Files), "--follow").
		FlagIf(opts.NoMerges, "-M").
		Repository(repo).
		Option(rangeFlag, rangeValue)
	for _, br := range opts.Branches {
		b.Branch(br)
	}
	return b.StyleTemplate(parse.LogTemplate(opts.WithFiles)).Args(opts.Files...).Build()
}

// logCheck fails on a missing repository and on aborts other than the
// ones Log handles itself. Following a file that does not exist in the
// parent only means there is no history to show.
func (c *Client) logCheck(lines []string) error {
	if c.classifier.FirstIs(lines, classify.NoRepository) {
		return classify.ErrorFor("log", lines, classify.NoRepository)
	}
	for _, l := range []string{classify.First(lines), classify.Last(lines)} {
		if !c.classifier.Is(l, classify.Abort) ||
			c.classifier.Is(l, classify.UnknownRevision) ||
			c.classifier.Is(l, classify.FollowNonexistentFile) {
			continue
		}
		return c.errorAt("log", lines, l)
	}
	return nil
}

// followable reports whether --follow may be used: it needs at least one
// file and no directories.
func followable(files []string) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && info.IsDir() {
			return false
		}
	}
	return true
}

// Tip returns the most recent changeset.
func (c *Client) Tip(ctx context.Context, repo string) (*parse.ChangesetRecord, error) {
	inv := c.cmd("tip").Repository(repo).StyleTemplate(parse.LogTemplate(false)).Build()
	lines, err := c.run(ctx, inv, c.fatal("tip"))
	if err != nil {
		return nil, err
	}
	recs := parse.ParseLog(lines, false)
	if len(recs) == 0 {
		return nil, &hgerr.Error{Kind: hgerr.CommandFailed, Op: "tip", Reason: "no changeset in output", Output: lines}
	}
	return &recs[0], nil
}

// Parents returns the parents of the working copy, or of rev when set.
// With file set, the parents of that file's revision are returned.
func (c *Client) Parents(ctx context.Context, repo, rev, file string) ([]parse.ChangesetRecord, error) {
	inv := c.cmd("parents").
		Repository(repo).
		Rev(rev).
		StyleTemplate(parse.LogTemplate(false)).
		Args(optional(file)...).
		Build()
	lines, err := c.run(ctx, inv, c.fatal("parents"))
	if err != nil {
		return nil, err
	}
	return parse.ParseLog(lines, false), nil
}

// Heads returns the revision numbers of the repository heads, in
// topological order when the engine supports it.
func (c *Client) Heads(ctx context.Context, repo string) ([]string, error) {
	topo := c.supports(ctx, topoVersion)
	build := func(topo bool) *hgcmd.Invocation {
		return c.cmd("heads").FlagIf(topo, "--topo").Repository(repo).Template(`{rev}\n`).Build()
	}
	lines, err := c.run(ctx, build(topo), nil)
	if err != nil {
		return nil, err
	}
	if topo && c.classifier.FirstIs(lines, classify.OptionNotRecognized) {
		c.logger.Debug("engine does not know heads --topo")
		lines, err = c.run(ctx, build(false), nil)
		if err != nil {
			return nil, err
		}
	}
	if err := c.fatal("heads")(lines); err != nil {
		return nil, err
	}
	return parse.ParseHeads(lines), nil
}

// Cat writes file as of rev to output. found is false when the file does
// not exist in that revision.
func (c *Client) Cat(ctx context.Context, repo, file, rev, output string) (found bool, err error) {
	inv := c.cmd("cat").
		Repository(repo).
		Option("--output", output).
		Rev(rev).
		Args(file).
		Build()
	lines, err := c.run(ctx, inv, nil)
	if err != nil {
		return false, err
	}
	first := classify.First(lines)
	switch {
	case c.classifier.Is(first, classify.NoSuchFile), c.classifier.Is(first, classify.NotFoundInManifest):
		return false, nil
	case c.classifier.Is(first, classify.NoRepository), c.classifier.Is(first, classify.Abort):
		return false, c.errorAt("cat", lines, first)
	}
	return true, nil
}

// Annotate returns the annotated lines of file as of rev: revision, user
// and line number precede each line of text. A file missing from rev has
// no lines.
func (c *Client) Annotate(ctx context.Context, repo, file, rev string) ([]string, error) {
	inv := c.cmd("annotate").
		Repository(repo).
		Rev(rev).
		Flag("--number").
		Flag("--user").
		Flag("--line-number").
		Flag("--follow").
		Args(file).
		Build()
	lines, err := c.run(ctx, inv, nil)
	if err != nil {
		return nil, err
	}
	if c.classifier.FirstIs(lines, classify.NoSuchFile) {
		return nil, nil
	}
	if err := c.abortFirst("annotate")(lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// Diff returns a git-style diff of files between rev and the working copy.
func (c *Client) Diff(ctx context.Context, repo string, files []string, rev string) ([]string, error) {
	b := c.cmd("diff").Flag("--git").Repository(repo).Rev(rev)
	invs := b.SplitFiles(repo, files, c.budget)
	return c.runAll(ctx, repo, invs, c.abortFirst("diff"))
}

// ChangedFiles lists the files that differ between two revisions. An
// empty rev stands for the working copy.
func (c *Client) ChangedFiles(ctx context.Context, repo, fromRev, toRev string) ([]string, error) {
	inv := c.cmd("diff").
		Flag("--stat").
		Repository(repo).
		Rev(fromRev).
		Rev(toRev).
		Build()
	lines, err := c.run(ctx, inv, c.abortFirst("diff"))
	if err != nil {
		return nil, err
	}
	return parse.ParseChangedFiles(lines), nil
}

// trimFirst returns the first line without surrounding spaces.
func trimFirst(lines []string) string {
	return strings.TrimSpace(classify.First(lines))
}
