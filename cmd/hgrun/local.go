package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sergeknystautas/hgrun/internal/hg"
	"github.com/sergeknystautas/hgrun/internal/parse"
)

const dateLayout = "2006-01-02"

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

func printRecords(w io.Writer, records []parse.ChangesetRecord, withFiles bool) {
	for _, r := range records {
		summary, _, _ := strings.Cut(r.Description, "\n")
		fmt.Fprintf(w, "%s:%s  %s  %s  %s\n", r.Revision, shortID(r.ID), r.Branch(), r.User, summary)
		if !withFiles {
			continue
		}
		for _, f := range r.Modified {
			fmt.Fprintf(w, "    M %s\n", f)
		}
		for _, f := range r.Added {
			fmt.Fprintf(w, "    A %s\n", f)
		}
		for _, f := range r.Deleted {
			fmt.Fprintf(w, "    R %s\n", f)
		}
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func newStatusCmd(a *app) *cobra.Command {
	var opts hg.StatusOptions
	cmd := &cobra.Command{
		Use:   "status [FILE...]",
		Short: "Show changed files in the working copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Files = args
			res, err := a.client.Status(cmd.Context(), a.repo, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range res.Entries {
				fmt.Fprintf(out, "%-10s %s", e.Status, e.Path)
				if e.Origin != "" {
					fmt.Fprintf(out, " (from %s)", e.Origin)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.RevFrom, "rev", "", "compare against this revision")
	cmd.Flags().StringVar(&opts.RevTo, "to", "", "second revision to compare")
	cmd.Flags().BoolVarP(&opts.Copies, "copies", "C", false, "show copy sources")
	cmd.Flags().BoolVarP(&opts.Clean, "clean", "c", false, "include clean files")
	cmd.Flags().BoolVarP(&opts.Ignored, "ignored", "i", false, "include ignored files")
	return cmd
}

func newLogCmd(a *app) *cobra.Command {
	var (
		opts         hg.LogOptions
		since, until string
	)
	cmd := &cobra.Command{
		Use:   "log [FILE...]",
		Short: "List changesets",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Since, err = parseDay(since); err != nil {
				return err
			}
			if opts.Until, err = parseDay(until); err != nil {
				return err
			}
			opts.Files = args
			records, err := a.client.Log(cmd.Context(), a.repo, opts)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), records, opts.WithFiles)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.From, "from", "", "first revision of the range")
	f.StringVar(&opts.To, "to", "", "last revision of the range")
	f.StringVar(&since, "since", "", "first day (YYYY-MM-DD)")
	f.StringVar(&until, "until", "", "last day (YYYY-MM-DD)")
	f.IntVarP(&opts.Limit, "limit", "l", 0, "show at most this many changesets")
	f.StringSliceVarP(&opts.Branches, "branch", "b", nil, "only these branches")
	f.BoolVarP(&opts.Follow, "follow", "f", false, "follow copies and renames")
	f.BoolVarP(&opts.NoMerges, "no-merges", "M", false, "skip merges")
	f.BoolVar(&opts.WithFiles, "files", false, "list changed files")
	f.BoolVar(&opts.Reverse, "reverse", false, "oldest first")
	return cmd
}

func newHeadsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "heads",
		Short: "List head revisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			heads, err := a.client.Heads(cmd.Context(), a.repo)
			if err != nil {
				return err
			}
			for _, h := range heads {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
}

func newBranchesCmd(a *app) *cobra.Command {
	var closed bool
	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List named branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			branches, err := a.client.Branches(cmd.Context(), a.repo, closed)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, b := range branches {
				state := ""
				switch {
				case b.Closed:
					state = "(closed)"
				case !b.Active:
					state = "(inactive)"
				}
				fmt.Fprintf(w, "%s\t%s:%s\t%s\n", b.Name, b.Changeset.Revision, shortID(b.Changeset.ID), state)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&closed, "closed", "c", false, "include closed branches")
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := a.client.Tags(cmd.Context(), a.repo)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range tags {
				local := ""
				if t.Local {
					local = "local"
				}
				fmt.Fprintf(w, "%s\t%s:%s\t%s\n", t.Name, t.Changeset.Revision, shortID(t.Changeset.ID), local)
			}
			return w.Flush()
		},
	}
}

func newQSeriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "qseries",
		Short: "List the patches of the active queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patches, err := a.client.QSeries(cmd.Context(), a.repo)
			if err != nil {
				return err
			}
			for _, p := range patches {
				mark := "U"
				if p.Applied {
					mark = "A"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s: %s\n", p.Index, mark, p.Name, p.Summary)
			}
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add FILE...",
		Short: "Track files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Add(cmd.Context(), a.repo, absAll(args))
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove FILE...",
		Short: "Stop tracking files and delete them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Remove(cmd.Context(), a.repo, absAll(args))
		},
	}
}

func newCommitCmd(a *app) *cobra.Command {
	var opts hg.CommitOptions
	cmd := &cobra.Command{
		Use:   "commit [FILE...]",
		Short: "Record changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Files = absAll(args)
			return a.client.Commit(cmd.Context(), a.repo, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "commit message")
	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "commit user")
	cmd.Flags().BoolVar(&opts.CloseBranch, "close-branch", false, "mark the branch closed")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var clean bool
	cmd := &cobra.Command{
		Use:   "update [REV]",
		Short: "Update the working copy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := ""
			if len(args) == 1 {
				rev = args[0]
			}
			lines, err := a.client.Update(cmd.Context(), a.repo, rev, clean)
			if err != nil {
				return err
			}
			printLines(cmd.OutOrStdout(), lines)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&clean, "clean", "C", false, "discard uncommitted changes")
	return cmd
}

func newMergeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge [REV]",
		Short: "Merge another head into the working copy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := ""
			if len(args) == 1 {
				rev = args[0]
			}
			res, err := a.client.Merge(cmd.Context(), a.repo, rev)
			if err != nil {
				return err
			}
			printLines(cmd.OutOrStdout(), res.Lines)
			if res.Conflicts {
				files, err := a.client.UnresolvedFiles(cmd.Context(), a.repo, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "unresolved: %s\n", strings.Join(files, ", "))
			}
			return nil
		},
	}
}

func printLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
