package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sergeknystautas/hgrun/internal/hg"
)

// absAll resolves paths against the current directory. Names that cannot
// be resolved are passed through unchanged.
func absAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

func printRemote(w io.Writer, res *hg.RemoteResult) {
	printLines(w, res.Lines)
	switch {
	case res.NoChanges:
		fmt.Fprintln(w, "no changes")
	case res.NewHeads:
		fmt.Fprintln(w, "new heads: merge needed")
	case res.UpdateNeeded:
		fmt.Fprintln(w, "working copy needs an update")
	}
}

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func newPullCmd(a *app) *cobra.Command {
	var opts hg.PullOptions
	cmd := &cobra.Command{
		Use:   "pull [SOURCE]",
		Short: "Bring in changesets from a remote",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Source = argOrEmpty(args)
			res, err := a.client.Pull(cmd.Context(), a.repo, opts)
			if err != nil {
				return err
			}
			printRemote(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Rev, "rev", "r", "", "pull only this revision and its ancestors")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "pull only this branch")
	cmd.Flags().BoolVarP(&opts.Update, "update", "u", false, "update the working copy afterwards")
	return cmd
}

func newPushCmd(a *app) *cobra.Command {
	var opts hg.PushOptions
	cmd := &cobra.Command{
		Use:   "push [DEST]",
		Short: "Send changesets to a remote",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Dest = argOrEmpty(args)
			res, err := a.client.Push(cmd.Context(), a.repo, opts)
			if err != nil {
				return err
			}
			printRemote(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Rev, "rev", "r", "", "push only this revision and its ancestors")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "push only this branch")
	cmd.Flags().BoolVar(&opts.NewBranch, "new-branch", false, "allow creating new branches")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "push even when new remote heads would be created")
	return cmd
}

func newExchangeCmd(use, short string, run func(*cobra.Command, hg.ExchangeOptions) error) *cobra.Command {
	var opts hg.ExchangeOptions
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Remote = argOrEmpty(args)
			return run(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Rev, "rev", "r", "", "limit to this revision and its ancestors")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "limit to this branch")
	return cmd
}

func newIncomingCmd(a *app) *cobra.Command {
	cmd := newExchangeCmd("incoming [SOURCE]", "List changesets a pull would bring in",
		func(cmd *cobra.Command, opts hg.ExchangeOptions) error {
			opts.Bundle, _ = cmd.Flags().GetString("bundle")
			records, err := a.client.Incoming(cmd.Context(), a.repo, opts)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no changes")
			}
			printRecords(cmd.OutOrStdout(), records, false)
			return nil
		})
	cmd.Flags().String("bundle", "", "keep the incoming changesets in this file")
	return cmd
}

func newOutgoingCmd(a *app) *cobra.Command {
	return newExchangeCmd("outgoing [DEST]", "List changesets a push would send",
		func(cmd *cobra.Command, opts hg.ExchangeOptions) error {
			records, err := a.client.Outgoing(cmd.Context(), a.repo, opts)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no changes")
			}
			printRecords(cmd.OutOrStdout(), records, false)
			return nil
		})
}
