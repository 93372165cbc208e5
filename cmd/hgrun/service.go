package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sergeknystautas/hgrun/internal/config"
	"github.com/sergeknystautas/hgrun/internal/credentials"
	"github.com/sergeknystautas/hgrun/internal/events"
	"github.com/sergeknystautas/hgrun/internal/history"
	"github.com/sergeknystautas/hgrun/internal/notify"
	"github.com/sergeknystautas/hgrun/internal/version"
	"github.com/sergeknystautas/hgrun/internal/watch"
	"github.com/sergeknystautas/hgrun/pkg/cli"
)

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd(a *app) *cobra.Command {
	var short, asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the hgrun and hg versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintf(out, "hgrun %s\n", version.Version)
				return err
			}
			engine := "unknown"
			if v, err := a.client.Version(cmd.Context()); err == nil {
				engine = v.String()
			} else {
				a.logger.Debug("could not read the hg version", zap.Error(err))
			}
			if asJSON {
				return encodeJSON(out, map[string]any{
					"version": version.Version,
					"hg":      engine,
					"go":      runtime.Version(),
					"go_os":   runtime.GOOS,
					"go_arch": runtime.GOARCH,
				})
			}
			_, err := fmt.Fprintf(out, "hgrun %s (hg %s)\n", version.Version, engine)
			return err
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the hgrun version")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version details as JSON")
	return cmd
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the hgrun config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !force {
				if flags.batch || !credentials.Interactive() {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				overwrite := false
				form := huh.NewForm(
					huh.NewGroup(
						huh.NewConfirm().
							Title(fmt.Sprintf("%s already exists. Overwrite it?", path)).
							Value(&overwrite),
					),
				)
				err := form.RunWithContext(cmd.Context())
				if err != nil && !errors.Is(err, huh.ErrUserAborted) {
					return err
				}
				if !overwrite {
					return nil
				}
			}
			if err := config.CreateDefault(path).Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	pathCmd := &cobra.Command{
		Use:         "path",
		Short:       "Print the config file location",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.AddCommand(initCmd, pathCmd)
	return cmd
}

// newWatchCmd watches the working copy and serves notifications and
// history to other processes until interrupted.
func newWatchCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "watch [REPO...]",
		Short: "Publish working-copy changes and command history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.cfg.GetEventsListen()
			}
			ctx := cmd.Context()

			logChanges := notify.Func(func(repo string) {
				a.logger.Info("working copy changed", zap.String("repo", repo))
			})
			w, err := watch.New(notify.Multi{a.broadcaster, logChanges}, a.cfg.GetWatchDebounce(), a.logger)
			if err != nil {
				return err
			}
			repos := args
			if len(repos) == 0 {
				repos = []string{a.repo}
			}
			for _, repo := range absAll(repos) {
				if err := w.Add(repo); err != nil {
					w.Stop()
					return err
				}
			}
			if !a.cfg.WatchEnabled() {
				a.logger.Info("watch.enabled is off in the config; watching because the command asked for it")
			}
			w.Start()
			defer w.Stop()

			var hist events.HistoryReader
			if a.history != nil {
				hist = a.history
			}
			server := events.New(a.broadcaster, hist, a.logger)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.ListenAndServe(ctx, listen)
			})
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s; serving on %s\n", strings.Join(w.Watched(), ", "), cli.URLFor(listen))
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address for the events server (default from config)")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		all    bool
		follow bool
		remote bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent hg invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := a.repo
			if all {
				repo = ""
			}
			out := cmd.OutOrStdout()
			client := cli.NewEventsClient(cli.URLFor(a.cfg.GetEventsListen()))

			if follow {
				if !client.IsRunning() {
					return fmt.Errorf("no watcher is serving on %s (start one with 'hgrun watch')", a.cfg.GetEventsListen())
				}
				return client.Follow(cmd.Context(), repo, func(ev cli.Event) {
					fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.TimeOnly), ev.Type, ev.Repo)
				})
			}

			if a.history != nil && !remote {
				entries, err := a.history.Recent(cmd.Context(), repo, limit)
				if err != nil {
					return err
				}
				return printHistory(out, entries)
			}
			items, err := client.History(cmd.Context(), repo, limit)
			if err != nil {
				return err
			}
			entries := make([]history.Entry, 0, len(items))
			for _, it := range items {
				entries = append(entries, history.Entry{
					ID:         it.ID,
					Repo:       it.Repo,
					Subcommand: it.Subcommand,
					Args:       it.Args,
					ExitCode:   it.ExitCode,
					ErrorKind:  it.ErrorKind,
					Duration:   time.Duration(it.DurationMs) * time.Millisecond,
					StartedAt:  it.StartedAt,
				})
			}
			return printHistory(out, entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of invocations to show")
	cmd.Flags().BoolVar(&all, "all", false, "include every repository")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream working-copy changes from a running watcher")
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the running watcher instead of the local database")

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.history == nil {
				return errors.New("history is disabled in the config")
			}
			n, err := a.history.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d invocations\n", n)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete invocations older than this")
	cmd.AddCommand(pruneCmd)
	return cmd
}

func printHistory(w io.Writer, entries []history.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		result := "ok"
		if e.ErrorKind != "" {
			result = e.ErrorKind
		} else if e.ExitCode != 0 {
			result = fmt.Sprintf("exit %d", e.ExitCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.Repo, strings.Join(e.Args, " "), e.Duration.Round(time.Millisecond), result)
	}
	return tw.Flush()
}
