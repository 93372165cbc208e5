package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sergeknystautas/hgrun/internal/config"
	"github.com/sergeknystautas/hgrun/internal/credentials"
	"github.com/sergeknystautas/hgrun/internal/hg"
	"github.com/sergeknystautas/hgrun/internal/hgcmd"
	"github.com/sergeknystautas/hgrun/internal/history"
	"github.com/sergeknystautas/hgrun/internal/logging"
	"github.com/sergeknystautas/hgrun/internal/notify"
	"github.com/sergeknystautas/hgrun/internal/runner"
)

// rootOptions replaces parts of the wiring. Zero values use the real thing.
type rootOptions struct {
	runner   runner.Runner
	store    credentials.Store
	prompter credentials.Prompter
	logger   *zap.Logger
}

type globalFlags struct {
	configPath string
	repo       string
	batch      bool
	verbose    bool
}

// app holds what a command needs once flags and config are resolved.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	client      *hg.Client
	history     *history.Store
	broadcaster *notify.Broadcaster
	repo        string
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("failed to close history", zap.Error(err))
		}
	}
	a.logger.Sync()
}

func newRootCmd(opts rootOptions) *cobra.Command {
	flags := &globalFlags{}
	a := &app{}

	cmd := &cobra.Command{
		Use:   "hgrun",
		Short: "Run Mercurial commands and interpret their output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationNoApp] != "" {
				return nil
			}
			return a.setup(flags, opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.hgrun/config.yaml)")
	pf.StringVarP(&flags.repo, "repo", "R", "", "repository root or any path inside it (default: current directory)")
	pf.BoolVar(&flags.batch, "batch", false, "never prompt for credentials")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		newVersionCmd(a),
		newConfigCmd(flags),
		newStatusCmd(a),
		newLogCmd(a),
		newHeadsCmd(a),
		newBranchesCmd(a),
		newTagsCmd(a),
		newQSeriesCmd(a),
		newAddCmd(a),
		newRemoveCmd(a),
		newCommitCmd(a),
		newUpdateCmd(a),
		newMergeCmd(a),
		newPullCmd(a),
		newPushCmd(a),
		newIncomingCmd(a),
		newOutgoingCmd(a),
		newWatchCmd(a),
		newHistoryCmd(a),
	)
	return cmd
}

// annotationNoApp marks commands that run without the hg client.
const annotationNoApp = "hgrun/no-app"

func (a *app) setup(flags *globalFlags, opts rootOptions) error {
	path := flags.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	logger := opts.logger
	if logger == nil {
		level := cfg.GetLogLevel()
		if flags.verbose {
			level = "debug"
		}
		logger, err = logging.New(level)
		if err != nil {
			return err
		}
	}
	a.logger = logger

	start := flags.repo
	if start == "" {
		if start, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	if root, err := hg.RepoRoot(start); err == nil {
		a.repo = root
	} else {
		// clone and version work outside a repository
		a.repo = start
		logger.Debug("not inside a repository", zap.String("path", start))
	}

	if p := cfg.GetHistoryPath(); p != "" {
		store, err := history.Open(p)
		if err != nil {
			logger.Warn("history disabled", zap.String("path", p), zap.Error(err))
		} else {
			a.history = store
		}
	}

	r := opts.runner
	if r == nil {
		r = runner.NewExecRunner(runner.StaticResolver(cfg.GetExecutable()), logger)
	}
	store := opts.store
	if store == nil {
		store = credentials.NewKeyringStore()
	}
	batch := flags.batch || cfg.IsBatch()
	prompter := opts.prompter
	if prompter == nil && !batch && credentials.Interactive() {
		prompter = credentials.HuhPrompter{}
	}

	a.broadcaster = notify.NewBroadcaster(64)
	hopts := hg.Options{
		Runner: r,
		Defaults: hgcmd.Defaults{
			Encoding: cfg.GetEncoding(),
			Proxy:    cfg.GetProxy(),
		},
		Store:          store,
		Prompter:       prompter,
		Batch:          batch,
		Notifier:       a.broadcaster,
		Logger:         logger,
		ActiveRepo:     a.repo,
		MaxCommandLine: cfg.GetMaxCommandLine(),
		Username:       cfg.GetUsername(),
		CommandTimeout: cfg.GetCommandTimeout(),
		RemoteTimeout:  cfg.GetRemoteTimeout(),
		ProxyHandler: func(err error) {
			logger.Warn("the remote could not be resolved; check the proxy settings", zap.String("proxy", cfg.GetProxy()))
		},
		UserFetch: cfg.UsesUserFetch(),
	}
	if a.history != nil {
		hopts.History = a.history
	}
	a.client = hg.New(hopts)
	return nil
}
