package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/app"
	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/logging"
	"github.com/ibeckermayer/uibot/internal/notifier"
	"github.com/ibeckermayer/uibot/internal/store"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks invalid arguments. It maps to exitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// cli carries what the subcommands share. It is filled in by the root
// command's PersistentPreRunE.
type cli struct {
	configPath string
	logLevel   string
	envFile    string

	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	app    *app.App

	// extra options for app.New, used by tests
	appOpts []app.Option
}

// noSetup marks commands that run without config, store or app.
const noSetup = "no-setup"

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "uibot",
		Short:         "Browser automation for Adobe Stock uploads and Tinder sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[noSetup] == "true" {
				return nil
			}
			return c.setup()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default is the user config dir)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "file with credentials in KEY=value form")

	root.AddCommand(
		newAdobeCmd(c),
		newMetadataCmd(c),
		newTinderCmd(c),
		newOpenCmd(c),
		newBotTestCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", c.envFile, err)
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if c.logLevel != "" {
		cfg.Logger.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg
	c.logger = logging.Initialize(cfg.Logger)

	dbPath, err := cfg.StorePath()
	if err != nil {
		return err
	}
	c.store, err = store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	opts := []app.Option{app.WithStore(c.store)}
	if cfg.Email.ToAddr != "" {
		n, err := notifier.NewFromConfig(cfg.Email, c.logger)
		if err != nil {
			return fmt.Errorf("email: %w", err)
		}
		opts = append(opts, app.WithNotifier(n))
	}
	c.app, err = app.New(cfg, c.logger, append(opts, c.appOpts...)...)
	return err
}

func (c *cli) close() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	logging.Sync()
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, opts ...app.Option) int {
	c := &cli{appOpts: opts}
	root := newRootCmd(c)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	defer c.close()
	return exitCode(c.logger, err)
}

func exitCode(logger *zap.Logger, err error) int {
	if err == nil {
		return exitOK
	}
	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintln(os.Stderr, "Error:", err)
		fmt.Fprintln(os.Stderr, "Run 'uibot --help' for usage.")
		return exitUsage
	}
	if logger != nil {
		logger.Error("command failed", zap.Error(err))
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitFailure
}

// argsBetween is cobra.RangeArgs returning a usageError.
func argsBetween(lo, hi int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(lo, hi)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func requireDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return usagef("directory %s: %v", path, err)
	}
	if !fi.IsDir() {
		return usagef("%s is not a directory", path)
	}
	return nil
}

func requireFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return usagef("file %s: %v", path, err)
	}
	if fi.IsDir() {
		return usagef("%s is a directory", path)
	}
	return nil
}

// headlessFlag returns a pointer only when the flag was given, leaving the
// configured value otherwise.
func headlessFlag(cmd *cobra.Command) *bool {
	if !cmd.Flags().Changed("headless") {
		return nil
	}
	v, _ := cmd.Flags().GetBool("headless")
	return &v
}
