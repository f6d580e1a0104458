package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	chrome "github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/config"
)

// openFile opens a path with the desktop's default handler.
var openFile = browser.OpenFile

const botTestURL = "https://bot.sannysoft.com"

func newOpenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|cache|results|last-result>",
		Short:     "Open the config file, cache directory, results directory or newest result",
		Args:      argsBetween(1, 1),
		ValidArgs: []string{"config", "cache", "results", "last-result"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				err  error
			)
			switch args[0] {
			case "config":
				path = c.configPath
				if path == "" {
					path, err = config.ConfigPath()
				}
				if err == nil {
					err = ensureConfig(path)
				}
			case "cache":
				path, err = config.CacheDir()
				if err == nil {
					err = os.MkdirAll(path, 0700)
				}
			case "results":
				path, err = c.app.ResultsDir()
				if err == nil {
					err = os.MkdirAll(path, 0700)
				}
			case "last-result":
				path, err = c.app.LatestResult()
			default:
				return usagef("unknown target %q", args[0])
			}
			if err != nil {
				return err
			}
			c.logger.Info("opening", zap.String("path", path))
			if err := openFile(path); err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			return nil
		},
	}
}

// ensureConfig writes the defaults to path unless a file is already there.
func ensureConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return config.Default().Save(path)
}

func newBotTestCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "bot-test",
		Short: "Open " + botTestURL + " with the automation browser to audit its fingerprint",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bcfg := chrome.ConfigFrom(c.cfg.Browser)
			bcfg.Headless = false

			s, err := chrome.Open(ctx, bcfg, c.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Navigate(ctx, botTestURL); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Press Enter to close the browser...")
			done := make(chan struct{})
			go func() {
				bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	}
}
