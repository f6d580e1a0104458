package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/uibot/internal/app"
	"github.com/ibeckermayer/uibot/internal/stock"
)

// errIncomplete is returned when a run finished without every step
// succeeding.
var errIncomplete = errors.New("run finished with failures")

func newAdobeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adobe",
		Short: "Adobe Stock contributor portal",
	}
	cmd.AddCommand(newUploadCmd(c), newMarkCmd(c), newSaveAuthCmd(c))
	return cmd
}

func newUploadCmd(c *cli) *cobra.Command {
	var (
		p             app.UploadParams
		debugger      string
		verifySeconds int
		csvSeconds    int
	)
	cmd := &cobra.Command{
		Use:   "upload <images_dir> [csv_path]",
		Short: "Upload a directory of images, apply metadata and mark the upload flags",
		Long: `Upload every image in images_dir to the contributor portal, apply the
metadata CSV when given and tick the AI-generated and fictional flags.

Without --do-release nothing is submitted for review.`,
		Args: argsBetween(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.ImagesDir = args[0]
			if err := requireDir(p.ImagesDir); err != nil {
				return err
			}
			if len(args) == 2 {
				p.CSVPath = args[1]
				if err := requireFile(p.CSVPath); err != nil {
					return err
				}
			}
			if verifySeconds < 0 || csvSeconds < 0 {
				return usagef("timeouts must not be negative")
			}
			p.VerifyTimeout = time.Duration(verifySeconds) * time.Second
			p.CSVTimeout = time.Duration(csvSeconds) * time.Second
			p.Headless = headlessFlag(cmd)
			if debugger != "" {
				c.app.Config().Browser.DebuggerAddress = debugger
			}

			res, err := c.app.UploadToAdobe(cmd.Context(), p)
			if res != nil {
				printResult(cmd, res)
			}
			if err != nil {
				return err
			}
			if !res.Success {
				return errIncomplete
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Bool("headless", false, "run the browser without a window")
	f.BoolVar(&p.DoRelease, "do-release", false, "submit the uploaded assets for review")
	f.StringVar(&p.AuthState, "auth-state", "", "storage-state file to restore and update")
	f.StringVar(&debugger, "debugger-address", "", "attach to a running Chrome at host:port instead of launching one")
	f.IntVar(&verifySeconds, "verify-timeout", 0, "seconds to wait for the uploads to appear (default from config)")
	f.IntVar(&csvSeconds, "csv-timeout", 0, "seconds to wait for the CSV to be applied (default from config)")
	f.StringVar(&p.ResultPath, "result", "", "where to write the result JSON")
	return cmd
}

func newMarkCmd(c *cli) *cobra.Command {
	var p app.MarkParams
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark the flags of images already on the uploads page",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.MaxImages < 0 {
				return usagef("--max-images must not be negative")
			}
			p.Headless = headlessFlag(cmd)
			res, err := c.app.MarkAdobe(cmd.Context(), p)
			if res != nil {
				printResult(cmd, res)
			}
			if err != nil {
				return err
			}
			if !res.Success {
				return errIncomplete
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&p.MaxImages, "max-images", 0, "mark at most this many images (0 marks all)")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	cmd.Flags().StringVar(&p.AuthState, "auth-state", "", "storage-state file to restore and update")
	cmd.Flags().StringVar(&p.ResultPath, "result", "", "where to write the result JSON")
	return cmd
}

func newSaveAuthCmd(c *cli) *cobra.Command {
	var (
		path string
		wait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "save-auth",
		Short: "Log in manually and save the session for later runs",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := c.app.SaveAdobeAuth(cmd.Context(), path, wait)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved session to", saved)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "auth-state", "", "where to save the session")
	cmd.Flags().DurationVar(&wait, "wait", 0, "how long to wait for the login (default from config)")
	return cmd
}

func printResult(cmd *cobra.Command, res *stock.Result) {
	w := cmd.OutOrStdout()
	status := "OK"
	if !res.Success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%s  run %s\n", status, res.RunID)
	fmt.Fprintf(w, "  images uploaded:   %d/%d\n", res.ImagesUploaded, res.ImagesTotal)
	fmt.Fprintf(w, "  metadata applied:  %t\n", res.MetadataApplied)
	fmt.Fprintf(w, "  checkboxes marked: %d\n", res.CheckboxesMarked)
	fmt.Fprintf(w, "  released:          %t\n", res.Released)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}
