package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/metadata"
)

func newMetadataCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Create and clean up metadata CSV files",
	}
	cmd.AddCommand(newGenerateCmd(c), newNormalizeCmd())
	return cmd
}

func newGenerateCmd(c *cli) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "generate <images_dir> <out.csv>",
		Short: "Write titles, keywords and categories for a directory of images",
		Args:  argsBetween(2, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDir(args[0]); err != nil {
				return err
			}
			switch provider {
			case "", config.ProviderTemplate, config.ProviderAnthropic:
			default:
				return usagef("unknown provider %q", provider)
			}
			n, err := c.app.GenerateMetadata(cmd.Context(), args[0], args[1], provider)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", n, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "template or anthropic (default from config)")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "normalize <in.csv> [out.csv]",
		Short:       "Rewrite a metadata CSV in the column order and quoting the portal expects",
		Args:        argsBetween(1, 2),
		Annotations: map[string]string{noSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			if err := requireFile(in); err != nil {
				return err
			}
			out := in
			if len(args) == 2 {
				out = args[1]
			}
			n, err := metadata.Normalize(in, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", n, out)
			return nil
		},
	}
}
