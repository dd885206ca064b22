package main

import (
	"github.com/spf13/cobra"
)

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ConvertFlags holds flags for the convert command.
type ConvertFlags struct {
	In  string
	Out string
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	var global GlobalFlags
	root := &cobra.Command{
		Use:           "roastd",
		Short:         "Coffee roast monitor: live BT/ET logging, RoR and roast file exchange",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&global.ConfigPath, "config", "", "path to config file (default configs/config.yml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), global)
		},
	}

	var conv ConvertFlags
	convert := &cobra.Command{
		Use:   "convert",
		Short: "Convert a roast file between formats (.csv, .json, .alog -> .csv, .xlsx, .json)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := runConvert(conv)
			if err != nil {
				return err
			}
			cmd.Printf("%s -> %s: %d samples, %d events, %d rows skipped\n",
				conv.In, conv.Out, sum.Samples, sum.Events, sum.Skipped)
			return nil
		},
	}
	convert.Flags().StringVar(&conv.In, "in", "", "input roast file")
	convert.Flags().StringVar(&conv.Out, "out", "", "output file; format follows the extension")
	_ = convert.MarkFlagRequired("in")
	_ = convert.MarkFlagRequired("out")

	root.AddCommand(serve, convert)
	return root
}
