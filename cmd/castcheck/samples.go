package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/transcript"
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "List bundled sample transcripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := transcript.Samples()
		if err != nil {
			return err
		}
		for _, s := range samples {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", color.CyanString("%-16s", s.ID), s.Name)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "castcheck %s\n", consts.Version)
	},
}

func init() {
	rootCmd.AddCommand(samplesCmd)
	rootCmd.AddCommand(versionCmd)
}
