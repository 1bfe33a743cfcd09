package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "groupclip",
	Short: "Share clipboard content and contract addresses with your group",
	Long: `groupclip runs a local daemon that watches the clipboard for
cryptocurrency contract addresses, shares detected addresses and explicit
clips with your collaboration group, and mirrors what the group shares
back to you.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(activitiesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(clipboardCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(diagCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
