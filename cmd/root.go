// Package cmd provides the command-line interface for gfl.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/danielolaszy/gfl/internal/config"
	"github.com/danielolaszy/gfl/internal/logging"
)

var (
	cfgFile  string
	verbose  bool
	cfg      *config.Config
	closeLog func() error
)

var rootCmd = &cobra.Command{
	Use:   "gfl",
	Short: "gfl keeps JIRA issues and git branches in step",
	Long: `gfl is a command line assistant for working on JIRA issues from a git
repository. It caches the issues you work on, moves them through your
project's workflow on JIRA, and creates, commits and pushes the matching
git branches.

Set up a workspace once:
  gfl credentials add
  gfl instances add
  gfl workflows add
  gfl projects add
  gfl init

Then work:
  gfl workon PRJ-12 -k
  gfl commit "fix parser"
  gfl review
  gfl resolve
  gfl finish`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/gfl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also write logs to stderr")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	closer, err := logging.Setup(cfg.DataDir, logging.ParseLevel(cfg.LogLevel), verbose)
	if err != nil {
		return err
	}
	closeLog = closer

	logging.Debug("command started", "command", cmd.CommandPath(), "args", args)
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	logging.Debug("command finished", "command", cmd.CommandPath())
	if closeLog == nil {
		return nil
	}
	return closeLog()
}
