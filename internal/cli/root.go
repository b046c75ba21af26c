// Package cli defines Cobra command definitions for the aiorch CLI.
// This file contains the root command, global flags, and help output.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	projectDir string
	userID     string
	verbose    bool
	version    = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "aiorch",
	Short: "Multi-provider chat orchestrator",
	Long: `aiorch answers chat messages by routing them through several text
generation providers. A planner writes a task specification, a generator
drafts the reply and a reviewer approves or revises it. Conversations are
kept per user and persisted under .aiorch/.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Verbose returns true if --verbose flag is set.
func Verbose() bool {
	return verbose
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "Project directory holding .aiorch/ (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Print orchestration details to stderr")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanCmd)
}

// resolveDir returns the --dir flag or the working directory.
func resolveDir() (string, error) {
	if projectDir != "" {
		return projectDir, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return dir, nil
}
