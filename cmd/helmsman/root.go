package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckClaudeCLI verifies that the 'claude' CLI is available in PATH.
// Returns an error with installation instructions if not found.
func CheckClaudeCLI() error {
	_, err := exec.LookPath("claude")
	if err != nil {
		return fmt.Errorf("claude CLI not found in PATH\n\n" +
			"Helmsman drives the Claude Code CLI as its coding agent.\n\n" +
			"Install it with:\n" +
			"  npm install -g @anthropic-ai/claude-code\n\n" +
			"For more information, visit:\n" +
			"  https://docs.anthropic.com/en/docs/claude-code")
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "helmsman",
	Short: "Coding-agent conversation orchestrator",
	Long: `Helmsman drives a coding agent through multi-turn conversations.

A decision service judges the agent's output after every turn: it maintains
a task checklist, decides whether the work is done, and composes the next
instruction. The dispatcher turns free-form requests into conversations and
lets you follow or message them while they run.

Core capabilities:
- Runs the claude CLI as a supervised subprocess per turn
- Consults an LLM between turns to steer the conversation
- Tracks sessions and transcripts in a local SQLite database
- Aborts running conversations from another terminal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
