package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/helmsman/internal/signals"
)

var abortDir string

var abortCmd = &cobra.Command{
	Use:   "abort <session-id>",
	Short: "Abort a running conversation",
	Long: `Abort a running conversation by session id.

The abort travels through a signal file in the workspace's .helmsman
directory, so it reaches a conversation running in another helmsman
process. The agent subprocess is killed and the session is marked aborted.`,
	Args: cobra.ExactArgs(1),
	RunE: runAbort,
}

func init() {
	abortCmd.Flags().StringVar(&abortDir, "dir", "", "Workspace directory of the running conversation (default: current directory)")
}

func runAbort(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	dir := abortDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		dir = cwd
	}

	if err := signals.SendAbort(dir, sessionID); err != nil {
		return fmt.Errorf("send abort signal: %w", err)
	}

	fmt.Printf("Abort signal sent for session %s\n", sessionID)
	return nil
}
