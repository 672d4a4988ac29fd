package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/helmsman/internal/config"
	"github.com/ShayCichocki/helmsman/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show session state",
	Long: `Display stored sessions and their state.

Without arguments, lists all sessions newest first. With a session id,
shows that session's details: status, checklist, and transcript length.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return showSession(db, args[0])
	}
	return listSessions(db)
}

func listSessions(db *state.DB) error {
	sessions, err := db.ListSessions(nil)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions. Run 'helmsman run <task>' to start one.")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %s  %s  %s\n",
			s.ID, statusLabel(s.Status), s.CreatedAt.Format(time.DateTime), s.Title)
	}
	return nil
}

func showSession(db *state.DB, id string) error {
	sess, err := db.GetSession(id)
	if err != nil {
		return fmt.Errorf("look up session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("session %s not found", id)
	}

	count, err := db.CountMessages(id)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	fmt.Printf("Session:  %s\n", sess.ID)
	fmt.Printf("Title:    %s\n", sess.Title)
	fmt.Printf("Status:   %s\n", statusLabel(sess.Status))
	fmt.Printf("Workdir:  %s\n", sess.WorkDir)
	fmt.Printf("Messages: %d\n", count)
	fmt.Printf("Created:  %s\n", sess.CreatedAt.Format(time.DateTime))
	fmt.Printf("Updated:  %s\n", sess.UpdatedAt.Format(time.DateTime))
	if sess.Managed {
		fmt.Println("Managed:  yes (created by the dispatcher)")
	}
	if sess.ResumeID != "" {
		fmt.Printf("Resume:   %s\n", sess.ResumeID)
	}
	if sess.Artifact != "" {
		fmt.Printf("\nChecklist:\n%s\n", sess.Artifact)
	}
	return nil
}

func statusLabel(s state.SessionStatus) string {
	switch s {
	case state.SessionActive:
		return color.YellowString("%-9s", s)
	case state.SessionCompleted:
		return color.GreenString("%-9s", s)
	case state.SessionFailed:
		return color.RedString("%-9s", s)
	case state.SessionAborted:
		return color.New(color.Faint).Sprintf("%-9s", s)
	default:
		return fmt.Sprintf("%-9s", s)
	}
}
