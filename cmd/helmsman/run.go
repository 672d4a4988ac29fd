package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/helmsman/internal/config"
	"github.com/ShayCichocki/helmsman/internal/conversation"
	"github.com/ShayCichocki/helmsman/internal/registry"
	"github.com/ShayCichocki/helmsman/internal/signals"
	"github.com/ShayCichocki/helmsman/internal/state"
)

var (
	runDir    string
	runResume string
	runModel  string
	runBudget int
	runTitle  string
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a conversation for a task",
	Long: `Run the coding agent on a task, one supervised turn at a time.

After every turn the decision service reviews the transcript, updates the
task checklist, and either declares the task complete or composes the next
instruction. The conversation stops on completion, failure, or when the
turn budget runs out.

Examples:
  helmsman run "add input validation to the signup form"
  helmsman run --resume 4f7c... "also cover the edge cases with tests"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDir, "dir", "", "Working directory for the agent (default: current directory)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Continue an existing session by id")
	runCmd.Flags().StringVar(&runModel, "model", "", "Override the agent model")
	runCmd.Flags().IntVar(&runBudget, "budget", 0, "Override the turn budget")
	runCmd.Flags().StringVar(&runTitle, "title", "", "Title for the new session")
}

func runRun(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := checkAgentBinary(cfg); err != nil {
		return err
	}

	workDir := runDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	decider, err := buildDecider(cfg)
	if err != nil {
		return err
	}

	input := conversation.RunInput{Task: task, WorkDir: workDir}
	if runResume != "" {
		sess, err := db.GetSession(runResume)
		if err != nil {
			return fmt.Errorf("look up session: %w", err)
		}
		if sess == nil {
			return fmt.Errorf("session %s not found", runResume)
		}
		input.SessionID = sess.ID
		input.ResumeID = sess.ResumeID
		input.Artifact = sess.Artifact
		if runDir == "" && sess.WorkDir != "" {
			input.WorkDir = sess.WorkDir
		}
	} else {
		input.SessionID = uuid.NewString()
		title := runTitle
		if title == "" {
			title = sessionTitle(task)
		}
		err := db.CreateSession(&state.Session{
			ID:      input.SessionID,
			Title:   title,
			Task:    task,
			WorkDir: input.WorkDir,
			Status:  state.SessionActive,
		})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}

	aborts := registry.NewAbortRegistry()
	if watcher := watchAbortSignals(input.WorkDir, aborts); watcher != nil {
		defer watcher.Close()
	}

	model := runModel
	if model == "" {
		model = cfg.Agent.Model
	}
	budget := runBudget
	if budget == 0 {
		budget = cfg.Conversation.TurnBudget
	}

	driver := &conversation.Driver{
		Decider:    decider,
		Store:      db,
		Calls:      registry.NewCallRegistry(cfg.Conversation.CallGrace),
		Aborts:     aborts,
		Model:      model,
		Binary:     cfg.Agent.Binary,
		TurnBudget: budget,
		Sink:       printProgress,
	}

	fmt.Printf("Session %s\n", input.SessionID)
	res, err := driver.Run(context.Background(), input)
	if err != nil {
		return err
	}

	return printRunResult(res)
}

// watchAbortSignals starts the cross-process abort watcher. A startup
// failure disables 'helmsman abort' for this run, so it is reported, but it
// does not fail the run.
func watchAbortSignals(dir string, aborts *registry.AbortRegistry) *signals.Watcher {
	watcher, err := signals.NewWatcher(dir, aborts)
	if err != nil {
		color.Yellow("warning: abort signals unavailable: %v", err)
		return nil
	}
	return watcher
}

// checkAgentBinary verifies the configured agent executable is reachable.
func checkAgentBinary(cfg *config.Config) error {
	if cfg.Agent.Binary == "" {
		return CheckClaudeCLI()
	}
	if _, err := exec.LookPath(cfg.Agent.Binary); err != nil {
		return fmt.Errorf("agent binary %q not found in PATH", cfg.Agent.Binary)
	}
	return nil
}

// sessionTitle derives a short display title from the task text.
func sessionTitle(task string) string {
	title := strings.TrimSpace(task)
	if len(title) > 60 {
		title = title[:60] + "..."
	}
	return title
}

// printProgress renders one progress event to the terminal.
func printProgress(ev conversation.ProgressEvent) {
	switch ev.Kind {
	case conversation.ProgressModelInfo:
		color.New(color.Faint).Printf("  model: %s\n", ev.Text)
	case conversation.ProgressThinking:
		color.New(color.Faint).Printf("  %s\n", firstLineOf(ev.Text))
	case conversation.ProgressToolCall:
		color.Cyan("  → %s", ev.Text)
	case conversation.ProgressToolResult:
		color.Cyan("  ✓ %s", ev.Text)
	case conversation.ProgressStateDetected:
		color.New(color.Faint).Printf("  [turn %d] agent state: %s\n", ev.Turn, ev.State)
	case conversation.ProgressArtifactUpdate:
		fmt.Println("  checklist:")
		for _, line := range strings.Split(ev.Text, "\n") {
			fmt.Printf("    %s\n", line)
		}
	case conversation.ProgressStatusChange:
		color.New(color.Bold).Printf("status: %s\n", ev.Text)
	}
}

func firstLineOf(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printRunResult summarizes a finished conversation. Failed outcomes return
// an error so the process exits non-zero.
func printRunResult(res *conversation.RunResult) error {
	fmt.Println()
	if res.Artifact != "" {
		fmt.Println("Final checklist:")
		fmt.Println(res.Artifact)
		fmt.Println()
	}

	switch res.Outcome {
	case conversation.OutcomeCompleted:
		color.Green("✓ Task completed in %d turn(s)", res.Turns)
		return nil
	case conversation.OutcomeAborted:
		color.Yellow("Conversation aborted after %d turn(s)", res.Turns)
		return nil
	case conversation.OutcomeTurnBudget:
		return fmt.Errorf("turn budget exhausted after %d turns; resume the session to continue", res.Turns)
	case conversation.OutcomeNoInstruction:
		return fmt.Errorf("stopped after %d turn(s): the decision service produced no next instruction", res.Turns)
	default:
		return fmt.Errorf("conversation failed: %s", res.FailureCause)
	}
}
