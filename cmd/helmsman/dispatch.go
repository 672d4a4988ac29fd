package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/helmsman/internal/config"
	"github.com/ShayCichocki/helmsman/internal/conversation"
	"github.com/ShayCichocki/helmsman/internal/dispatch"
	"github.com/ShayCichocki/helmsman/internal/registry"
)

var dispatchDir string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <message>",
	Short: "Send a free-form request to the dispatcher",
	Long: `Send a free-form message to the dispatcher.

The decision service interprets the message and acts with its tools: it can
start a coding-agent conversation, check on running ones, message them, or
inspect the workspace before answering.

The reply prints as soon as the dispatcher has composed it; any conversation
it started keeps streaming progress until it reaches a terminal outcome.
Abort a running conversation from another terminal with 'helmsman abort'.

Examples:
  helmsman dispatch "clean up the TODOs in the parser package"
  helmsman dispatch "what is the state of the signup-form session?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchDir, "dir", "", "Working directory (default: current directory)")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := checkAgentBinary(cfg); err != nil {
		return err
	}

	workDir := dispatchDir
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

	aborts := registry.NewAbortRegistry()
	if watcher := watchAbortSignals(workDir, aborts); watcher != nil {
		defer watcher.Close()
	}

	driver := &conversation.Driver{
		Decider:    decider,
		Store:      db,
		Calls:      registry.NewCallRegistry(cfg.Conversation.CallGrace),
		Aborts:     aborts,
		Model:      cfg.Agent.Model,
		Binary:     cfg.Agent.Binary,
		TurnBudget: cfg.Conversation.TurnBudget,
	}

	emitter := dispatch.NewEmitter(64)
	d := &dispatch.Dispatcher{
		Decider:       decider,
		Runner:        driver,
		Store:         db,
		Aborts:        aborts,
		Emitter:       emitter,
		WorkDir:       workDir,
		MaxIterations: cfg.Dispatch.MaxIterations,
	}
	driver.Sink = d.ForwardProgress

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range emitter.Events() {
			printDispatchEvent(ev)
		}
	}()

	res, handleErr := d.Handle(context.Background(), message)
	if handleErr == nil && res.Reply != "" {
		fmt.Printf("\n%s\n", res.Reply)
	}

	// Conversations launched by this exchange run inside this process; hold
	// it open until they finish.
	if handleErr == nil && len(res.Conversations) > 0 {
		color.New(color.Faint).Println("following background conversation(s)...")
	}
	d.Wait()

	emitter.Close()
	<-done
	return handleErr
}

func printDispatchEvent(ev dispatch.Event) {
	switch ev.Kind {
	case dispatch.EventToolStart:
		color.Cyan("→ %s", ev.Tool)
	case dispatch.EventToolEnd:
		color.New(color.Faint).Printf("  %s\n", firstLineOf(ev.Text))
	case dispatch.EventConversationCreated:
		color.Green("started conversation %s %s", ev.SessionID, ev.Text)
	case dispatch.EventConversationUpdate:
		color.New(color.Faint).Printf("  [%s] %s\n", shortID(ev.SessionID), firstLineOf(ev.Text))
	case dispatch.EventConversationComplete:
		color.Green("conversation %s: %s", ev.SessionID, ev.Text)
	case dispatch.EventError:
		color.Red("error: %s", ev.Text)
	}
}
