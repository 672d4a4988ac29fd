// Package dispatch turns free-form user requests into orchestration actions.
// The decision service is consulted with a tool belt: it can create a
// coding-agent conversation, follow or message existing ones, and inspect the
// workspace. Conversations run in the background; a dispatch exchange returns
// as soon as the service has composed its reply.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/helmsman/internal/conversation"
	"github.com/ShayCichocki/helmsman/internal/decision"
	"github.com/ShayCichocki/helmsman/internal/registry"
	"github.com/ShayCichocki/helmsman/internal/state"
	"github.com/ShayCichocki/helmsman/pkg/models"
)

// DefaultMaxIterations bounds the tool loop for one dispatch exchange.
const DefaultMaxIterations = 10

// maxReadBytes caps how much of a file the read_file tool returns.
const maxReadBytes = 64 * 1024

const resultPreviewLen = 500

// dispatchInstruction is the system prompt for dispatch exchanges.
const dispatchInstruction = `You are the dispatcher of a coding-agent orchestration system. The user
talks to you; the coding agent works in the background.

Use the tools to act:
- create_conversation starts the agent on a task. Create at most one
  conversation per user request, and only when the user actually asked for
  work to be done.
- check_status and send_message follow up on existing conversations.
- list_files and read_file inspect the workspace when you need context.

When no action is needed, just answer. Keep replies short and concrete.`

// Runner starts one conversation run to completion. *conversation.Driver
// satisfies it.
type Runner interface {
	Run(ctx context.Context, in conversation.RunInput) (*conversation.RunResult, error)
}

// Store is the slice of persistence dispatch needs. Nil disables session
// bookkeeping; conversations then run unrecorded.
type Store interface {
	CreateSession(s *state.Session) error
	GetSession(id string) (*state.Session, error)
	ListSessions(status *state.SessionStatus) ([]state.Session, error)
}

// Result is the outcome of one dispatch exchange.
type Result struct {
	// Reply is the service's final text answer to the user.
	Reply string
	// ToolCalls counts tool invocations made during the exchange.
	ToolCalls int
	// Iterations counts decision-service consultations.
	Iterations int
	// Conversations lists session ids launched by this exchange.
	Conversations []string
}

// Dispatcher handles user requests. Only Decider and Runner are mandatory.
type Dispatcher struct {
	Decider decision.Client
	Runner  Runner
	Store   Store
	Aborts  *registry.AbortRegistry
	Emitter *Emitter
	// WorkDir is the root the file tools are confined to and the default
	// working directory for new conversations.
	WorkDir string
	// MaxIterations caps the tool loop; 0 selects DefaultMaxIterations.
	MaxIterations int

	wg sync.WaitGroup
}

// requestState tracks per-exchange constraints.
type requestState struct {
	created       bool
	conversations []string
}

// Handle runs one dispatch exchange: the user's message goes to the decision
// service, requested tools are executed, and the loop continues until the
// service answers in plain text or the iteration cap is hit.
func (d *Dispatcher) Handle(ctx context.Context, userMessage string) (*Result, error) {
	if d.Decider == nil {
		return nil, fmt.Errorf("dispatcher: no decision client configured")
	}

	maxIter := d.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	res := &Result{}
	st := &requestState{}
	messages := []decision.Message{
		{Role: models.RoleUser, Text: userMessage},
	}

	for res.Iterations < maxIter {
		res.Iterations++

		resp, err := d.Decider.Decide(ctx, decision.Request{
			System:   dispatchInstruction,
			Messages: messages,
			Tools:    toolSpecs(),
		})
		if err != nil {
			d.emit(Event{Kind: EventError, Text: err.Error()})
			return res, fmt.Errorf("dispatch consultation failed: %w", err)
		}

		if resp.Text != "" {
			res.Reply = resp.Text
			d.emit(Event{Kind: EventText, Text: resp.Text})
		}

		if len(resp.ToolCalls) == 0 {
			res.Conversations = st.conversations
			d.emit(Event{Kind: EventDone})
			return res, nil
		}

		var results []decision.ToolResult
		for _, call := range resp.ToolCalls {
			res.ToolCalls++
			d.emit(Event{Kind: EventToolStart, Tool: call.Name})

			tr := d.execute(ctx, call, st)
			preview := tr.Content
			if len(preview) > resultPreviewLen {
				preview = preview[:resultPreviewLen] + "..."
			}
			d.emit(Event{Kind: EventToolEnd, Tool: call.Name, Text: preview})
			results = append(results, tr)
		}

		messages = append(messages,
			decision.Message{Role: models.RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls},
			decision.Message{Role: models.RoleUser, ToolResults: results},
		)
	}

	res.Conversations = st.conversations
	return res, fmt.Errorf("dispatch exchange exceeded %d iterations", maxIter)
}

// Wait blocks until every background conversation launched by this
// dispatcher has finished. Mainly for shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// execute runs one tool call and wraps its outcome as a tool result. Tool
// failures are reported back to the service, never up the call stack.
func (d *Dispatcher) execute(ctx context.Context, call decision.ToolCall, st *requestState) decision.ToolResult {
	content, err := d.dispatchTool(ctx, call, st)
	if err != nil {
		return decision.ToolResult{CallID: call.ID, Content: err.Error(), IsError: true}
	}
	return decision.ToolResult{CallID: call.ID, Content: content}
}

func (d *Dispatcher) dispatchTool(ctx context.Context, call decision.ToolCall, st *requestState) (string, error) {
	switch call.Name {
	case toolCreateConversation:
		return d.createConversation(call.Input, st)
	case toolCheckStatus:
		return d.checkStatus(call.Input)
	case toolSendMessage:
		return d.sendMessage(call.Input)
	case toolListFiles:
		return d.listFiles(call.Input)
	case toolReadFile:
		return d.readFile(call.Input)
	default:
		return "", fmt.Errorf("unknown tool: %s", call.Name)
	}
}

func (d *Dispatcher) createConversation(input json.RawMessage, st *requestState) (string, error) {
	var in struct {
		Task      string `json:"task"`
		Title     string `json:"title"`
		WorkDir   string `json:"work_dir"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid create_conversation input: %w", err)
	}
	if strings.TrimSpace(in.Task) == "" {
		return "", fmt.Errorf("create_conversation: task is required")
	}
	if st.created {
		return "", fmt.Errorf("a conversation was already created for this request")
	}
	if d.Runner == nil {
		return "", fmt.Errorf("no conversation runner configured")
	}

	workDir := in.WorkDir
	if workDir == "" {
		workDir = d.WorkDir
	}

	run := conversation.RunInput{Task: in.Task, WorkDir: workDir}

	if in.SessionID != "" {
		if d.Store == nil {
			return "", fmt.Errorf("no session store; cannot reuse session %s", in.SessionID)
		}
		sess, err := d.Store.GetSession(in.SessionID)
		if err != nil {
			return "", fmt.Errorf("look up session %s: %w", in.SessionID, err)
		}
		if sess == nil {
			return "", fmt.Errorf("session %s not found", in.SessionID)
		}
		if sess.Managed {
			return "", fmt.Errorf("session %s is managed by the dispatcher; only plain sessions can be reused", in.SessionID)
		}
		run.SessionID = sess.ID
		run.ResumeID = sess.ResumeID
		run.Artifact = sess.Artifact
		if in.WorkDir == "" && sess.WorkDir != "" {
			run.WorkDir = sess.WorkDir
		}
	} else {
		run.SessionID = uuid.NewString()
		if d.Store != nil {
			err := d.Store.CreateSession(&state.Session{
				ID:      run.SessionID,
				Title:   in.Title,
				Task:    in.Task,
				WorkDir: run.WorkDir,
				Status:  state.SessionActive,
				Managed: true,
			})
			if err != nil {
				return "", fmt.Errorf("create session: %w", err)
			}
		}
	}

	st.created = true
	st.conversations = append(st.conversations, run.SessionID)
	d.launch(run)

	d.emit(Event{Kind: EventConversationCreated, SessionID: run.SessionID, Text: in.Title})
	return fmt.Sprintf(`{"session_id": %q, "status": "started"}`, run.SessionID), nil
}

// launch starts a conversation run detached from the request context: the
// conversation outlives the dispatch exchange that created it. Cancellation
// goes through the abort registry instead.
func (d *Dispatcher) launch(run conversation.RunInput) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		res, err := d.Runner.Run(context.Background(), run)
		switch {
		case err != nil:
			d.emit(Event{Kind: EventConversationComplete, SessionID: run.SessionID, Text: "error: " + err.Error()})
		default:
			d.emit(Event{Kind: EventConversationComplete, SessionID: run.SessionID, Text: string(res.Outcome)})
		}
	}()
}

// ForwardProgress relays conversation driver progress onto the unified event
// channel as conversation updates. Wire it as the driver's Sink so background
// conversations stay observable after the exchange that created them returns.
func (d *Dispatcher) ForwardProgress(ev conversation.ProgressEvent) {
	d.emit(Event{
		Kind:      EventConversationUpdate,
		SessionID: ev.SessionID,
		Text:      progressText(ev),
	})
}

func progressText(ev conversation.ProgressEvent) string {
	switch ev.Kind {
	case conversation.ProgressStateDetected:
		return fmt.Sprintf("agent state: %s", ev.State)
	case conversation.ProgressArtifactUpdate:
		return "checklist:\n" + ev.Text
	case conversation.ProgressStatusChange:
		return "status: " + ev.Text
	default:
		return fmt.Sprintf("%s: %s", ev.Kind, ev.Text)
	}
}

func (d *Dispatcher) checkStatus(input json.RawMessage) (string, error) {
	var in struct {
		SessionID string `json:"session_id"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid check_status input: %w", err)
		}
	}
	if d.Store == nil {
		return "", fmt.Errorf("no session store configured")
	}

	if in.SessionID == "" {
		sessions, err := d.Store.ListSessions(nil)
		if err != nil {
			return "", fmt.Errorf("list sessions: %w", err)
		}
		if len(sessions) == 0 {
			return "no sessions", nil
		}
		var b strings.Builder
		for _, s := range sessions {
			fmt.Fprintf(&b, "%s  %-10s  %s\n", s.ID, s.Status, s.Title)
		}
		return b.String(), nil
	}

	sess, err := d.Store.GetSession(in.SessionID)
	if err != nil {
		return "", fmt.Errorf("look up session %s: %w", in.SessionID, err)
	}
	if sess == nil {
		return "", fmt.Errorf("session %s not found", in.SessionID)
	}

	running := d.Aborts != nil && d.Aborts.Has(sess.ID)
	var b strings.Builder
	fmt.Fprintf(&b, "session: %s\nstatus: %s\nrunning: %v\n", sess.ID, sess.Status, running)
	if sess.Title != "" {
		fmt.Fprintf(&b, "title: %s\n", sess.Title)
	}
	if sess.Artifact != "" {
		fmt.Fprintf(&b, "checklist:\n%s\n", sess.Artifact)
	}
	return b.String(), nil
}

func (d *Dispatcher) sendMessage(input json.RawMessage) (string, error) {
	var in struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid send_message input: %w", err)
	}
	if in.SessionID == "" || strings.TrimSpace(in.Message) == "" {
		return "", fmt.Errorf("send_message: session_id and message are required")
	}
	if d.Store == nil {
		return "", fmt.Errorf("no session store configured")
	}
	if d.Runner == nil {
		return "", fmt.Errorf("no conversation runner configured")
	}

	sess, err := d.Store.GetSession(in.SessionID)
	if err != nil {
		return "", fmt.Errorf("look up session %s: %w", in.SessionID, err)
	}
	if sess == nil {
		return "", fmt.Errorf("session %s not found", in.SessionID)
	}
	if d.Aborts != nil && d.Aborts.Has(sess.ID) {
		return "", fmt.Errorf("session %s has a conversation running; wait for it to finish", sess.ID)
	}

	d.launch(conversation.RunInput{
		SessionID: sess.ID,
		Task:      in.Message,
		WorkDir:   sess.WorkDir,
		ResumeID:  sess.ResumeID,
		Artifact:  sess.Artifact,
	})

	d.emit(Event{Kind: EventConversationUpdate, SessionID: sess.ID, Text: "message sent"})
	return fmt.Sprintf(`{"session_id": %q, "status": "resumed"}`, sess.ID), nil
}

func (d *Dispatcher) listFiles(input json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid list_files input: %w", err)
		}
	}

	dir, err := d.resolvePath(in.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", in.Path, err)
	}
	if len(entries) == 0 {
		return "(empty)", nil
	}

	var b strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func (d *Dispatcher) readFile(input json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid read_file input: %w", err)
	}
	if in.Path == "" {
		return "", fmt.Errorf("read_file: path is required")
	}

	path, err := d.resolvePath(in.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", in.Path, err)
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n... (truncated)", nil
	}
	return string(data), nil
}

// resolvePath confines a tool-supplied relative path to the working
// directory. Escapes via ".." or absolute paths are rejected.
func (d *Dispatcher) resolvePath(rel string) (string, error) {
	root := d.WorkDir
	if root == "" {
		root = "."
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be relative to the working directory: %s", rel)
	}

	joined := filepath.Clean(filepath.Join(root, rel))
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the working directory: %s", rel)
	}
	return joined, nil
}

func (d *Dispatcher) emit(ev Event) {
	if d.Emitter != nil {
		d.Emitter.Emit(ev)
	}
}
