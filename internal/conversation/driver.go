// Package conversation drives a multi-turn exchange between the external
// coding agent and the decision service. Each turn invokes the agent once,
// consults the service on the full transcript, and either forwards the next
// instruction or terminates. Termination is decided solely by the service's
// completion phrase, the turn budget, or a failure; the heuristic state
// classifier observes but never gates.
package conversation

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/helmsman/internal/agent"
	"github.com/ShayCichocki/helmsman/internal/decision"
	"github.com/ShayCichocki/helmsman/internal/registry"
	"github.com/ShayCichocki/helmsman/internal/state"
	"github.com/ShayCichocki/helmsman/pkg/models"
)

// DefaultTurnBudget bounds how many agent invocations one run may make.
const DefaultTurnBudget = 10

// AgentCall is one running agent subprocess as the driver sees it.
// *agent.Process satisfies it; tests substitute fakes.
type AgentCall interface {
	Events() <-chan agent.Event
	Wait() *agent.Result
	Kill() error
}

// Launcher starts one agent subprocess. A nil Launcher on the Driver selects
// agent.Start.
type Launcher func(ctx context.Context, opts agent.Options) (AgentCall, error)

// Store is the slice of persistence the driver needs. A nil Store disables
// persistence; the run still works entirely in memory.
type Store interface {
	AppendMessage(sessionID string, m models.Message) error
	UpdateArtifact(id, artifact string) error
	UpdateResumeID(id, resumeID string) error
	UpdateStatus(id string, status state.SessionStatus) error
}

// Outcome says how a run ended.
type Outcome string

const (
	// OutcomeCompleted means the decision service declared the task done.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means an agent call or service consultation failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeTurnBudget means the run used every allowed turn without a
	// completion verdict.
	OutcomeTurnBudget Outcome = "turn_budget_exhausted"
	// OutcomeNoInstruction means the service neither declared completion nor
	// produced an actionable next instruction.
	OutcomeNoInstruction Outcome = "no_instruction"
	// OutcomeAborted means the run was canceled from outside.
	OutcomeAborted Outcome = "aborted"
)

// RunInput describes one conversation run.
type RunInput struct {
	// SessionID keys persistence and abort handling.
	SessionID string
	// Task is the user's task text.
	Task string
	// WorkDir is the directory the agent operates in.
	WorkDir string
	// ResumeID resumes a prior agent conversation when non-empty.
	ResumeID string
	// Artifact seeds the task checklist, normally from a resumed session.
	Artifact string
}

// RunResult is the terminal report of one conversation run.
type RunResult struct {
	Outcome Outcome
	// Success is true only for OutcomeCompleted.
	Success    bool
	Transcript []models.Message
	// ResumeID is the agent correlation id to resume this conversation.
	ResumeID string
	// Turns is the number of agent invocations actually made.
	Turns int
	// Artifact is the final task checklist.
	Artifact string
	// FailureCause explains non-completed outcomes in human-readable terms.
	FailureCause string
}

// Driver runs conversations. Zero-value fields select defaults; only Decider
// is mandatory.
type Driver struct {
	Launch     Launcher
	Decider    decision.Client
	Store      Store
	Calls      *registry.CallRegistry
	Aborts     *registry.AbortRegistry
	Classifier Classifier
	// Model overrides the agent's default model when non-empty.
	Model string
	// Binary overrides the agent executable, mainly for tests.
	Binary string
	// TurnBudget caps agent invocations; 0 selects DefaultTurnBudget.
	TurnBudget int
	// Sink receives progress events; nil disables them.
	Sink func(ProgressEvent)
}

// Run drives one conversation to a terminal outcome. The returned error is
// non-nil only for misuse (no decision client); operational failures are
// reported through the RunResult so the transcript always carries a final
// human-readable message.
func (d *Driver) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if d.Decider == nil {
		return nil, fmt.Errorf("conversation driver: no decision client configured")
	}

	budget := d.TurnBudget
	if budget <= 0 {
		budget = DefaultTurnBudget
	}
	classifier := d.Classifier
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	launch := d.Launch
	if launch == nil {
		launch = func(ctx context.Context, opts agent.Options) (AgentCall, error) {
			return agent.Start(ctx, opts)
		}
	}

	if d.Aborts != nil && in.SessionID != "" {
		ctx = d.Aborts.Register(ctx, in.SessionID)
		defer d.Aborts.Unregister(in.SessionID)
	}

	res := &RunResult{
		ResumeID: in.ResumeID,
		Artifact: in.Artifact,
	}

	d.emit(ProgressEvent{Kind: ProgressStatusChange, SessionID: in.SessionID, Text: "running"})

	// The first prompt carries the wrapped task; later prompts are the
	// service's instructions verbatim.
	pending := wrapTask(in.Task)
	d.record(in.SessionID, res, models.NewMessage(models.RoleUser, models.SourceUser, in.Task))

	for res.Turns < budget {
		if ctx.Err() != nil {
			return d.finish(in.SessionID, res, OutcomeAborted, "run aborted"), nil
		}

		// A pending message that already carries the completion phrase is a
		// verdict, not work for the agent.
		if containsCompletionPhrase(pending) {
			d.record(in.SessionID, res, models.NewMessage(models.RoleSystem, models.SourcePolicy, "Mission complete."))
			return d.finish(in.SessionID, res, OutcomeCompleted, ""), nil
		}

		r, err := d.invokeAgent(ctx, launch, in, res, pending)
		if err != nil {
			return d.finish(in.SessionID, res, OutcomeFailed, err.Error()), nil
		}
		if ctx.Err() != nil || r.Killed {
			return d.finish(in.SessionID, res, OutcomeAborted, "run aborted"), nil
		}
		if !r.Success {
			return d.finish(in.SessionID, res, OutcomeFailed, r.Cause), nil
		}

		d.record(in.SessionID, res, models.NewMessage(models.RoleAssistant, models.SourceAgent, r.Text))
		d.emit(ProgressEvent{
			Kind:      ProgressStateDetected,
			SessionID: in.SessionID,
			State:     classifier.Classify(r.Text),
			Turn:      res.Turns,
		})

		verdict, err := d.Decider.Decide(ctx, d.buildRequest(res))
		if err != nil {
			return d.finish(in.SessionID, res, OutcomeFailed,
				fmt.Sprintf("decision service failed: %v", err)), nil
		}

		artifact, rest := extractChecklist(verdict.Text)
		if artifact != "" && artifact != res.Artifact {
			res.Artifact = artifact
			if d.Store != nil && in.SessionID != "" {
				d.Store.UpdateArtifact(in.SessionID, artifact)
			}
			d.emit(ProgressEvent{
				Kind:      ProgressArtifactUpdate,
				SessionID: in.SessionID,
				Text:      artifact,
				Turn:      res.Turns,
			})
		}

		if containsCompletionPhrase(verdict.Text) {
			d.record(in.SessionID, res, models.NewMessage(models.RoleSystem, models.SourcePolicy, "Mission complete."))
			return d.finish(in.SessionID, res, OutcomeCompleted, ""), nil
		}

		instruction := cleanInstruction(rest)
		if len(instruction) < minInstructionLen {
			return d.finish(in.SessionID, res, OutcomeNoInstruction,
				"decision service produced no actionable instruction"), nil
		}

		d.record(in.SessionID, res, models.NewMessage(models.RoleSystem, models.SourcePolicy, instruction))
		pending = instruction
	}

	return d.finish(in.SessionID, res, OutcomeTurnBudget,
		fmt.Sprintf("turn budget of %d exhausted without completion", budget)), nil
}

// invokeAgent runs one agent subprocess to completion, streaming its events
// into progress reports. The turn counter advances only for successfully
// started processes.
func (d *Driver) invokeAgent(ctx context.Context, launch Launcher, in RunInput, res *RunResult, prompt string) (*agent.Result, error) {
	var callID string
	if d.Calls != nil {
		callID = d.Calls.Register(in.Task, in.WorkDir, res.ResumeID)
	}

	call, err := launch(ctx, agent.Options{
		Task:     prompt,
		WorkDir:  in.WorkDir,
		ResumeID: res.ResumeID,
		Model:    d.Model,
		Binary:   d.Binary,
	})
	if err != nil {
		if d.Calls != nil {
			d.Calls.Complete(callID, false)
		}
		return nil, fmt.Errorf("failed to launch agent: %v", err)
	}
	if d.Calls != nil {
		d.Calls.AttachProcess(callID, call)
	}
	res.Turns++

	for ev := range call.Events() {
		if ev.SessionID != "" && res.ResumeID == "" {
			res.ResumeID = ev.SessionID
			if d.Calls != nil {
				d.Calls.SetSession(callID, ev.SessionID)
			}
			if d.Store != nil && in.SessionID != "" {
				d.Store.UpdateResumeID(in.SessionID, ev.SessionID)
			}
		}

		switch ev.Kind {
		case agent.EventInit:
			d.emit(ProgressEvent{Kind: ProgressModelInfo, SessionID: in.SessionID, Text: ev.Model, Turn: res.Turns})
		case agent.EventThinking:
			d.emit(ProgressEvent{Kind: ProgressThinking, SessionID: in.SessionID, Text: ev.Text, Turn: res.Turns})
		case agent.EventToolStart:
			d.emit(ProgressEvent{Kind: ProgressToolCall, SessionID: in.SessionID, Text: ev.Describe(), Turn: res.Turns})
		case agent.EventToolEnd:
			d.emit(ProgressEvent{Kind: ProgressToolResult, SessionID: in.SessionID, Text: ev.Describe(), Turn: res.Turns})
		}
	}

	r := call.Wait()
	if d.Calls != nil {
		d.Calls.Complete(callID, r.Success)
	}
	if r.SessionID != "" && res.ResumeID == "" {
		res.ResumeID = r.SessionID
	}
	return r, nil
}

// buildRequest assembles the stateless consultation: the fixed instruction,
// the transcript so far, and the current checklist as a trailing reminder.
func (d *Driver) buildRequest(res *RunResult) decision.Request {
	msgs := make([]decision.Message, 0, len(res.Transcript)+1)
	for _, m := range res.Transcript {
		msgs = append(msgs, decision.Message{Role: m.Role, Text: m.Text})
	}

	checklist := res.Artifact
	if checklist == "" {
		checklist = "(no checklist yet)"
	}
	msgs = append(msgs, decision.Message{
		Role: models.RoleUser,
		Text: "Current checklist:\n" + checklist,
	})

	return decision.Request{
		System:   decisionInstruction,
		Messages: msgs,
	}
}

// finish closes out the run: sets the outcome, appends one terminal
// human-readable transcript message for non-completed outcomes, persists the
// final session status, and reports the status change.
func (d *Driver) finish(sessionID string, res *RunResult, outcome Outcome, cause string) *RunResult {
	res.Outcome = outcome
	res.Success = outcome == OutcomeCompleted
	if cause != "" {
		res.FailureCause = cause
		d.record(sessionID, res, models.NewMessage(models.RoleSystem, models.SourcePolicy, cause))
	}

	if d.Store != nil && sessionID != "" {
		d.Store.UpdateStatus(sessionID, sessionStatus(outcome))
	}
	d.emit(ProgressEvent{Kind: ProgressStatusChange, SessionID: sessionID, Text: string(outcome)})
	return res
}

// record appends a message to the in-memory transcript and, when configured,
// to the session store.
func (d *Driver) record(sessionID string, res *RunResult, m models.Message) {
	res.Transcript = append(res.Transcript, m)
	if d.Store != nil && sessionID != "" {
		d.Store.AppendMessage(sessionID, m)
	}
}

func (d *Driver) emit(ev ProgressEvent) {
	if d.Sink != nil {
		d.Sink(ev)
	}
}

func sessionStatus(outcome Outcome) state.SessionStatus {
	switch outcome {
	case OutcomeCompleted:
		return state.SessionCompleted
	case OutcomeAborted:
		return state.SessionAborted
	default:
		return state.SessionFailed
	}
}
