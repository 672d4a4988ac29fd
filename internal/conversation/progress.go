package conversation

import "github.com/ShayCichocki/helmsman/pkg/models"

// ProgressKind identifies one kind of observable progress event.
type ProgressKind string

const (
	// ProgressThinking carries a fragment of the agent's reasoning.
	ProgressThinking ProgressKind = "thinking"
	// ProgressToolCall announces a tool invocation starting.
	ProgressToolCall ProgressKind = "tool_call"
	// ProgressToolResult announces a tool invocation finishing.
	ProgressToolResult ProgressKind = "tool_result"
	// ProgressModelInfo reports the model id once the agent announces it.
	ProgressModelInfo ProgressKind = "model_info"
	// ProgressStateDetected reports the classified agent state for a turn.
	ProgressStateDetected ProgressKind = "state_detected"
	// ProgressArtifactUpdate carries the full updated task checklist. Emitted
	// only when the checklist actually changed.
	ProgressArtifactUpdate ProgressKind = "task_artifact_update"
	// ProgressStatusChange reports conversation lifecycle transitions.
	ProgressStatusChange ProgressKind = "status_change"
)

// ProgressEvent is one observable occurrence inside a conversation run.
// Sinks must not block; delivery is synchronous on the driving goroutine.
type ProgressEvent struct {
	Kind      ProgressKind
	SessionID string
	// Text is the payload: fragment, tool label, model id, artifact body,
	// or status, depending on Kind.
	Text string
	// State is set for ProgressStateDetected.
	State models.AgentState
	// Turn is the 1-based turn the event belongs to, when applicable.
	Turn int
}
