package models

// AgentState is a heuristic classification of the coding agent's latest
// output. It is reported to observers for progress display only; nothing in
// the conversation loop terminates because of it.
type AgentState string

const (
	// StateWorking means the agent appears to be making progress.
	StateWorking AgentState = "WORKING"
	// StateBlocked means the agent reported it cannot proceed.
	StateBlocked AgentState = "BLOCKED"
	// StateAsking means the agent is waiting on a question or choice.
	StateAsking AgentState = "ASKING"
	// StateCompleted means the agent claims the task is finished.
	StateCompleted AgentState = "COMPLETED"
	// StatePartial means the agent finished some but not all of the work.
	StatePartial AgentState = "PARTIAL"
	// StateUnknown means no signal could be extracted from the output.
	StateUnknown AgentState = "UNKNOWN"
)
