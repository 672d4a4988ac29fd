// Package models defines the shared domain types for Helmsman.
package models

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	// RoleUser marks a message originating from the requesting user.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the coding agent.
	RoleAssistant Role = "assistant"
	// RoleSystem marks an instruction injected by the orchestration layer.
	RoleSystem Role = "system"
)

// Source tags where a message came from within a run. It is finer-grained
// than Role: a system-role message may carry a policy instruction, while an
// assistant-role message may carry agent output or thinking commentary.
type Source string

const (
	// SourceUser is the original user request.
	SourceUser Source = "user"
	// SourceAgent is output from the coding-agent subprocess.
	SourceAgent Source = "agent"
	// SourcePolicy is an instruction issued by the decision service.
	SourcePolicy Source = "policy"
	// SourceThinking is commentary text the agent emitted while reasoning.
	SourceThinking Source = "thinking"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Source    Source    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role Role, source Source, text string) Message {
	return Message{
		Role:      role,
		Text:      text,
		Source:    source,
		Timestamp: time.Now(),
	}
}
