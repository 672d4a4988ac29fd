// Package decision wraps the LLM consulted each turn to judge progress,
// maintain the task checklist, and choose the next instruction. The service
// is stateless request/response: every call resends full context, no
// server-side conversation state is assumed.
package decision

import (
	"context"
	"encoding/json"

	"github.com/ShayCichocki/helmsman/pkg/models"
)

// ToolCall is a tool invocation requested by the decision service.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult carries the outcome of an executed tool call back to the
// service on the next request.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// ToolSpec declares one tool the service may invoke.
type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]interface{}
	Required    []string
}

// Message is one entry of the request context. Assistant messages may carry
// the tool calls the service issued earlier; user messages may carry the
// results of executing them.
type Message struct {
	Role        models.Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Request is a single stateless consultation.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
	// MaxTokens bounds the response; 0 selects the client default.
	MaxTokens int64
}

// Response is what the service answered: free text, tool invocations, or
// both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	// Done is true when the service stopped of its own accord rather than
	// to await tool results.
	Done bool
}

// Client is the decision-service interface. Implementations must be safe
// for concurrent use; a failed request is terminal for the consulting run,
// no retry happens at this layer.
type Client interface {
	Decide(ctx context.Context, req Request) (*Response, error)
}
