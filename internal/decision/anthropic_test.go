package decision

import (
	"encoding/json"
	"testing"

	"github.com/ShayCichocki/helmsman/pkg/models"
)

func TestBuildMessagesRoles(t *testing.T) {
	msgs := []Message{
		{Role: models.RoleUser, Text: "do the thing"},
		{Role: models.RoleAssistant, Text: "working on it"},
		{Role: models.RoleSystem, Text: "proceed with step two"},
	}

	params := buildMessages(msgs)
	if len(params) != 3 {
		t.Fatalf("got %d message params, want 3", len(params))
	}
	if params[0].Role != "user" {
		t.Errorf("param 0 role = %s", params[0].Role)
	}
	if params[1].Role != "assistant" {
		t.Errorf("param 1 role = %s", params[1].Role)
	}
	// System-role instructions travel as user turns.
	if params[2].Role != "user" {
		t.Errorf("param 2 role = %s, want user", params[2].Role)
	}
}

func TestBuildMessagesToolRoundTrip(t *testing.T) {
	input := json.RawMessage(`{"path":"main.go"}`)
	msgs := []Message{
		{Role: models.RoleAssistant, ToolCalls: []ToolCall{{ID: "tc-1", Name: "read_file", Input: input}}},
		{Role: models.RoleUser, ToolResults: []ToolResult{{CallID: "tc-1", Content: "package main"}}},
	}

	params := buildMessages(msgs)
	if len(params) != 2 {
		t.Fatalf("got %d message params, want 2", len(params))
	}
	if len(params[0].Content) != 1 {
		t.Errorf("assistant blocks = %d, want 1 tool_use", len(params[0].Content))
	}
	if len(params[1].Content) != 1 {
		t.Errorf("user blocks = %d, want 1 tool_result", len(params[1].Content))
	}
}

func TestBuildMessagesSkipsEmpty(t *testing.T) {
	msgs := []Message{{Role: models.RoleUser, Text: ""}}
	if params := buildMessages(msgs); len(params) != 0 {
		t.Errorf("empty message produced %d params", len(params))
	}
}

func TestBuildTools(t *testing.T) {
	specs := []ToolSpec{{
		Name:        "read_file",
		Description: "Read a file",
		Properties: map[string]interface{}{
			"path": map[string]interface{}{"type": "string"},
		},
		Required: []string{"path"},
	}}

	out := buildTools(specs)
	if len(out) != 1 {
		t.Fatalf("got %d tools", len(out))
	}
	tool := out[0].OfTool
	if tool == nil || tool.Name != "read_file" {
		t.Fatalf("tool = %+v", out[0])
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "path" {
		t.Errorf("required = %v", tool.InputSchema.Required)
	}
}
