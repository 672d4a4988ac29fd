package dispatch

import "github.com/ShayCichocki/helmsman/internal/decision"

// Tool names the dispatcher understands.
const (
	toolCreateConversation = "create_conversation"
	toolCheckStatus        = "check_status"
	toolSendMessage        = "send_message"
	toolListFiles          = "list_files"
	toolReadFile           = "read_file"
)

// toolSpecs returns the tool schemas offered to the decision service for
// dispatch requests.
func toolSpecs() []decision.ToolSpec {
	return []decision.ToolSpec{
		{
			Name:        toolCreateConversation,
			Description: "Start a coding-agent conversation for a task. The conversation runs in the background; use check_status to follow it. At most one conversation can be created per user request.",
			Properties: map[string]interface{}{
				"task": map[string]interface{}{
					"type":        "string",
					"description": "The full task text for the coding agent",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Short human-readable title for the conversation",
				},
				"work_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory for the agent (optional, defaults to the dispatch working directory)",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Existing session to continue instead of creating a new one (optional; only plain sessions can be reused)",
				},
			},
			Required: []string{"task"},
		},
		{
			Name:        toolCheckStatus,
			Description: "Check the status of a conversation: lifecycle state, turn activity, and current checklist. With no session_id, lists all known sessions.",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to inspect (optional)",
				},
			},
		},
		{
			Name:        toolSendMessage,
			Description: "Send a follow-up message to an existing conversation. The conversation must not be running; it is resumed in the background with the message as the next task.",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to message",
				},
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The follow-up message text",
				},
			},
			Required: []string{"session_id", "message"},
		},
		{
			Name:        toolListFiles,
			Description: "List directory contents inside the working directory. Directories are suffixed with '/'.",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to list, relative to the working directory (optional, defaults to its root)",
				},
			},
		},
		{
			Name:        toolReadFile,
			Description: "Read a file inside the working directory. Large files are truncated.",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File to read, relative to the working directory",
				},
			},
			Required: []string{"path"},
		},
	}
}
