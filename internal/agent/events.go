// Package agent supervises the external coding-agent subprocess for Helmsman.
// It launches the claude CLI bound to a working directory, writes the task to
// its stdin, and turns the newline-delimited JSON it streams back into an
// ordered sequence of classified events.
package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// EventKind represents the kind of stream event from the coding agent.
type EventKind string

const (
	// EventInit carries the model id and the agent's self-reported session id.
	EventInit EventKind = "init"
	// EventText is an assistant text fragment.
	EventText EventKind = "text"
	// EventThinking is reasoning commentary emitted alongside the answer.
	EventThinking EventKind = "thinking"
	// EventToolStart marks the beginning of a tool invocation.
	EventToolStart EventKind = "tool_start"
	// EventToolEnd marks a finished tool invocation, with its result.
	EventToolEnd EventKind = "tool_end"
	// EventResult is the final summary event of a run.
	EventResult EventKind = "result"
)

// WriteResult is the structured result of a completed write tool call.
type WriteResult struct {
	Path         string
	LinesCreated int
	Bytes        int
}

// ReadResult is the structured result of a completed read tool call.
type ReadResult struct {
	Path       string
	TotalLines int
}

// Event is a single classified event parsed from the agent's output stream.
type Event struct {
	Kind EventKind
	// Model is the model id, set on EventInit.
	Model string
	// SessionID is the agent's correlation id when the line carried one.
	SessionID string
	// Text holds the fragment for EventText and EventThinking.
	Text string
	// Tool is the tool name for EventToolStart and EventToolEnd.
	Tool string
	// Write holds the structured result of a completed write tool, if any.
	Write *WriteResult
	// Read holds the structured result of a completed read tool, if any.
	Read *ReadResult
	// DurationMS is the run duration reported by EventResult.
	DurationMS int64
}

// newLineScanner builds the line splitter used for agent stdout. Event lines
// can be large; the buffer is sized generously so a single JSON object never
// straddles a scan token.
func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return scanner
}

// ScanEvents reads an entire output stream and returns every recognized
// event in order. Parsing is line-oriented and independent of how the
// underlying reader chunks its bytes.
func ScanEvents(r io.Reader) []Event {
	var events []Event
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if ev, ok := ParseEvent(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// ParseEvent parses one complete output line into an Event. The second return
// is false when the line is not a recognized event; the protocol tolerates
// noise, so such lines are dropped by the caller without surfacing an error.
func ParseEvent(line []byte) (Event, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, false
	}

	typ, _ := raw["type"].(string)
	ev := Event{}
	if sid, ok := raw["session_id"].(string); ok {
		ev.SessionID = sid
	}

	switch typ {
	case "system":
		if sub, _ := raw["subtype"].(string); sub != "init" {
			return Event{}, false
		}
		ev.Kind = EventInit
		ev.Model, _ = raw["model"].(string)
		return ev, true

	case "assistant":
		ev.Kind = EventText
		ev.Text = extractText(raw)
		if ev.Text == "" {
			return Event{}, false
		}
		return ev, true

	case "thinking":
		ev.Kind = EventThinking
		ev.Text = extractText(raw)
		if ev.Text == "" {
			return Event{}, false
		}
		return ev, true

	case "tool_call":
		name, _ := raw["tool"].(string)
		if name == "" {
			return Event{}, false
		}
		ev.Tool = name
		switch phase, _ := raw["phase"].(string); phase {
		case "started":
			ev.Kind = EventToolStart
		case "completed":
			ev.Kind = EventToolEnd
			parseToolResult(&ev, raw)
		default:
			return Event{}, false
		}
		return ev, true

	case "result":
		ev.Kind = EventResult
		if d, ok := raw["duration_ms"].(float64); ok {
			ev.DurationMS = int64(d)
		}
		return ev, true
	}

	return Event{}, false
}

// extractText pulls the text payload out of an assistant or thinking line.
// The agent emits either a flat "text" field or an API-shaped message with
// content blocks; both are accepted.
func extractText(raw map[string]interface{}) string {
	if text, ok := raw["text"].(string); ok {
		return text
	}
	msg, ok := raw["message"].(map[string]interface{})
	if !ok {
		return ""
	}
	content, ok := msg["content"].([]interface{})
	if !ok {
		return ""
	}
	var out string
	for _, item := range content {
		block, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if bt, _ := block["type"].(string); bt == "text" || bt == "thinking" {
			if t, ok := block["text"].(string); ok {
				out += t
			}
		}
	}
	return out
}

// parseToolResult fills in the structured result of a completed tool call.
// Results are keyed by tool kind: write tools report the created file, read
// tools report what was scanned. Unrecognized shapes are left empty.
func parseToolResult(ev *Event, raw map[string]interface{}) {
	result, ok := raw["result"].(map[string]interface{})
	if !ok {
		return
	}
	path, _ := result["path"].(string)

	switch ev.Tool {
	case "write", "Write":
		wr := &WriteResult{Path: path}
		if v, ok := result["lines_created"].(float64); ok {
			wr.LinesCreated = int(v)
		}
		if v, ok := result["bytes"].(float64); ok {
			wr.Bytes = int(v)
		}
		ev.Write = wr
	case "read", "Read":
		rr := &ReadResult{Path: path}
		if v, ok := result["total_lines"].(float64); ok {
			rr.TotalLines = int(v)
		}
		ev.Read = rr
	}
}

// Describe returns a short human-readable label for a tool event, suitable
// for progress display.
func (e Event) Describe() string {
	switch e.Kind {
	case EventToolStart:
		return e.Tool
	case EventToolEnd:
		if e.Write != nil {
			return fmt.Sprintf("%s: %s (%d lines, %d bytes)", e.Tool, e.Write.Path, e.Write.LinesCreated, e.Write.Bytes)
		}
		if e.Read != nil {
			return fmt.Sprintf("%s: %s (%d lines)", e.Tool, e.Read.Path, e.Read.TotalLines)
		}
		return e.Tool
	default:
		return string(e.Kind)
	}
}
