package conversation

import (
	"regexp"
	"strings"
)

// completionPhrase is the only signal that terminates a conversation as
// completed. Detection is case- and whitespace-insensitive.
const completionPhrase = "mission complete"

const (
	checklistOpen  = "<checklist>"
	checklistClose = "</checklist>"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalize lowercases text and collapses whitespace runs to single spaces.
func normalize(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(s), " ")
}

// containsCompletionPhrase reports whether text carries the completion
// phrase, tolerating case and whitespace variation ("Mission Complete",
// "mission   complete!").
func containsCompletionPhrase(s string) bool {
	return strings.Contains(normalize(s), completionPhrase)
}

// extractChecklist splits a decision response into the delimited checklist
// block (without its tags, trimmed) and the remaining text. When no complete
// block is present the artifact is empty and the input is returned intact.
func extractChecklist(s string) (artifact, rest string) {
	start := strings.Index(s, checklistOpen)
	if start < 0 {
		return "", s
	}
	end := strings.Index(s[start:], checklistClose)
	if end < 0 {
		return "", s
	}
	end += start

	artifact = strings.TrimSpace(s[start+len(checklistOpen) : end])
	rest = s[:start] + s[end+len(checklistClose):]
	return artifact, rest
}

// minInstructionLen is the threshold below which a cleaned instruction is
// considered non-actionable; the loop halts instead of forwarding it.
const minInstructionLen = 5

// cleanInstruction strips the completion phrase and leftover punctuation
// noise from the residual decision text, yielding the next instruction for
// the agent.
func cleanInstruction(s string) string {
	if containsCompletionPhrase(s) {
		// Collapse whitespace so the phrase is findable verbatim.
		s = whitespaceRun.ReplaceAllString(s, " ")
		for {
			idx := strings.Index(strings.ToLower(s), completionPhrase)
			if idx < 0 {
				break
			}
			s = s[:idx] + s[idx+len(completionPhrase):]
		}
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "!.:"))
}
