package agent

import (
	"fmt"
	"strings"
)

// Canned failure causes derived from stderr. Matching is ordered: the first
// pattern found in the captured stderr wins.
const (
	CauseQuotaExhausted = "Claude usage limit reached. The account has run out of quota; try again after the limit resets."
	CauseRateLimited    = "Claude is rate limited right now. Wait a moment before dispatching more work."
	CauseAuthFailed     = "Authentication with Claude failed. Check the CLI login or API credentials."
	CauseNetworkFailure = "Network failure while talking to Claude. Check connectivity and try again."
)

// stderrPatterns maps ordered substring probes to canned causes.
var stderrPatterns = []struct {
	substrings []string
	cause      string
}{
	{[]string{"usage limit", "quota", "out of credits", "capacity pool"}, CauseQuotaExhausted},
	{[]string{"rate limit", "429", "too many requests"}, CauseRateLimited},
	{[]string{"unauthorized", "authentication", "invalid api key", "401"}, CauseAuthFailed},
	{[]string{"network", "connection refused", "connection reset", "dns", "timed out"}, CauseNetworkFailure},
}

const maxCauseLen = 200

// classifyStderr derives a human-readable failure cause from captured stderr
// and the exit code. Classification is best effort: known failure families
// get a canned message, otherwise the first stderr line is used, truncated,
// and a generic exit message is the last resort.
func classifyStderr(stderr string, exitCode int) string {
	lower := strings.ToLower(stderr)
	for _, p := range stderrPatterns {
		for _, s := range p.substrings {
			if strings.Contains(lower, s) {
				return p.cause
			}
		}
	}

	if line := firstLine(stderr); line != "" {
		if len(line) > maxCauseLen {
			line = line[:maxCauseLen] + "..."
		}
		return line
	}

	return fmt.Sprintf("agent process exited with code %d", exitCode)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
