package agent

import "strings"

// TextAssembler reconciles assistant text fragments that may arrive either as
// cumulative overwrites (each fragment restates everything so far) or as
// incremental appends. The mode is inferred per fragment by prefix
// containment: a fragment that starts with everything accumulated so far is
// treated as a cumulative restatement, anything else is appended. Under
// either pattern no text is duplicated or dropped.
//
// The inference is heuristic and can mis-merge adversarial input; the
// upstream protocol does not declare its fragment mode.
type TextAssembler struct {
	cur string
}

// Feed absorbs one fragment and returns the newly added text. The returned
// delta is empty when the fragment restated only what was already known.
func (a *TextAssembler) Feed(fragment string) string {
	if fragment == "" {
		return ""
	}
	if strings.HasPrefix(fragment, a.cur) {
		delta := fragment[len(a.cur):]
		a.cur = fragment
		return delta
	}
	a.cur += fragment
	return fragment
}

// Text returns the full reconciled text so far.
func (a *TextAssembler) Text() string {
	return a.cur
}

// Reset clears the assembler for reuse.
func (a *TextAssembler) Reset() {
	a.cur = ""
}
