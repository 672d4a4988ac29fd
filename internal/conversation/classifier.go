package conversation

import (
	"strings"

	"github.com/ShayCichocki/helmsman/pkg/models"
)

// Classifier infers the agent's apparent state from its latest output. The
// classification feeds progress display only; termination decisions belong
// to the decision service, never to the classifier.
type Classifier interface {
	Classify(output string) models.AgentState
}

// HeuristicClassifier classifies by substring rules over the lowercased
// output. It is the default; callers can swap in a model-backed classifier
// without touching the loop.
type HeuristicClassifier struct{}

// stateRule is one ordered classification rule. Earlier rules win.
type stateRule struct {
	state   models.AgentState
	phrases []string
}

var stateRules = []stateRule{
	{models.StateBlocked, []string{
		"i cannot proceed",
		"i can't proceed",
		"i am blocked",
		"i'm blocked",
		"unable to continue",
		"cannot continue",
	}},
	{models.StateAsking, []string{
		"should i",
		"would you like",
		"do you want",
		"which option",
		"please confirm",
		"let me know",
		"?",
	}},
	{models.StateCompleted, []string{
		"task is complete",
		"task is now complete",
		"all done",
		"everything is done",
		"finished the task",
		"completed the task",
		"successfully completed",
	}},
	{models.StatePartial, []string{
		"partially complete",
		"still remaining",
		"remaining steps",
		"not yet done",
		"next i will",
		"next, i will",
		"next step",
	}},
	{models.StateWorking, []string{
		"i created",
		"i added",
		"i updated",
		"i modified",
		"i fixed",
		"i implemented",
		"i wrote",
		"working on",
		"in progress",
	}},
}

// Classify applies the rules in order and returns the first match, falling
// back to UNKNOWN when nothing fires.
func (HeuristicClassifier) Classify(output string) models.AgentState {
	text := strings.ToLower(output)
	if strings.TrimSpace(text) == "" {
		return models.StateUnknown
	}
	for _, rule := range stateRules {
		for _, p := range rule.phrases {
			if strings.Contains(text, p) {
				return rule.state
			}
		}
	}
	return models.StateUnknown
}
