package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ShayCichocki/helmsman/internal/agent"
	"github.com/ShayCichocki/helmsman/internal/decision"
	"github.com/ShayCichocki/helmsman/internal/registry"
	"github.com/ShayCichocki/helmsman/pkg/models"
)

// fakeCall is a pre-scripted agent subprocess.
type fakeCall struct {
	events chan agent.Event
	result *agent.Result
	killed bool
}

func newFakeCall(result *agent.Result, events ...agent.Event) *fakeCall {
	ch := make(chan agent.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &fakeCall{events: ch, result: result}
}

func (c *fakeCall) Events() <-chan agent.Event { return c.events }
func (c *fakeCall) Wait() *agent.Result        { return c.result }
func (c *fakeCall) Kill() error                { c.killed = true; return nil }

// fakeLauncher hands out scripted calls in order and records every prompt.
type fakeLauncher struct {
	mu      sync.Mutex
	calls   []*fakeCall
	prompts []string
	opts    []agent.Options
}

func (l *fakeLauncher) launch(_ context.Context, opts agent.Options) (AgentCall, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return nil, errors.New("no more scripted calls")
	}
	call := l.calls[0]
	l.calls = l.calls[1:]
	l.prompts = append(l.prompts, opts.Task)
	l.opts = append(l.opts, opts)
	return call, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

// fakeDecider replays scripted responses in order.
type fakeDecider struct {
	mu        sync.Mutex
	responses []*decision.Response
	requests  []decision.Request
}

func (d *fakeDecider) Decide(_ context.Context, req decision.Request) (*decision.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if len(d.responses) == 0 {
		return nil, errors.New("no more scripted responses")
	}
	resp := d.responses[0]
	d.responses = d.responses[1:]
	return resp, nil
}

func okCall(text string) *fakeCall {
	return newFakeCall(&agent.Result{Success: true, Text: text})
}

func TestRunThreeTurnCompletion(t *testing.T) {
	launcher := &fakeLauncher{calls: []*fakeCall{
		okCall("I created file X."),
		okCall("I added the tests."),
		okCall("I ran the tests, everything passes."),
	}}
	decider := &fakeDecider{responses: []*decision.Response{
		{Text: "<checklist>\n- [x] create file X\n- [ ] add tests\n- [ ] run tests\n</checklist>\nAdd the tests."},
		{Text: "<checklist>\n- [x] create file X\n- [x] add tests\n- [ ] run tests\n</checklist>\nRun the tests."},
		{Text: "<checklist>\n- [x] create file X\n- [x] add tests\n- [x] run tests\n</checklist>\nMISSION COMPLETE"},
	}}

	d := &Driver{Launch: launcher.launch, Decider: decider}
	res, err := d.Run(context.Background(), RunInput{Task: "create file X with tests"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Outcome != OutcomeCompleted || !res.Success {
		t.Errorf("outcome = %v success = %v, want completed/true", res.Outcome, res.Success)
	}
	if res.Turns != 3 {
		t.Errorf("turns = %d, want 3", res.Turns)
	}
	if launcher.launches() != 3 {
		t.Errorf("launches = %d, want 3", launcher.launches())
	}
	if strings.Contains(res.Artifact, "[ ]") {
		t.Errorf("final artifact has unchecked items:\n%s", res.Artifact)
	}
	last := res.Transcript[len(res.Transcript)-1]
	if last.Source != models.SourcePolicy {
		t.Errorf("last transcript message source = %v", last.Source)
	}
}

func TestRunForwardsInstructionsVerbatim(t *testing.T) {
	launcher := &fakeLauncher{calls: []*fakeCall{okCall("did step one"), okCall("did step two")}}
	decider := &fakeDecider{responses: []*decision.Response{
		{Text: "Do the second step now"},
		{Text: "mission complete"},
	}}

	d := &Driver{Launch: launcher.launch, Decider: decider}
	if _, err := d.Run(context.Background(), RunInput{Task: "two step task"}); err != nil {
		t.Fatal(err)
	}

	if got := launcher.prompts[1]; got != "Do the second step now" {
		t.Errorf("second prompt = %q", got)
	}
	// Every forwarded prompt is non-trivial.
	for i, p := range launcher.prompts {
		if len(strings.TrimSpace(p)) < minInstructionLen {
			t.Errorf("prompt %d too short: %q", i, p)
		}
	}
}

func TestRunHaltsOnEmptyInstruction(t *testing.T) {
	launcher := &fakeLauncher{calls: []*fakeCall{okCall("done something"), okCall("never reached")}}
	decider := &fakeDecider{responses: []*decision.Response{
		{Text: "<checklist>\n- [ ] step\n</checklist>\n  .  "},
	}}

	d := &Driver{Launch: launcher.launch, Decider: decider}
	res, err := d.Run(context.Background(), RunInput{Task: "some task"})
	if err != nil {
		t.Fatal(err)
	}

	if res.Outcome != OutcomeNoInstruction || res.Success {
		t.Errorf("outcome = %v success = %v, want no_instruction/false", res.Outcome, res.Success)
	}
	if launcher.launches() != 1 {
		t.Errorf("launches = %d, want 1: empty instruction must not be forwarded", launcher.launches())
	}
}

func TestRunCompletionPhraseVariants(t *testing.T) {
	variants := []string{
		"MISSION COMPLETE",
		"Mission Complete!",
		"mission   complete",
		"The work is done.\nMission complete.",
	}
	for _, v := range variants {
		launcher := &fakeLauncher{calls: []*fakeCall{okCall("all finished")}}
		decider := &fakeDecider{responses: []*decision.Response{{Text: v}}}

		d := &Driver{Launch: launcher.launch, Decider: decider}
		res, err := d.Run(context.Background(), RunInput{Task: "small task"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Outcome != OutcomeCompleted {
			t.Errorf("verdict %q: outcome = %v, want completed", v, res.Outcome)
		}
		if res.Turns != 1 {
			t.Errorf("verdict %q: turns = %d, want 1", v, res.Turns)
		}
	}
}

func TestRunTurnBudgetExhausted(t *testing.T) {
	var calls []*fakeCall
	var responses []*decision.Response
	for i := 0; i < 5; i++ {
		calls = append(calls, okCall(fmt.Sprintf("progress %d", i)))
		responses = append(responses, &decision.Response{Text: "Keep going with the next step"})
	}

	launcher := &fakeLauncher{calls: calls}
	decider := &fakeDecider{responses: responses}
	d := &Driver{Launch: launcher.launch, Decider: decider, TurnBudget: 3}

	res, err := d.Run(context.Background(), RunInput{Task: "endless task"})
	if err != nil {
		t.Fatal(err)
	}

	if res.Outcome != OutcomeTurnBudget || res.Success {
		t.Errorf("outcome = %v success = %v, want turn_budget_exhausted/false", res.Outcome, res.Success)
	}
	if res.Turns != 3 || launcher.launches() != 3 {
		t.Errorf("turns = %d launches = %d, want 3/3", res.Turns, launcher.launches())
	}
}

func TestRunAgentFailureSurfacesCause(t *testing.T) {
	launcher := &fakeLauncher{calls: []*fakeCall{
		newFakeCall(&agent.Result{Success: false, Cause: "the agent hit its usage limit"}),
	}}
	decider := &fakeDecider{}

	d := &Driver{Launch: launcher.launch, Decider: decider}
	res, err := d.Run(context.Background(), RunInput{Task: "doomed task"})
	if err != nil {
		t.Fatal(err)
	}

	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %v, want failed", res.Outcome)
	}
	if res.FailureCause != "the agent hit its usage limit" {
		t.Errorf("cause = %q", res.FailureCause)
	}
	last := res.Transcript[len(res.Transcript)-1]
	if last.Text != res.FailureCause {
		t.Errorf("terminal transcript message = %q", last.Text)
	}
}

func TestRunKilledAgentReportsAborted(t *testing.T) {
	launcher := &fakeLauncher{calls: []*fakeCall{
		newFakeCall(&agent.Result{Killed: true, Cause: "run aborted"}),
	}}
	d := &Driver{Launch: launcher.launch, Decider: &fakeDecider{}}

	res, err := d.Run(context.Background(), RunInput{Task: "aborted task"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeAborted || res.Success {
		t.Errorf("outcome = %v success = %v, want aborted/false", res.Outcome, res.Success)
	}
}

func TestRunAbortRegistryCancels(t *testing.T) {
	aborts := registry.NewAbortRegistry()
	launcher := &fakeLauncher{calls: []*fakeCall{okCall("step done")}}
	decider := &fakeDecider{responses: []*decision.Response{
		{Text: "Keep going with the next step"},
	}}

	d := &Driver{Launch: launcher.launch, Decider: decider, Aborts: aborts}

	// Abort between turn one and turn two: the driver observes the canceled
	// context before the second launch.
	origLaunch := d.Launch
	d.Launch = func(ctx context.Context, opts agent.Options) (AgentCall, error) {
		defer aborts.Abort("sess-1")
		return origLaunch(ctx, opts)
	}

	res, err := d.Run(context.Background(), RunInput{SessionID: "sess-1", Task: "long task"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeAborted {
		t.Errorf("outcome = %v, want aborted", res.Outcome)
	}
	if res.Turns != 1 {
		t.Errorf("turns = %d, want 1", res.Turns)
	}
	if aborts.Has("sess-1") {
		t.Error("abort handle leaked after run")
	}
}

func TestRunNoDuplicateArtifactEvents(t *testing.T) {
	checklist := "<checklist>\n- [ ] only step\n</checklist>\n"
	launcher := &fakeLauncher{calls: []*fakeCall{okCall("a"), okCall("b"), okCall("c")}}
	decider := &fakeDecider{responses: []*decision.Response{
		{Text: checklist + "Do the step again"},
		{Text: checklist + "Do the step once more"},
		{Text: checklist + "mission complete"},
	}}

	var artifactEvents int
	d := &Driver{
		Launch:  launcher.launch,
		Decider: decider,
		Sink: func(ev ProgressEvent) {
			if ev.Kind == ProgressArtifactUpdate {
				artifactEvents++
			}
		},
	}

	if _, err := d.Run(context.Background(), RunInput{Task: "repetitive task"}); err != nil {
		t.Fatal(err)
	}
	if artifactEvents != 1 {
		t.Errorf("artifact events = %d, want 1 for an unchanged checklist", artifactEvents)
	}
}

func TestRunPropagatesResumeID(t *testing.T) {
	first := newFakeCall(
		&agent.Result{Success: true, Text: "started", SessionID: "corr-9"},
		agent.Event{Kind: agent.EventInit, Model: "m1", SessionID: "corr-9"},
	)
	launcher := &fakeLauncher{calls: []*fakeCall{first, okCall("continued")}}
	decider := &fakeDecider{responses: []*decision.Response{
		{Text: "Continue with the next step"},
		{Text: "mission complete"},
	}}

	d := &Driver{Launch: launcher.launch, Decider: decider}
	res, err := d.Run(context.Background(), RunInput{Task: "resumable task"})
	if err != nil {
		t.Fatal(err)
	}

	if res.ResumeID != "corr-9" {
		t.Errorf("resume id = %q, want corr-9", res.ResumeID)
	}
	if got := launcher.opts[1].ResumeID; got != "corr-9" {
		t.Errorf("second launch resume id = %q, want corr-9", got)
	}
}

func TestRunRegistryLifecycle(t *testing.T) {
	calls := registry.NewCallRegistry(0)
	launcher := &fakeLauncher{calls: []*fakeCall{okCall("done")}}
	decider := &fakeDecider{responses: []*decision.Response{{Text: "mission complete"}}}

	d := &Driver{Launch: launcher.launch, Decider: decider, Calls: calls}
	if _, err := d.Run(context.Background(), RunInput{Task: "tracked task"}); err != nil {
		t.Fatal(err)
	}

	if running := calls.ListRunning(); len(running) != 0 {
		t.Errorf("%d calls still running after run finished", len(running))
	}
}

func TestRunPendingCompletionShortCircuits(t *testing.T) {
	launcher := &fakeLauncher{}
	decider := &fakeDecider{}

	d := &Driver{Launch: launcher.launch, Decider: decider}
	res, err := d.Run(context.Background(), RunInput{Task: "MISSION COMPLETE"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Outcome != OutcomeCompleted || !res.Success {
		t.Errorf("outcome = %v success = %v, want completed/true", res.Outcome, res.Success)
	}
	if launcher.launches() != 0 {
		t.Errorf("launches = %d, want 0", launcher.launches())
	}
	if res.Turns != 0 {
		t.Errorf("turns = %d, want 0", res.Turns)
	}
	last := res.Transcript[len(res.Transcript)-1]
	if last.Source != models.SourcePolicy {
		t.Errorf("last transcript message source = %v", last.Source)
	}
}
