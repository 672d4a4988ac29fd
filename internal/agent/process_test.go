package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// fakeAgent writes a shell script that ignores its CLI flags, consumes stdin,
// and replays the given behavior. It stands in for the real agent binary.
func fakeAgent(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake agent scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-agent")
	script := "#!/bin/sh\ncat >/dev/null\n" + body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessSuccessRun(t *testing.T) {
	bin := fakeAgent(t, `
printf '%s\n' '{"type":"system","subtype":"init","model":"claude-sonnet-4","session_id":"sess-42"}'
printf '%s\n' '{"type":"assistant","text":"step one"}'
printf '%s\n' '{"type":"result","duration_ms":25}'
exit 0
`)

	p, err := Start(context.Background(), Options{Task: "do the thing", Binary: bin})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var kinds []EventKind
	for ev := range p.Events() {
		kinds = append(kinds, ev.Kind)
	}
	res := p.Wait()

	if !res.Success {
		t.Fatalf("run failed: %s", res.Cause)
	}
	if res.SessionID != "sess-42" {
		t.Errorf("session id = %q", res.SessionID)
	}
	if res.Model != "claude-sonnet-4" {
		t.Errorf("model = %q", res.Model)
	}
	if res.Text != "step one" {
		t.Errorf("text = %q", res.Text)
	}
	if res.DurationMS != 25 {
		t.Errorf("duration = %d", res.DurationMS)
	}
	if len(kinds) != 3 {
		t.Errorf("saw %d events, want 3", len(kinds))
	}
}

func TestProcessCumulativeFragmentsNotDuplicated(t *testing.T) {
	bin := fakeAgent(t, `
printf '%s\n' '{"type":"assistant","text":"alpha"}'
printf '%s\n' '{"type":"assistant","text":"alpha beta"}'
printf '%s\n' '{"type":"assistant","text":"alpha beta"}'
exit 0
`)

	p, err := Start(context.Background(), Options{Task: "t", Binary: bin})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var total string
	for ev := range p.Events() {
		if ev.Kind == EventText {
			total += ev.Text
		}
	}
	res := p.Wait()

	if total != "alpha beta" {
		t.Errorf("streamed text = %q, want %q", total, "alpha beta")
	}
	if res.Text != "alpha beta" {
		t.Errorf("final text = %q", res.Text)
	}
}

func TestProcessRateLimitClassification(t *testing.T) {
	bin := fakeAgent(t, `
echo "error: rate limit exceeded, retry later" >&2
exit 1
`)

	p, err := Start(context.Background(), Options{Task: "t", Binary: bin})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range p.Events() {
	}
	res := p.Wait()

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Cause != CauseRateLimited {
		t.Errorf("cause = %q, want canned rate-limit message", res.Cause)
	}
}

func TestProcessSessionIDImmutable(t *testing.T) {
	bin := fakeAgent(t, `
printf '%s\n' '{"type":"system","subtype":"init","model":"m","session_id":"first"}'
printf '%s\n' '{"type":"assistant","text":"x","session_id":"second"}'
exit 0
`)

	p, err := Start(context.Background(), Options{Task: "t", Binary: bin})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for ev := range p.Events() {
		if ev.SessionID != "first" {
			t.Errorf("event session id = %q, want %q", ev.SessionID, "first")
		}
	}
	if res := p.Wait(); res.SessionID != "first" {
		t.Errorf("result session id = %q", res.SessionID)
	}
}

func TestProcessKill(t *testing.T) {
	bin := fakeAgent(t, `
printf '%s\n' '{"type":"assistant","text":"starting"}'
sleep 30
exit 0
`)

	p, err := Start(context.Background(), Options{Task: "t", Binary: bin})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Drain events in the background so the kill isn't blocked on a full
	// channel.
	go func() {
		for range p.Events() {
		}
	}()

	time.Sleep(100 * time.Millisecond)
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	res := p.Wait()
	if res.Success {
		t.Fatal("killed run reported success")
	}
	if !res.Killed {
		t.Error("Killed flag not set")
	}
	if res.Cause != "run aborted" {
		t.Errorf("cause = %q", res.Cause)
	}
}

func TestProcessSpawnFailure(t *testing.T) {
	_, err := Start(context.Background(), Options{
		Task:   "t",
		Binary: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	if err == nil {
		t.Fatal("expected spawn error")
	}
}

func TestProcessLateStderrClassified(t *testing.T) {
	// A burst of stderr written right before a non-zero exit must still be
	// classified; the decisive line arrives last.
	bin := fakeAgent(t, `
i=0
while [ $i -lt 200 ]; do
  echo "noise line $i" >&2
  i=$((i+1))
done
echo "error: rate limit exceeded" >&2
exit 1
`)

	p, err := Start(context.Background(), Options{Task: "t", Binary: bin})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range p.Events() {
	}
	res := p.Wait()

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Cause != CauseRateLimited {
		t.Errorf("cause = %q, want canned rate-limit message", res.Cause)
	}
}
