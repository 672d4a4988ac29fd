package registry

import (
	"testing"
	"time"
)

type fakeProc struct {
	killed bool
}

func (f *fakeProc) Kill() error {
	f.killed = true
	return nil
}

func TestRegisterAndListRunning(t *testing.T) {
	r := NewCallRegistry(time.Minute)

	id := r.Register("build the parser", "/tmp/work", "")
	if id == "" {
		t.Fatal("empty call id")
	}

	running := r.ListRunning()
	if len(running) != 1 || running[0].ID != id {
		t.Fatalf("ListRunning = %+v", running)
	}
	if running[0].Status != CallRunning {
		t.Errorf("status = %s", running[0].Status)
	}
}

func TestRegisterTruncatesTask(t *testing.T) {
	r := NewCallRegistry(time.Minute)
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}

	id := r.Register(string(long), "", "")
	rec, _ := r.Get(id)
	if len(rec.Task) != taskPreviewLen+3 {
		t.Errorf("task preview length = %d", len(rec.Task))
	}
}

func TestCompleteLifecycle(t *testing.T) {
	grace := 50 * time.Millisecond
	r := NewCallRegistry(grace)

	id := r.Register("task", "", "")
	r.Complete(id, true)

	if len(r.ListRunning()) != 0 {
		t.Error("completed call still listed as running")
	}

	// Terminal state remains visible during the grace period.
	rec, ok := r.Get(id)
	if !ok {
		t.Fatal("record evicted before grace period")
	}
	if rec.Status != CallCompleted {
		t.Errorf("status = %s, want completed", rec.Status)
	}

	time.Sleep(grace + 50*time.Millisecond)
	if _, ok := r.Get(id); ok {
		t.Error("record still present after grace period")
	}
}

func TestCompleteFailureMarksError(t *testing.T) {
	r := NewCallRegistry(time.Minute)
	id := r.Register("task", "", "")
	r.Complete(id, false)

	rec, _ := r.Get(id)
	if rec.Status != CallError {
		t.Errorf("status = %s, want error", rec.Status)
	}
}

func TestKillBySession(t *testing.T) {
	r := NewCallRegistry(time.Minute)

	procs := make([]*fakeProc, 3)
	for i := range procs {
		procs[i] = &fakeProc{}
		id := r.Register("task", "", "sess-a")
		r.AttachProcess(id, procs[i])
	}
	otherProc := &fakeProc{}
	otherID := r.Register("task", "", "sess-b")
	r.AttachProcess(otherID, otherProc)

	if n := r.KillBySession("sess-a"); n != 3 {
		t.Fatalf("KillBySession = %d, want 3", n)
	}
	for i, p := range procs {
		if !p.killed {
			t.Errorf("process %d not killed", i)
		}
	}
	if otherProc.killed {
		t.Error("unrelated process killed")
	}

	// Every killed call is terminal with status error.
	if len(r.ListRunning()) != 1 {
		t.Errorf("running after kill = %d, want 1", len(r.ListRunning()))
	}

	// A repeat kill finds nothing left to do.
	if n := r.KillBySession("sess-a"); n != 0 {
		t.Errorf("repeat KillBySession = %d, want 0", n)
	}
}

func TestSetSessionAndTitle(t *testing.T) {
	r := NewCallRegistry(time.Minute)
	id := r.Register("task", "", "")
	r.SetSession(id, "sess-9")
	r.SetTitle(id, "Fix the build")

	rec, _ := r.Get(id)
	if rec.SessionID != "sess-9" || rec.Title != "Fix the build" {
		t.Errorf("record = %+v", rec)
	}
}

func TestCompleteUnknownIDIsNoop(t *testing.T) {
	r := NewCallRegistry(time.Minute)
	r.Complete("missing", true)
}
