// Package registry holds the process-wide mutable state shared by every
// component: the set of in-flight (and recently finished) agent calls, and
// the cancellation handles for running conversations. Registries are plain
// stateful objects injected by reference rather than ambient globals, so
// tests get a fresh one each.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of one agent subprocess call.
type CallStatus string

const (
	// CallRunning means the subprocess is alive and owned by this call.
	CallRunning CallStatus = "running"
	// CallCompleted means the subprocess finished successfully.
	CallCompleted CallStatus = "completed"
	// CallError means the subprocess failed or was killed.
	CallError CallStatus = "error"
)

// ProcessHandle is the kill surface of a running subprocess. The registry
// owns it exclusively while the call is running.
type ProcessHandle interface {
	Kill() error
}

// DefaultGrace is how long a terminal call record stays visible before it is
// evicted, so observers can still read the final status.
const DefaultGrace = 60 * time.Second

const taskPreviewLen = 200

// CallRecord describes one agent subprocess call. Records returned by the
// registry are copies; the live process handle never leaves it.
type CallRecord struct {
	ID        string
	SessionID string
	Title     string
	Task      string
	WorkDir   string
	StartedAt time.Time
	Status    CallStatus

	proc ProcessHandle
}

// CallRegistry tracks every in-flight and recently finished agent call in
// the process. All operations are atomic under concurrent access.
type CallRegistry struct {
	mu    sync.Mutex
	calls map[string]*CallRecord
	grace time.Duration
}

// NewCallRegistry creates an empty registry. A grace of 0 selects
// DefaultGrace.
func NewCallRegistry(grace time.Duration) *CallRegistry {
	if grace == 0 {
		grace = DefaultGrace
	}
	return &CallRegistry{
		calls: make(map[string]*CallRecord),
		grace: grace,
	}
}

// Register records a new running call and returns its id. The task text is
// truncated for display; sessionID may be empty until the agent reports one.
func (r *CallRegistry) Register(task, workDir, sessionID string) string {
	if len(task) > taskPreviewLen {
		task = task[:taskPreviewLen] + "..."
	}

	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id] = &CallRecord{
		ID:        id,
		SessionID: sessionID,
		Task:      task,
		WorkDir:   workDir,
		StartedAt: time.Now(),
		Status:    CallRunning,
	}
	return id
}

// AttachProcess hands the live process handle to the registry. Only running
// calls can hold a handle.
func (r *CallRegistry) AttachProcess(id string, proc ProcessHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.calls[id]; ok && rec.Status == CallRunning {
		rec.proc = proc
	}
}

// SetSession records the correlation id once the agent reports it.
func (r *CallRegistry) SetSession(id, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.calls[id]; ok {
		rec.SessionID = sessionID
	}
}

// SetTitle attaches a human-readable conversation title to a call.
func (r *CallRegistry) SetTitle(id, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.calls[id]; ok {
		rec.Title = title
	}
}

// Complete marks a call terminal and schedules its eviction after the grace
// period. The process handle is released: handle present ⇔ status running.
func (r *CallRegistry) Complete(id string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.calls[id]
	if !ok || rec.Status != CallRunning {
		return
	}
	if success {
		rec.Status = CallCompleted
	} else {
		rec.Status = CallError
	}
	rec.proc = nil
	r.scheduleEviction(id)
}

// scheduleEviction removes the record after the grace delay. Callers must
// hold r.mu.
func (r *CallRegistry) scheduleEviction(id string) {
	time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.calls, id)
	})
}

// Get returns a copy of the record for id.
func (r *CallRegistry) Get(id string) (CallRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[id]
	if !ok {
		return CallRecord{}, false
	}
	cp := *rec
	cp.proc = nil
	return cp, true
}

// ListRunning returns copies of every call still running.
func (r *CallRegistry) ListRunning() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CallRecord
	for _, rec := range r.calls {
		if rec.Status == CallRunning {
			cp := *rec
			cp.proc = nil
			out = append(out, cp)
		}
	}
	return out
}

// KillBySession force-terminates every running call whose correlation id
// matches and returns how many were killed. Each killed call is marked error
// proactively, regardless of the exit code the OS eventually reports.
// Lookup is a linear scan; concurrent call cardinality is low.
func (r *CallRegistry) KillBySession(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, rec := range r.calls {
		if rec.Status != CallRunning || rec.SessionID != sessionID {
			continue
		}
		if rec.proc != nil {
			rec.proc.Kill()
		}
		rec.Status = CallError
		rec.proc = nil
		r.scheduleEviction(id)
		count++
	}
	return count
}
