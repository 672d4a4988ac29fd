package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// DefaultBinary is the coding-agent CLI launched for each call.
const DefaultBinary = "claude"

// Options configures one subprocess invocation.
type Options struct {
	// Task is the full task text written to the agent's stdin.
	Task string
	// WorkDir is the working directory the agent is bound to.
	WorkDir string
	// ResumeID resumes a prior logical conversation when non-empty.
	ResumeID string
	// Model overrides the CLI's default model when non-empty.
	Model string
	// Binary overrides the agent executable, mainly for tests.
	Binary string
}

// Result is the terminal outcome of one subprocess call. Exactly one Result
// is produced per started process.
type Result struct {
	// Success is true only on a clean zero exit.
	Success bool
	// Cause is a human-readable failure explanation when Success is false.
	Cause string
	// Model is the model id reported by the init event.
	Model string
	// SessionID is the agent's self-reported correlation id, usable to
	// resume the conversation in a later invocation.
	SessionID string
	// Text is the fully reconciled assistant output.
	Text string
	// DurationMS is the run duration reported by the result event, if any.
	DurationMS int64
	// Killed is true when the process was force-terminated by the caller.
	Killed bool
}

// Process manages one running coding-agent subprocess. Output parsing is
// strictly sequential per process; events arrive on the Events channel in
// generation order and the channel closes when the stream ends.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	ctx    context.Context
	cancel context.CancelFunc

	events     chan Event
	done       chan struct{}
	stderrDone chan struct{}

	mu        sync.Mutex
	stderrBuf []byte
	sessionID string
	model     string
	duration  int64
	killed    bool
	assembler TextAssembler

	waitOnce sync.Once
	result   *Result
}

// Start launches the coding agent for the given options and begins streaming
// its output. The task text is written to the process's stdin, which is then
// closed: the protocol is one request followed by one streamed response. A
// spawn failure is returned here and counts as the call's single terminal
// report; no Result is produced for it.
func Start(ctx context.Context, opts Options) (*Process, error) {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if opts.ResumeID != "" {
		args = append(args, "--resume", opts.ResumeID)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, binary, args...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start agent process: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		ctx:    ctx,
		cancel: cancel,
		events:     make(chan Event, 100),
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
	}

	go func() {
		io.WriteString(stdin, opts.Task)
		stdin.Close()
	}()
	go p.readOutput()
	go p.readStderr()

	return p, nil
}

// Events returns the ordered event stream for this call. The channel closes
// when the process's output ends; consumers drive it to completion before
// calling Wait.
func (p *Process) Events() <-chan Event {
	return p.events
}

// readOutput splits stdout on line boundaries and parses each complete line
// independently. Malformed or unrecognized lines are dropped silently.
func (p *Process) readOutput() {
	defer close(p.events)
	defer close(p.done)

	scanner := newLineScanner(p.stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		ev, ok := ParseEvent(line)
		if !ok {
			continue
		}
		if out, ok := p.absorb(ev); ok {
			select {
			case p.events <- out:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// absorb updates supervisor state from one event and decides whether (and in
// what form) to forward it. Assistant fragments are reduced to their delta so
// downstream consumers never see duplicated text.
func (p *Process) absorb(ev Event) (Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// The first self-reported session id wins and is immutable afterwards.
	if ev.SessionID != "" && p.sessionID == "" {
		p.sessionID = ev.SessionID
	}
	ev.SessionID = p.sessionID

	switch ev.Kind {
	case EventInit:
		if ev.Model != "" {
			p.model = ev.Model
		}
	case EventText:
		delta := p.assembler.Feed(ev.Text)
		if delta == "" {
			return Event{}, false
		}
		ev.Text = delta
	case EventResult:
		p.duration = ev.DurationMS
	}
	return ev, true
}

// readStderr captures stderr for failure classification.
func (p *Process) readStderr() {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(p.stderr)
	buf := make([]byte, 16*1024)
	scanner.Buffer(buf, 256*1024)

	for scanner.Scan() {
		p.mu.Lock()
		p.stderrBuf = append(p.stderrBuf, scanner.Bytes()...)
		p.stderrBuf = append(p.stderrBuf, '\n')
		p.mu.Unlock()
	}
}

// Wait blocks until the process exits and returns its terminal Result.
// It is safe to call from multiple goroutines; the Result is computed once.
func (p *Process) Wait() *Result {
	p.waitOnce.Do(func() {
		// Both pipe readers must hit EOF before cmd.Wait, which closes the
		// pipes; otherwise late stderr could be lost to classification.
		<-p.done
		<-p.stderrDone
		err := p.cmd.Wait()

		p.mu.Lock()
		defer p.mu.Unlock()

		res := &Result{
			Model:      p.model,
			SessionID:  p.sessionID,
			Text:       p.assembler.Text(),
			DurationMS: p.duration,
			Killed:     p.killed,
		}

		switch {
		case p.killed:
			res.Cause = "run aborted"
		case err != nil:
			exitCode := -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			}
			res.Cause = classifyStderr(string(p.stderrBuf), exitCode)
		default:
			res.Success = true
		}

		p.result = res
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Kill force-terminates the process. The eventual OS exit code is ignored;
// the run is reported as aborted regardless.
func (p *Process) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()

	p.cancel()
	if p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// Stderr returns the stderr captured so far.
func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.stderrBuf)
}

// PID returns the subprocess id, or 0 before start.
func (p *Process) PID() int {
	if p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}
