package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	perrors "github.com/dusk-indust/polyparse/internal/errors"
)

// Compile-time check.
var _ Caller = (*Process)(nil)

// ProcessConfig describes a long-lived helper process.
type ProcessConfig struct {
	// Name identifies the helper; descriptors naming the same helper share
	// one process.
	Name    string
	Command string
	Args    []string
	Dir     string
	// Env is appended to the current environment.
	Env []string
	// Timeout bounds every request. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxRestarts bounds how often a helper that exited is started again.
	MaxRestarts int
}

// DefaultTimeout bounds a request when the config sets none.
const DefaultTimeout = 10 * time.Second

// maxLine is the largest response line accepted from a helper.
const maxLine = 64 << 20

// Process is a Caller backed by a helper process speaking newline-delimited
// JSON over stdin and stdout. The process starts on the first call and is
// restarted on a later call if it exits, up to MaxRestarts times.
type Process struct {
	cfg    ProcessConfig
	log    *logrus.Entry
	nextID atomic.Int64

	mu      sync.Mutex // guards the fields below
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	exited  chan struct{} // closed when the current process exits
	starts  int
	closed  bool
	pending map[int64]chan *Response

	writeMu sync.Mutex
}

// ProcessOption configures a Process.
type ProcessOption func(*Process)

// WithLogger sets the process logger.
func WithLogger(log *logrus.Entry) ProcessOption {
	return func(p *Process) { p.log = log }
}

// NewProcess returns a Process for cfg. Nothing is started until Call.
func NewProcess(cfg ProcessConfig, opts ...ProcessOption) *Process {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	p := &Process{
		cfg:     cfg,
		log:     logrus.StandardLogger().WithField("component", "bridge").WithField("helper", cfg.Name),
		pending: make(map[int64]chan *Response),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Call sends req and waits for the response with the same id, the request
// timeout, the context, or the helper's exit, whichever comes first.
func (p *Process) Call(ctx context.Context, req Request) (*Response, error) {
	exited, err := p.ensureRunning()
	if err != nil {
		return nil, err
	}

	req.ID = p.nextID.Add(1)
	ch := make(chan *Response, 1)
	if err := p.register(req.ID, ch); err != nil {
		return nil, err
	}
	defer p.unregister(req.ID)

	line, err := json.Marshal(req)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.Internal, "bridge: marshal request")
	}
	if err := p.write(append(line, '\n')); err != nil {
		// A broken pipe means the helper died between start and write.
		return nil, p.commFailure(fmt.Errorf("%w: %w", ErrHelperExited, err), "write request %d", req.ID)
	}

	timer := time.NewTimer(p.cfg.Timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return normalize(resp, req.Command), nil
	case <-timer.C:
		return nil, p.commFailure(ErrTimeout, "request %d (%s) after %s", req.ID, req.Command, p.cfg.Timeout)
	case <-ctx.Done():
		return nil, p.commFailure(ctx.Err(), "request %d (%s) cancelled", req.ID, req.Command)
	case <-exited:
		// A response may have raced the exit.
		select {
		case resp := <-ch:
			return normalize(resp, req.Command), nil
		default:
		}
		return nil, p.commFailure(ErrHelperExited, "request %d (%s)", req.ID, req.Command)
	}
}

func (p *Process) commFailure(err error, format string, args ...any) error {
	return perrors.Wrap(err, perrors.BackendCommunicationFailure,
		fmt.Sprintf("helper %s: ", p.cfg.Name)+fmt.Sprintf(format, args...)).
		WithContext("helper", p.cfg.Name)
}

func (p *Process) register(id int64, ch chan *Response) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.pending[id]; dup {
		return p.commFailure(ErrDuplicateRequest, "id %d", id)
	}
	p.pending[id] = ch
	return nil
}

func (p *Process) unregister(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
}

func (p *Process) write(line []byte) error {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return ErrHelperExited
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := stdin.Write(line)
	return err
}

// ensureRunning starts the helper if it is not running and returns the
// channel closed when the running instance exits.
func (p *Process) ensureRunning() (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, p.commFailure(ErrClosed, "call after close")
	}
	if p.exited != nil {
		select {
		case <-p.exited:
		default:
			return p.exited, nil
		}
	}
	if p.starts > p.cfg.MaxRestarts {
		return nil, p.commFailure(ErrHelperExited, "restart limit %d reached", p.cfg.MaxRestarts)
	}
	if err := p.startLocked(); err != nil {
		return nil, p.commFailure(err, "start %s", p.cfg.Command)
	}
	return p.exited, nil
}

func (p *Process) startLocked() error {
	p.starts++
	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir
	cmd.Env = append(os.Environ(), p.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	exited := make(chan struct{})
	p.cmd, p.stdin, p.exited = cmd, stdin, exited
	p.log.WithFields(logrus.Fields{"pid": cmd.Process.Pid, "start": p.starts}).Info("helper started")

	go p.drainStderr(stderr)
	go p.readLoop(cmd, stdout, exited)
	return nil
}

// readLoop delivers responses by id until stdout closes. Lines that are not
// JSON or that carry an id nobody waits for are dropped.
func (p *Process) readLoop(cmd *exec.Cmd, stdout io.Reader, exited chan struct{}) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	for sc.Scan() {
		var resp Response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			p.log.WithError(err).Debug("dropping non-JSON helper output")
			continue
		}
		p.mu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.mu.Unlock()
		if !ok {
			p.log.WithField("id", resp.ID).Debug("dropping response for unknown request")
			continue
		}
		ch <- &resp
	}
	err := cmd.Wait()

	p.mu.Lock()
	if p.cmd == cmd {
		p.stdin = nil
	}
	closed := p.closed
	p.mu.Unlock()
	close(exited)

	entry := p.log.WithField("pid", cmd.Process.Pid)
	if err != nil && !closed {
		entry.WithError(err).Warn("helper exited")
	} else {
		entry.Debug("helper exited")
	}
}

func (p *Process) drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.log.WithField("stream", "stderr").Debug(sc.Text())
	}
}

// Close asks the helper to shut down, then kills it if it has not exited
// within a second.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cmd, stdin, exited := p.cmd, p.stdin, p.exited
	p.mu.Unlock()

	if cmd == nil || stdin == nil {
		return nil
	}
	line, _ := json.Marshal(Request{ID: p.nextID.Add(1), Command: CommandShutdown})
	p.writeMu.Lock()
	_, _ = stdin.Write(append(line, '\n'))
	err := stdin.Close()
	p.writeMu.Unlock()

	select {
	case <-exited:
	case <-time.After(time.Second):
		_ = cmd.Process.Kill()
		<-exited
	}
	return err
}
