package worker

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Command describes how to launch a worker.
type Command struct {
	Path string
	Args []string
	// Env entries are appended to the parent environment.
	Env []string
	Dir string
}

// Pipes are the worker's stream endpoints, borrowed for the duration of one call.
type Pipes struct {
	Stdin  *bufio.Writer
	Stdout *bufio.Reader

	owner *process
}

// Kill terminates the worker that owns p. It is safe to call while another
// goroutine is blocked reading or writing p, and unblocks it.
func (p *Pipes) Kill() {
	if p.owner != nil {
		_ = p.owner.cmd.Process.Kill()
	}
}

type process struct {
	cmd       *exec.Cmd
	path      string
	stdin     *os.File
	stdout    *os.File
	pipes     *Pipes // nil while borrowed
	startedAt time.Time
	exited    chan struct{}
	waitErr   error
}

// spawn starts cmd with stdin and stdout connected to fresh pipes. Stderr is inherited.
// The pipes are created here rather than through exec's StdoutPipe so that reaping
// the child never closes the read end under a pending response.
func spawn(c Command) (*process, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("%w: empty executable path", ErrSpawn)
	}
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawn, err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdinR.Close()
		_ = stdinW.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = os.Stderr
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	err = cmd.Start()
	// The child holds its own copies of these ends.
	_ = stdinR.Close()
	_ = stdoutW.Close()
	if err != nil {
		_ = stdinW.Close()
		_ = stdoutR.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, c.Path, err)
	}

	p := &process{
		cmd:       cmd,
		path:      c.Path,
		stdin:     stdinW,
		stdout:    stdoutR,
		startedAt: time.Now(),
		exited:    make(chan struct{}),
	}
	p.pipes = &Pipes{
		Stdin:  bufio.NewWriter(stdinW),
		Stdout: bufio.NewReader(stdoutR),
		owner:  p,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// terminate closes stdin so a conforming worker exits on EOF. A worker still
// running after grace gets SIGTERM, and after another grace it is killed. It
// reaps the worker and returns the exit error reported by Wait.
func (p *process) terminate(grace time.Duration) error {
	_ = p.stdin.Close()
	if grace <= 0 || !p.waitExit(grace) {
		if grace > 0 {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
		if grace <= 0 || !p.waitExit(grace) {
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
	}
	_ = p.stdout.Close()
	return p.waitErr
}

// waitExit reports whether the worker exited within d.
func (p *process) waitExit(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.exited:
		return true
	case <-timer.C:
		return false
	}
}
