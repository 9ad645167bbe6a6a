package elevation

import (
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/arthur-debert/elevlink/pkg/errors"
	"github.com/arthur-debert/elevlink/pkg/ipc"
)

// Channel is the orchestrator end of an IPC channel. *ipc.Server
// satisfies it.
type Channel interface {
	Address() string
	Events() <-chan ipc.Event
	Send(conn ipc.ConnID, msg ipc.Message) error
	Close() error
}

// ChannelFactory opens a channel named channelID in listening mode
type ChannelFactory func(channelID string) (Channel, error)

// SocketChannels opens unix socket channels inside dir
func SocketChannels(dir string) ChannelFactory {
	return func(channelID string) (Channel, error) {
		srv, err := ipc.Listen(dir, channelID)
		if err != nil {
			return nil, err
		}
		return srv, nil
	}
}

// Bootstrap is everything a worker needs to connect back
type Bootstrap struct {
	ChannelID string
	Address   string
	LogLevel  string
	ParentPID int
}

// Process is a launched worker
type Process interface {
	PID() int
	// Done is closed once the process has exited
	Done() <-chan struct{}
	// Err is the exit error, valid after Done is closed
	Err() error
	Kill() error
}

// Launcher starts the worker process
type Launcher interface {
	Launch(b Bootstrap) (Process, error)
}

// ExecLauncher starts the worker as a child process behind an elevation
// command such as "sudo -n" or "pkexec".
type ExecLauncher struct {
	// Executable is the worker program. Empty means the running binary.
	Executable string
	// Args precede the bootstrap flags. When nil and Executable is empty
	// they default to the hidden "worker" subcommand.
	Args []string
	// ElevateCommand is prepended to the command line. Empty runs the
	// worker with the caller's own privileges.
	ElevateCommand []string
	// Output receives the worker's stdout and stderr. Nil means os.Stderr.
	Output io.Writer
}

// Command returns the full command line for b
func (l *ExecLauncher) Command(b Bootstrap) ([]string, error) {
	exe := l.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrElevation, "failed to resolve worker executable")
		}
		exe = self
	}

	args := l.Args
	if args == nil && l.Executable == "" {
		args = []string{"worker"}
	}

	argv := make([]string, 0, len(l.ElevateCommand)+len(args)+9)
	argv = append(argv, l.ElevateCommand...)
	argv = append(argv, exe)
	argv = append(argv, args...)
	argv = append(argv,
		"--channel", b.ChannelID,
		"--address", b.Address,
		"--parent-pid", strconv.Itoa(b.ParentPID),
	)
	if b.LogLevel != "" {
		argv = append(argv, "--log-level", b.LogLevel)
	}
	return argv, nil
}

// Launch starts the worker and returns without waiting for it
func (l *ExecLauncher) Launch(b Bootstrap) (Process, error) {
	argv, err := l.Command(b)
	if err != nil {
		return nil, err
	}

	out := l.Output
	if out == nil {
		out = os.Stderr
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrElevation, "failed to start worker %s", argv[0])
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) PID() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if stderrors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
