package elevation

import (
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/elevlink/pkg/ipc"
)

const workerConn ipc.ConnID = 1

// fakeChannel records what the session sends. Its event stream is
// unbuffered, so a push returns only once the session loop has taken the
// event, and the loop handles it before serving the next API call.
type fakeChannel struct {
	id     string
	events chan ipc.Event

	mu      sync.Mutex
	sent    []ipc.Message
	closed  bool
	sendErr error
}

func (c *fakeChannel) Address() string          { return "fake://" + c.id }
func (c *fakeChannel) Events() <-chan ipc.Event { return c.events }

func (c *fakeChannel) Send(conn ipc.ConnID, msg ipc.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return stderrors.New("channel closed")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) messages() []ipc.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ipc.Message(nil), c.sent...)
}

func (c *fakeChannel) setSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

type fakeProcess struct {
	pid    int
	done   chan struct{}
	once   sync.Once
	err    error
	killed atomic.Bool
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Err() error            { return p.err }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.exit(stderrors.New("killed"))
	return nil
}

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

type fakeLauncher struct {
	mu        sync.Mutex
	launches  []Bootstrap
	processes []*fakeProcess
	err       error
	// onLaunch runs in its own goroutine after a successful launch
	onLaunch func(b Bootstrap)
}

func (l *fakeLauncher) Launch(b Bootstrap) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(1000 + len(l.launches))
	l.launches = append(l.launches, b)
	l.processes = append(l.processes, p)
	if l.onLaunch != nil {
		go l.onLaunch(b)
	}
	return p, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

func (l *fakeLauncher) lastProcess() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processes[len(l.processes)-1]
}

// harness wires a Session to fakes
type harness struct {
	t        *testing.T
	session  *Session
	launcher *fakeLauncher

	mu          sync.Mutex
	eventBuffer int
	channels    []*fakeChannel
	channelErr error
	abandoned  [][]string
}

type harnessOption func(*harness, *Options)

// withManualInit leaves the initialised message to the test
func withManualInit() harnessOption {
	return func(h *harness, _ *Options) { h.launcher.onLaunch = nil }
}

func withInitTimeout(d time.Duration) harnessOption {
	return func(_ *harness, o *Options) { o.InitTimeout = d }
}

func withExitGrace(d time.Duration) harnessOption {
	return func(_ *harness, o *Options) { o.ExitGrace = d }
}

// withBufferedEvents lets events queue on the channel the way the socket
// server queues them
func withBufferedEvents(n int) harnessOption {
	return func(h *harness, _ *Options) { h.eventBuffer = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{t: t, launcher: &fakeLauncher{}}
	h.launcher.onLaunch = func(b Bootstrap) {
		h.push(ipc.Event{Kind: ipc.EventInitialised, Conn: workerConn, Message: ipc.Initialised(b.ChannelID, 4242)})
	}

	o := Options{
		Channels: func(channelID string) (Channel, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.channelErr != nil {
				return nil, h.channelErr
			}
			c := &fakeChannel{id: channelID, events: make(chan ipc.Event, h.eventBuffer)}
			h.channels = append(h.channels, c)
			return c, nil
		},
		Launcher:    h.launcher,
		InitTimeout: 5 * time.Second,
		ExitGrace:   20 * time.Millisecond,
		OnAbandoned: func(paths []string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.abandoned = append(h.abandoned, paths)
		},
	}
	for _, opt := range opts {
		opt(h, &o)
	}

	h.session = NewSession(o)
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) channel() *fakeChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.channels, "no channel has been opened")
	return h.channels[len(h.channels)-1]
}

func (h *harness) channelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

func (h *harness) abandonedPaths() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.abandoned
}

// push delivers an event on the newest channel
func (h *harness) push(ev ipc.Event) {
	c := h.channel()
	select {
	case c.events <- ev:
	case <-time.After(5 * time.Second):
		h.t.Errorf("session did not take %s event", ev.Kind)
	}
}

func (h *harness) finished(path string) {
	h.push(ipc.Event{Kind: ipc.EventFinished, Conn: workerConn, Message: ipc.Finished(path, "")})
}

func (h *harness) disconnect() {
	h.push(ipc.Event{Kind: ipc.EventDisconnected, Conn: workerConn})
}

// waitFor receives from ch or fails the test
func waitFor(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
		return nil
	}
}

// notYet asserts ch has nothing to deliver
func notYet(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("returned early with %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}
