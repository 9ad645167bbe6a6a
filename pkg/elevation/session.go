package elevation

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/elevlink/pkg/errors"
	"github.com/arthur-debert/elevlink/pkg/ipc"
	"github.com/arthur-debert/elevlink/pkg/logging"
	"github.com/arthur-debert/elevlink/pkg/metrics"
)

const (
	// DefaultInitTimeout bounds the wait for the worker's initialised message
	DefaultInitTimeout = 30 * time.Second
	// DefaultExitGrace bounds the wait for a dead worker's last messages
	DefaultExitGrace = 2 * time.Second
)

// Options configures a Session
type Options struct {
	Channels    ChannelFactory
	Launcher    Launcher
	InitTimeout time.Duration
	// ExitGrace is how long an exited worker's connection may keep
	// delivering completions before what is still pending is abandoned
	ExitGrace time.Duration
	// LogLevel is handed to the worker so it forwards what we would print
	LogLevel string
	Metrics  *metrics.Metrics
	// OnAbandoned receives the paths dropped by a worker disconnect. It runs
	// on the session loop and must not call back into the session.
	OnAbandoned func(paths []string)
}

// workerLink is the connected worker. It exists exactly while the session
// is Active or Draining.
type workerLink struct {
	conn ipc.ConnID
	pid  int
}

// drainContinuation is installed when draining begins and resolved exactly
// once, on the transition to Stopped
type drainContinuation struct {
	waiters []chan error
}

func (d *drainContinuation) resolve(err error) {
	for _, w := range d.waiters {
		w <- err
	}
}

// Session is the elevation state machine. All exported methods are safe for
// concurrent use; they are serialised onto the session's event loop.
type Session struct {
	opts         Options
	logger       zerolog.Logger
	workerLogger zerolog.Logger

	cmds      chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	state        State
	channelID    string
	channel      Channel
	events       <-chan ipc.Event
	proc         Process
	procDone     <-chan struct{}
	worker       *workerLink
	pending      *tracker
	startWaiters []chan error
	initTimer    *time.Timer
	initExpired  <-chan time.Time
	exitTimer    *time.Timer
	exitExpired  <-chan time.Time
	drain        *drainContinuation
}

// NewSession creates an Idle session and starts its event loop. Close
// releases it.
func NewSession(opts Options) *Session {
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = DefaultInitTimeout
	}
	if opts.ExitGrace <= 0 {
		opts.ExitGrace = DefaultExitGrace
	}
	s := &Session{
		opts:         opts,
		logger:       logging.GetLogger("elevation.session"),
		workerLogger: logging.GetLogger("worker"),
		cmds:         make(chan func()),
		quit:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		state:        StateIdle,
		pending:      newTracker(),
	}
	go s.run()
	return s
}

// Start makes the session Active, launching a worker when there is none.
// It blocks until the worker has initialised, the init timeout expires or
// ctx is done. Calling Start while Starting, Active or Draining reuses the
// current worker.
func (s *Session) Start(ctx context.Context) error {
	result := make(chan error, 1)
	if err := s.call(func() { s.handleStart(result) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch sends req to the worker and tracks its path until the worker
// reports completion. It does not wait for the completion.
func (s *Session) Dispatch(req Request) error {
	var err error
	if cerr := s.call(func() { err = s.handleDispatch(req) }); cerr != nil {
		return cerr
	}
	return err
}

// Stop drains the session: it waits until every dispatched operation has
// completed, then tells the worker to quit and closes the channel. If the
// worker disconnects first, Stop returns an ABANDONED error listing the
// operations that were lost.
func (s *Session) Stop(ctx context.Context) error {
	result := make(chan error, 1)
	if err := s.call(func() { s.handleStop(result) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down any live worker and ends the event loop
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.loopDone
}

// State returns the current state
func (s *Session) State() State {
	state := StateStopped
	_ = s.call(func() { state = s.state })
	return state
}

// Pending returns the distinct paths awaiting completion, sorted
func (s *Session) Pending() []string {
	var paths []string
	_ = s.call(func() { paths = s.pending.paths() })
	return paths
}

// ChannelID returns the id of the current or most recent channel
func (s *Session) ChannelID() string {
	var id string
	_ = s.call(func() { id = s.channelID })
	return id
}

// call runs fn on the loop and waits for it to finish
func (s *Session) call(fn func()) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
	case <-s.loopDone:
		return errors.New(errors.ErrSessionClosed, "session is closed")
	}
	<-done
	return nil
}

func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case ev, ok := <-s.events:
			s.handleEvent(ev, ok)
		case <-s.procDone:
			s.handleProcessExit()
		case <-s.initExpired:
			s.handleInitTimeout()
		case <-s.exitExpired:
			s.handleExitGrace()
		case <-s.quit:
			s.shutdown()
			return
		}
	}
}

func (s *Session) handleStart(result chan error) {
	switch s.state {
	case StateActive, StateDraining:
		s.logger.Debug().Str("state", s.state.String()).Msg("Worker already running, reusing session")
		result <- nil
	case StateStarting:
		s.startWaiters = append(s.startWaiters, result)
	default:
		s.begin(result)
	}
}

// begin is the Idle/Stopped -> Starting transition
func (s *Session) begin(result chan error) {
	channelID := uuid.NewString()

	channel, err := s.opts.Channels(channelID)
	if err != nil {
		s.opts.Metrics.SessionStarted(metrics.ResultError)
		result <- errors.Wrap(err, errors.ErrElevation, "failed to open channel")
		return
	}

	proc, err := s.opts.Launcher.Launch(Bootstrap{
		ChannelID: channelID,
		Address:   channel.Address(),
		LogLevel:  s.opts.LogLevel,
		ParentPID: os.Getpid(),
	})
	if err != nil {
		if cerr := channel.Close(); cerr != nil {
			s.logger.Debug().Err(cerr).Msg("Failed to close channel")
		}
		s.opts.Metrics.SessionStarted(metrics.ResultError)
		result <- errors.Wrap(err, errors.ErrElevation, "failed to launch worker")
		return
	}

	s.channelID = channelID
	s.channel = channel
	s.events = channel.Events()
	s.proc = proc
	s.procDone = proc.Done()
	s.startWaiters = []chan error{result}
	s.initTimer = time.NewTimer(s.opts.InitTimeout)
	s.initExpired = s.initTimer.C
	s.state = StateStarting

	s.logger.Info().
		Str("channel", channelID).
		Str("address", channel.Address()).
		Int("pid", proc.PID()).
		Msg("Worker launched, waiting for it to initialise")
}

func (s *Session) handleDispatch(req Request) error {
	path := req.Path()
	if s.state != StateActive {
		return errors.Newf(errors.ErrNotActive,
			"cannot dispatch %s for %s: session is %s", req.op(), path, s.state).
			WithDetail("path", path)
	}

	if s.exitTimer != nil {
		return errors.Newf(errors.ErrChannel,
			"cannot dispatch %s for %s: worker process has exited", req.op(), path).
			WithDetail("path", path)
	}

	s.pending.add(path)
	if err := s.channel.Send(s.worker.conn, req.message()); err != nil {
		s.pending.remove(path)
		return errors.Wrapf(err, errors.ErrChannel, "failed to dispatch %s for %s", req.op(), path)
	}
	s.opts.Metrics.Dispatched(req.op())
	s.opts.Metrics.SetPending(s.pending.len())

	s.logger.Debug().Str("op", req.op()).Str("path", path).Int("pending", s.pending.len()).Msg("Dispatched")
	return nil
}

func (s *Session) handleStop(result chan error) {
	switch s.state {
	case StateIdle, StateStopped:
		result <- nil
	case StateStarting:
		err := errors.New(errors.ErrElevation, "session stopped before the worker initialised")
		s.failStart(err)
		result <- err
	case StateActive:
		s.state = StateDraining
		s.drain = &drainContinuation{waiters: []chan error{result}}
		s.logger.Debug().Int("pending", s.pending.len()).Msg("Draining")
		if s.pending.len() == 0 {
			s.finish()
		}
	case StateDraining:
		s.drain.waiters = append(s.drain.waiters, result)
	}
}

func (s *Session) handleEvent(ev ipc.Event, ok bool) {
	if !ok {
		// the channel went away underneath us
		s.events = nil
		switch s.state {
		case StateStarting:
			s.failStart(errors.New(errors.ErrElevation, "channel closed before the worker initialised"))
		case StateActive, StateDraining:
			s.forceStop("channel closed")
		}
		return
	}

	switch ev.Kind {
	case ipc.EventInitialised:
		s.handleInitialised(ev)
	case ipc.EventFinished:
		s.handleFinished(ev)
	case ipc.EventLog:
		logging.Forward(s.workerLogger, ev.Message.Level, ev.Message.Text, ev.Message.Meta)
	case ipc.EventDisconnected:
		if s.worker != nil && ev.Conn == s.worker.conn {
			s.forceStop("worker disconnected")
			return
		}
		s.logger.Debug().Uint64("conn", uint64(ev.Conn)).Msg("Ignoring disconnect of unbound connection")
	}
}

// handleInitialised is the Starting -> Active transition
func (s *Session) handleInitialised(ev ipc.Event) {
	if s.state != StateStarting {
		s.logger.Warn().Str("state", s.state.String()).Msg("Ignoring unexpected initialised message")
		return
	}
	if ev.Message.Channel != s.channelID {
		s.logger.Warn().
			Str("expected", s.channelID).
			Str("got", ev.Message.Channel).
			Msg("Ignoring worker bound to another channel")
		return
	}

	s.stopInitTimer()
	s.worker = &workerLink{conn: ev.Conn, pid: ev.Message.PID}
	s.state = StateActive
	s.opts.Metrics.SessionStarted(metrics.ResultOK)

	s.logger.Info().Int("workerPid", ev.Message.PID).Msg("Worker initialised")

	waiters := s.startWaiters
	s.startWaiters = nil
	for _, w := range waiters {
		w <- nil
	}
}

func (s *Session) handleFinished(ev ipc.Event) {
	if s.worker == nil || ev.Conn != s.worker.conn {
		s.logger.Debug().Str("path", ev.Message.Path).Msg("Ignoring completion from unbound connection")
		return
	}

	path := ev.Message.Path
	if !s.pending.remove(path) {
		s.logger.Warn().Str("path", path).Msg("Completion for a path that is not pending")
		return
	}

	if ev.Message.Error != "" {
		s.opts.Metrics.Completed(metrics.OutcomeFailed)
		s.logger.Error().Str("path", path).Str("error", ev.Message.Error).Msg("Worker failed to apply operation")
	} else {
		s.opts.Metrics.Completed(metrics.OutcomeOK)
		s.logger.Debug().Str("path", path).Int("pending", s.pending.len()).Msg("Operation finished")
	}
	s.opts.Metrics.SetPending(s.pending.len())

	if s.state == StateDraining && s.pending.len() == 0 {
		s.finish()
	}
}

func (s *Session) handleProcessExit() {
	exitErr := s.proc.Err()
	s.procDone = nil

	switch s.state {
	case StateStarting:
		s.opts.Metrics.SessionStarted(metrics.ResultError)
		s.failStart(errors.Newf(errors.ErrElevation, "worker exited before initialising: %v", exitErr))
	case StateActive, StateDraining:
		s.logger.Debug().AnErr("exit", exitErr).Msg("Worker process exited")
		// completions the worker sent before exiting may still be queued
		s.drainEvents()
		if s.state != StateActive && s.state != StateDraining {
			return
		}
		s.exitTimer = time.NewTimer(s.opts.ExitGrace)
		s.exitExpired = s.exitTimer.C
	}
}

// drainEvents handles every event already queued on the channel
func (s *Session) drainEvents() {
	for s.events != nil {
		select {
		case ev, ok := <-s.events:
			s.handleEvent(ev, ok)
		default:
			return
		}
	}
}

// handleExitGrace abandons what an exited worker never completed. The
// worker's disconnect usually gets here first.
func (s *Session) handleExitGrace() {
	s.exitTimer = nil
	s.exitExpired = nil
	if s.state != StateActive && s.state != StateDraining {
		return
	}
	s.drainEvents()
	if s.state == StateActive || s.state == StateDraining {
		s.forceStop("worker process exited")
	}
}

func (s *Session) handleInitTimeout() {
	s.initExpired = nil
	s.initTimer = nil
	if s.state != StateStarting {
		return
	}
	s.opts.Metrics.SessionStarted(metrics.ResultTimeout)
	s.failStart(errors.Newf(errors.ErrWorkerTimeout,
		"worker did not initialise within %s", s.opts.InitTimeout))
}

// finish is the Draining -> Stopped transition
func (s *Session) finish() {
	if err := s.channel.Send(s.worker.conn, ipc.Quit()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send quit to worker")
	}
	s.teardown()
	s.logger.Info().Msg("Worker drained and stopped")

	drain := s.drain
	s.drain = nil
	drain.resolve(nil)
}

// forceStop is the Active/Draining -> Stopped transition when the worker
// goes away. Whatever is still pending is abandoned.
func (s *Session) forceStop(reason string) {
	if s.proc != nil {
		if err := s.proc.Kill(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to kill worker")
		}
	}
	abandoned := s.pending.reset()
	s.teardown()

	var drainErr error
	if len(abandoned) > 0 {
		s.opts.Metrics.Abandoned(len(abandoned))
		s.logger.Error().
			Str("reason", reason).
			Strs("paths", abandoned).
			Msg("Worker went away, pending operations abandoned")
		if s.opts.OnAbandoned != nil {
			s.opts.OnAbandoned(abandoned)
		}
		drainErr = errors.Newf(errors.ErrAbandoned,
			"%s with %d operations pending", reason, len(abandoned)).
			WithDetail("paths", abandoned)
	} else {
		s.logger.Warn().Str("reason", reason).Msg("Worker went away")
	}

	if s.drain != nil {
		drain := s.drain
		s.drain = nil
		drain.resolve(drainErr)
	}
}

// failStart is the Starting -> Stopped transition
func (s *Session) failStart(err error) {
	if s.proc != nil {
		if kerr := s.proc.Kill(); kerr != nil {
			s.logger.Debug().Err(kerr).Msg("Failed to kill worker")
		}
	}
	s.teardown()
	s.logger.Error().Err(err).Msg("Worker failed to start")

	waiters := s.startWaiters
	s.startWaiters = nil
	for _, w := range waiters {
		w <- err
	}
}

// teardown releases the channel and worker on every path into Stopped
func (s *Session) teardown() {
	s.stopInitTimer()
	if s.exitTimer != nil {
		s.exitTimer.Stop()
	}
	s.exitTimer = nil
	s.exitExpired = nil
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to close channel")
		}
	}
	s.channel = nil
	s.events = nil
	s.proc = nil
	s.procDone = nil
	s.worker = nil
	s.pending.reset()
	s.opts.Metrics.SetPending(0)
	s.state = StateStopped
}

func (s *Session) stopInitTimer() {
	if s.initTimer != nil {
		s.initTimer.Stop()
	}
	s.initTimer = nil
	s.initExpired = nil
}

func (s *Session) shutdown() {
	switch s.state {
	case StateStarting:
		s.failStart(errors.New(errors.ErrSessionClosed, "session closed"))
	case StateActive, StateDraining:
		if err := s.channel.Send(s.worker.conn, ipc.Quit()); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to send quit to worker")
		}
		s.forceStop("session closed")
	}
}
