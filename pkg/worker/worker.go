package worker

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/elevlink/pkg/errors"
	"github.com/arthur-debert/elevlink/pkg/filesystem"
	"github.com/arthur-debert/elevlink/pkg/ipc"
	"github.com/arthur-debert/elevlink/pkg/logging"
)

// Options configures a worker run
type Options struct {
	Address   string
	ChannelID string
	// LogLevel is the lowest level forwarded to the orchestrator
	LogLevel string
	// ParentPID is the orchestrator's process. When set, the worker exits
	// once that process is gone.
	ParentPID          int
	ParentPollInterval time.Duration
	FS                 filesystem.FS
}

const defaultParentPollInterval = time.Second

type worker struct {
	client  *ipc.Client
	fs      filesystem.FS
	forward zerolog.Level
	logger  zerolog.Logger
}

// Run serves one session and returns when the orchestrator sends quit or
// closes the channel, or when ctx is done
func Run(ctx context.Context, opts Options) error {
	if opts.Address == "" || opts.ChannelID == "" {
		return errors.New(errors.ErrInvalidInput, "worker needs an address and a channel id")
	}
	if opts.FS == nil {
		opts.FS = filesystem.NewOS()
	}
	forward, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil || opts.LogLevel == "" {
		forward = zerolog.WarnLevel
	}

	if opts.ParentPollInterval <= 0 {
		opts.ParentPollInterval = defaultParentPollInterval
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if opts.ParentPID > 0 {
		go watchParent(ctx, cancel, opts.ParentPID, opts.ParentPollInterval)
	}

	client, err := ipc.Dial(ctx, opts.Address)
	if err != nil {
		return err
	}
	defer client.Close()

	w := &worker{
		client:  client,
		fs:      opts.FS,
		forward: forward,
		logger:  logging.GetLogger("worker"),
	}

	// unblock Receive on cancellation
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if err := client.Send(ipc.Initialised(opts.ChannelID, os.Getpid())); err != nil {
		return err
	}
	w.report(zerolog.DebugLevel, "worker initialised", map[string]interface{}{"pid": os.Getpid()})

	for {
		msg, err := client.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			if stderrors.Is(err, io.EOF) {
				w.logger.Debug().Msg("Orchestrator closed the channel")
				return nil
			}
			if errors.IsErrorCode(err, errors.ErrProtocol) {
				w.report(zerolog.WarnLevel, "dropping malformed message", map[string]interface{}{"error": err.Error()})
				continue
			}
			return err
		}

		switch msg.Type {
		case ipc.TypeQuit:
			w.logger.Debug().Msg("Quit received")
			return nil
		case ipc.TypeLinkFile:
			err = w.complete(msg.Destination, filesystem.ReplaceSymlink(w.fs, msg.Source, msg.Destination))
		case ipc.TypeRemoveLink:
			err = w.complete(msg.Destination, filesystem.RemoveSymlink(w.fs, msg.Destination))
		default:
			w.report(zerolog.WarnLevel, "ignoring unexpected message", map[string]interface{}{"type": string(msg.Type)})
		}
		if err != nil {
			return err
		}
	}
}

// complete answers the request for path with its outcome
func (w *worker) complete(path string, opErr error) error {
	failure := ""
	if opErr != nil {
		failure = opErr.Error()
		w.report(zerolog.ErrorLevel, "operation failed", map[string]interface{}{"path": path, "error": failure})
	} else {
		w.report(zerolog.DebugLevel, "operation applied", map[string]interface{}{"path": path})
	}
	return w.client.Send(ipc.Finished(path, failure))
}

// report logs locally and forwards the record to the orchestrator when it
// is at or above the forwarding level
func (w *worker) report(level zerolog.Level, message string, meta map[string]interface{}) {
	w.logger.WithLevel(level).Fields(meta).Msg(message)
	if level < w.forward {
		return
	}
	if err := w.client.Send(ipc.Log(level.String(), message, meta)); err != nil {
		w.logger.Debug().Err(err).Msg("Failed to forward log record")
	}
}

// watchParent cancels the run once pid no longer exists
func watchParent(ctx context.Context, cancel context.CancelCauseFunc, pid int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !processAlive(pid) {
				logger := logging.GetLogger("worker")
				logger.Warn().Int("parentPid", pid).Msg("Orchestrator is gone, exiting")
				cancel(errors.Newf(errors.ErrChannel, "orchestrator process %d is gone", pid))
				return
			}
		}
	}
}
