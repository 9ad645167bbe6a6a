package linker

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/elevlink/pkg/config"
	"github.com/arthur-debert/elevlink/pkg/elevation"
	"github.com/arthur-debert/elevlink/pkg/errors"
	"github.com/arthur-debert/elevlink/pkg/filesystem"
	"github.com/arthur-debert/elevlink/pkg/logging"
)

// Session is the part of *elevation.Session the facade drives
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Dispatch(req elevation.Request) error
}

// Hooks are the preparation and finalisation steps of the deployment the
// facade serves. Either may be nil.
type Hooks struct {
	Prepare  func(ctx context.Context, dataPath string, clean bool) error
	Finalize func(ctx context.Context, dataPath string) error
}

// Options configures a Facade. Zero values select the OS filesystem and
// the fastwalk walker.
type Options struct {
	Hooks    Hooks
	FS       filesystem.FS
	Walker   Walker
	Platform config.Platform
}

// Facade creates and removes links through an elevated worker
type Facade struct {
	session  Session
	hooks    Hooks
	fs       filesystem.FS
	walker   Walker
	platform config.Platform
	logger   zerolog.Logger
}

// New creates a Facade driving session
func New(session Session, opts Options) *Facade {
	if opts.FS == nil {
		opts.FS = filesystem.NewOS()
	}
	if opts.Walker == nil {
		opts.Walker = FastWalker{}
	}
	return &Facade{
		session:  session,
		hooks:    opts.Hooks,
		fs:       opts.FS,
		walker:   opts.Walker,
		platform: opts.Platform,
		logger:   logging.GetLogger("linker"),
	}
}

// Prepare starts the elevated worker, then runs the deployment's own
// preparation
func (f *Facade) Prepare(ctx context.Context, dataPath string, clean bool) error {
	if err := f.start(ctx); err != nil {
		return err
	}
	if f.hooks.Prepare == nil {
		return nil
	}
	return f.hooks.Prepare(ctx, dataPath, clean)
}

// Finalize runs the deployment's own finalisation, then waits for every
// dispatched operation to complete and stops the worker. The worker is
// stopped even when the finalisation hook fails; the hook error wins.
func (f *Facade) Finalize(ctx context.Context, dataPath string) error {
	var hookErr error
	if f.hooks.Finalize != nil {
		hookErr = f.hooks.Finalize(ctx, dataPath)
	}
	stopErr := f.session.Stop(ctx)
	if hookErr != nil {
		if stopErr != nil {
			f.logger.Error().Err(stopErr).Msg("Failed to stop worker after finalize failure")
		}
		return hookErr
	}
	return stopErr
}

// LinkFile asks the worker to link linkPath to sourcePath. It returns once
// the request is sent, not once the link exists.
func (f *Facade) LinkFile(ctx context.Context, linkPath, sourcePath string) error {
	return f.session.Dispatch(elevation.LinkRequest{Source: sourcePath, Destination: linkPath})
}

// UnlinkFile asks the worker to remove the link at linkPath
func (f *Facade) UnlinkFile(ctx context.Context, linkPath string) error {
	return f.session.Dispatch(elevation.UnlinkRequest{Destination: linkPath})
}

// PurgeLinks removes every symlink under dataPath that points into
// installPath, then stops the worker
func (f *Facade) PurgeLinks(ctx context.Context, installPath, dataPath string) error {
	if err := f.start(ctx); err != nil {
		return err
	}
	done := logging.LogOperationStart(f.logger, "purge")
	defer done()

	purged := 0
	walkErr := f.walker.Walk(dataPath, func(path string, isSymlink bool) error {
		if !isSymlink {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := f.fs.Readlink(path)
		if err != nil {
			f.logger.Debug().Err(err).Str("path", path).Msg("Skipping unreadable link")
			return nil
		}
		if !pointsInto(installPath, target) {
			return nil
		}
		if err := f.session.Dispatch(elevation.UnlinkRequest{Destination: path}); err != nil {
			return err
		}
		purged++
		return nil
	})

	f.logger.Info().Int("links", purged).Str("dataPath", dataPath).Msg("Purge dispatched")

	// stop even when the walk failed so the worker does not outlive us
	stopErr := f.session.Stop(ctx)
	if walkErr != nil {
		return errors.Wrapf(walkErr, errors.ErrSymlinkRemove, "failed to purge links in %s", dataPath)
	}
	return stopErr
}

// IsLink reports whether linkPath is a symlink to sourcePath. Anything
// that prevents reading the link counts as false.
func (f *Facade) IsLink(linkPath, sourcePath string) bool {
	target, err := f.fs.Readlink(linkPath)
	if err != nil {
		return false
	}
	return target == sourcePath
}

// IsSupported returns why elevated linking does not apply to info, or ""
// when it does
func (f *Facade) IsSupported(info PlatformInfo) string {
	return isSupported(f.platform, info)
}

func (f *Facade) start(ctx context.Context) error {
	if err := f.session.Start(ctx); err != nil {
		if errors.GetErrorCode(err) == errors.ErrUnknown {
			return errors.Wrap(err, errors.ErrElevation, "failed to start elevated worker")
		}
		return err
	}
	return nil
}

// pointsInto reports whether target lies inside dir: the path from dir to
// target must not climb out with "..". A relative target never matches an
// absolute dir.
func pointsInto(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}
