package deploy

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/elevlink/pkg/errors"
	"github.com/arthur-debert/elevlink/pkg/logging"
)

// LinkStrategy creates and removes links on behalf of the deployment
type LinkStrategy interface {
	Prepare(ctx context.Context, dataPath string, clean bool) error
	Finalize(ctx context.Context, dataPath string) error
	LinkFile(ctx context.Context, linkPath, sourcePath string) error
	UnlinkFile(ctx context.Context, linkPath string) error
	PurgeLinks(ctx context.Context, installPath, dataPath string) error
	IsLink(linkPath, sourcePath string) bool
}

// Result summarises a deployment
type Result struct {
	Linked  int
	Skipped int
	Removed int
}

// Deployer runs deployments through a LinkStrategy
type Deployer struct {
	strategy LinkStrategy
	logger   zerolog.Logger
}

// New creates a Deployer
func New(strategy LinkStrategy) *Deployer {
	return &Deployer{
		strategy: strategy,
		logger:   logging.GetLogger("deploy"),
	}
}

// Deploy links every manifest entry that is not already in place and
// removes the entries marked for removal. Once Prepare has succeeded,
// Finalize always runs, also after a failure.
func (d *Deployer) Deploy(ctx context.Context, m *Manifest) (result Result, err error) {
	done := logging.LogOperationStart(d.logger, "deploy")
	defer done()

	if err := m.Validate(); err != nil {
		return result, err
	}

	if err := d.strategy.Prepare(ctx, m.DataPath, m.Clean); err != nil {
		return result, errors.Wrap(err, errors.ErrDeploy, "failed to prepare deployment")
	}

	defer func() {
		ferr := d.strategy.Finalize(ctx, m.DataPath)
		if ferr == nil {
			return
		}
		if err != nil {
			d.logger.Error().Err(ferr).Msg("Finalize failed after an earlier error")
			return
		}
		err = errors.Wrap(ferr, errors.ErrDeploy, "failed to finalize deployment")
	}()

	for _, l := range m.Links {
		if d.strategy.IsLink(l.Destination, l.Source) {
			d.logger.Debug().Str("destination", l.Destination).Msg("Already linked")
			result.Skipped++
			continue
		}
		if err := d.strategy.LinkFile(ctx, l.Destination, l.Source); err != nil {
			return result, errors.Wrapf(err, errors.ErrDeploy, "failed to link %s", l.Destination)
		}
		result.Linked++
	}

	for _, p := range m.Remove {
		if err := d.strategy.UnlinkFile(ctx, p); err != nil {
			return result, errors.Wrapf(err, errors.ErrDeploy, "failed to unlink %s", p)
		}
		result.Removed++
	}

	d.logger.Info().
		Int("linked", result.Linked).
		Int("skipped", result.Skipped).
		Int("removed", result.Removed).
		Msg("Deployment dispatched")
	return result, nil
}

// Purge removes every link in dataPath that points into installPath
func (d *Deployer) Purge(ctx context.Context, installPath, dataPath string) error {
	if err := d.strategy.PurgeLinks(ctx, installPath, dataPath); err != nil {
		return errors.Wrapf(err, errors.ErrDeploy, "failed to purge %s", dataPath)
	}
	return nil
}
