package elevlink

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/elevlink/internal/version"
	"github.com/arthur-debert/elevlink/pkg/config"
	"github.com/arthur-debert/elevlink/pkg/deploy"
	"github.com/arthur-debert/elevlink/pkg/elevation"
	"github.com/arthur-debert/elevlink/pkg/errors"
	"github.com/arthur-debert/elevlink/pkg/linker"
	"github.com/arthur-debert/elevlink/pkg/logging"
	"github.com/arthur-debert/elevlink/pkg/metrics"
	"github.com/arthur-debert/elevlink/pkg/ui"
	"github.com/arthur-debert/elevlink/pkg/worker"
)

// LauncherFactory builds the worker launcher for a configuration
type LauncherFactory func(cfg *config.Config) elevation.Launcher

// app carries what the global flags select
type app struct {
	verbosity   int
	configPath  string
	metricsFile string
	format      string

	launcher LauncherFactory
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(execLauncher)
}

func execLauncher(cfg *config.Config) elevation.Launcher {
	return &elevation.ExecLauncher{
		Executable:     cfg.Worker.Executable,
		ElevateCommand: cfg.Worker.ElevateCommand,
	}
}

func newRootCmd(launcher LauncherFactory) *cobra.Command {
	a := &app{launcher: launcher}

	rootCmd := &cobra.Command{
		Use:     "elevlink",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// the worker sets up its own logger
			if cmd.Name() == "worker" {
				return
			}
			logging.SetupLogger(a.verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errors.New(errors.ErrInvalidInput, "no command specified")
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", MsgFlagConfig)
	rootCmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", MsgFlagMetricsFile)
	rootCmd.PersistentFlags().StringVar(&a.format, "format", "auto", MsgFlagFormat)

	rootCmd.AddCommand(a.newDeployCmd())
	rootCmd.AddCommand(a.newPurgeCmd())
	rootCmd.AddCommand(a.newCheckCmd())
	rootCmd.AddCommand(a.newSupportedCmd())
	rootCmd.AddCommand(a.newConfigCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// linkRuntime is a facade wired to a live session
type linkRuntime struct {
	facade    *linker.Facade
	session   *elevation.Session
	metrics   *metrics.Metrics
	abandoned []string
}

func (a *app) newRuntime(cfg *config.Config) *linkRuntime {
	rt := &linkRuntime{metrics: metrics.New()}
	rt.session = elevation.NewSession(elevation.Options{
		Channels:    elevation.SocketChannels(cfg.IPC.SocketDir),
		Launcher:    a.launcher(cfg),
		InitTimeout: cfg.Worker.InitTimeout,
		LogLevel:    zerolog.GlobalLevel().String(),
		Metrics:     rt.metrics,
		OnAbandoned: func(paths []string) {
			rt.abandoned = append(rt.abandoned, paths...)
		},
	})
	rt.facade = linker.New(rt.session, linker.Options{Platform: cfg.Platform})
	return rt
}

// close stops the session loop and exports metrics when asked to
func (a *app) close(rt *linkRuntime) {
	rt.session.Close()
	if a.metricsFile == "" {
		return
	}
	if err := rt.metrics.WriteTextfile(a.metricsFile); err != nil {
		log.Warn().Err(err).Str("path", a.metricsFile).Msg("Failed to write metrics")
	}
}

func (a *app) loadConfig() (*config.Config, error) {
	return config.Load(a.configPath)
}

func (a *app) renderer(cmd *cobra.Command) (ui.Renderer, error) {
	format, err := ui.ParseFormat(a.format)
	if err != nil {
		return nil, err
	}
	return ui.NewRenderer(format, cmd.OutOrStdout())
}

// checkAbandoned reports operations lost to a worker that went away. A
// run that lost operations fails even when every call returned cleanly.
func (a *app) checkAbandoned(out ui.Renderer, command string, rt *linkRuntime, err error) error {
	if len(rt.abandoned) == 0 {
		return err
	}
	r := &ui.Report{Command: command, Title: MsgAbandonedTitle}
	for _, p := range rt.abandoned {
		r.Add("path", p)
	}
	if rerr := out.RenderReport(r); rerr != nil {
		log.Debug().Err(rerr).Msg("Failed to render abandoned operations")
	}
	if err != nil {
		return err
	}
	return errors.Newf(errors.ErrAbandoned, "%d operations were abandoned", len(rt.abandoned)).
		WithDetail("paths", rt.abandoned)
}

func (a *app) newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "deploy <manifest.yaml>",
		Short:   MsgDeployShort,
		Long:    MsgDeployLong,
		Example: MsgDeployExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			manifest, err := deploy.LoadManifest(args[0])
			if err != nil {
				return err
			}
			out, err := a.renderer(cmd)
			if err != nil {
				return err
			}

			rt := a.newRuntime(cfg)
			defer a.close(rt)

			log.Info().
				Str("manifest", args[0]).
				Str("dataPath", manifest.DataPath).
				Int("links", len(manifest.Links)).
				Msg("Deploying manifest")

			result, err := deploy.New(rt.facade).Deploy(cmd.Context(), manifest)
			if err := a.checkAbandoned(out, "deploy", rt, err); err != nil {
				return err
			}

			report := &ui.Report{Command: "deploy", Title: MsgDeployed, OK: true}
			report.Add("linked", strconv.Itoa(result.Linked)).
				Add("already linked", strconv.Itoa(result.Skipped)).
				Add("removed", strconv.Itoa(result.Removed))
			return out.RenderReport(report)
		},
	}
}

func (a *app) newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <installPath> <dataPath>",
		Short: MsgPurgeShort,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out, err := a.renderer(cmd)
			if err != nil {
				return err
			}

			rt := a.newRuntime(cfg)
			defer a.close(rt)

			err = deploy.New(rt.facade).Purge(cmd.Context(), args[0], args[1])
			if err := a.checkAbandoned(out, "purge", rt, err); err != nil {
				return err
			}

			report := &ui.Report{Command: "purge", Title: MsgPurged, OK: true}
			report.Add("install path", args[0]).Add("data path", args[1])
			return out.RenderReport(report)
		},
	}
}

func (a *app) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <linkPath> <sourcePath>",
		Short: MsgCheckShort,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out, err := a.renderer(cmd)
			if err != nil {
				return err
			}

			// reads only, the worker is never started
			rt := a.newRuntime(cfg)
			defer a.close(rt)

			report := &ui.Report{Command: "check", Title: MsgNotLinked}
			if rt.facade.IsLink(args[0], args[1]) {
				report.Title = MsgLinked
				report.OK = true
			}
			report.Add("link", args[0]).Add("source", args[1])
			return out.RenderReport(report)
		},
	}
}

func (a *app) newSupportedCmd() *cobra.Command {
	var info linker.PlatformInfo
	cmd := &cobra.Command{
		Use:   "supported",
		Short: MsgSupportedShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			out, err := a.renderer(cmd)
			if err != nil {
				return err
			}

			rt := a.newRuntime(cfg)
			defer a.close(rt)

			report := &ui.Report{Command: "supported", Title: MsgSupported, OK: true}
			if reason := rt.facade.IsSupported(info); reason != "" {
				report.Title = MsgNotSupported
				report.OK = false
				report.Add("reason", reason)
			}
			return out.RenderReport(report)
		},
	}
	cmd.Flags().StringVar(&info.OS, "platform", "", MsgFlagPlatform)
	cmd.Flags().StringVar(&info.GameID, "game", "", MsgFlagGame)
	return cmd
}

func (a *app) newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: MsgConfigShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			data, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newWorkerCmd() *cobra.Command {
	var opts worker.Options
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  MsgWorkerShort,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetupWorkerLogger(opts.LogLevel)
			log.Debug().
				Str("channel", opts.ChannelID).
				Int("parentPid", opts.ParentPID).
				Msg("Worker starting")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return worker.Run(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Address, "address", "", "Channel address")
	cmd.Flags().StringVar(&opts.ChannelID, "channel", "", "Channel id")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Lowest level forwarded to elevlink")
	cmd.Flags().IntVar(&opts.ParentPID, "parent-pid", 0, "Process id of the orchestrator; the worker exits once it is gone")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 MsgCompletionShort,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: MsgVersionShort,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "elevlink version %s\n", version.Version)
			fmt.Fprintf(w, "  commit: %s\n", version.Commit)
			fmt.Fprintf(w, "  built:  %s\n", version.Date)
		},
	}
}

// Execute runs the root command with a context cancelled on interrupt, so
// an interrupted run still drains and stops its worker. A failure is
// rendered on stderr in the selected output format before it is returned.
func Execute(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return executeRoot(ctx, NewRootCmd())
}

func executeRoot(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if err != nil {
		renderError(root, err)
	}
	return err
}

// renderError writes err to the root's error stream, falling back to
// format detection when --format itself was the problem
func renderError(root *cobra.Command, err error) {
	format := ui.FormatAuto
	if value, ferr := root.PersistentFlags().GetString("format"); ferr == nil {
		if parsed, perr := ui.ParseFormat(value); perr == nil {
			format = parsed
		}
	}
	r, rerr := ui.NewRenderer(format, root.ErrOrStderr())
	if rerr != nil {
		r, _ = ui.NewRenderer(ui.FormatText, root.ErrOrStderr())
	}
	if werr := r.RenderError(err); werr != nil {
		log.Debug().Err(werr).Msg("Failed to render error")
	}
}

// ExitCode maps an error onto the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsErrorCode(err, errors.ErrInvalidInput), errors.IsErrorCode(err, errors.ErrConfigLoad),
		errors.IsErrorCode(err, errors.ErrConfigValid):
		return 2
	case stderrors.Is(err, errors.New(errors.ErrElevation, "")),
		stderrors.Is(err, errors.New(errors.ErrWorkerTimeout, "")):
		return 3
	default:
		return 1
	}
}
