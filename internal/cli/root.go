package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/machinekit/pkg/config"
	"github.com/dmitrymomot/machinekit/pkg/logger"
	"github.com/dmitrymomot/machinekit/pkg/requestid"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel  string
	LogFormat string
	EnvFiles  []string

	// Logger is built in PersistentPreRunE and shared by subcommands.
	Logger *slog.Logger
}

// NewRootCommand creates the root command of the machinekit CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "machinekit",
		Short: "Drive state machines from YAML definitions",
		Long: `machinekit loads a state machine definition from YAML, dispatches events
through a serializing caller and reports every transition.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json|text), overrides LOG_FORMAT")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "dotenv files to load before reading the environment")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	if len(o.EnvFiles) > 0 {
		if err := config.LoadEnvFiles(o.EnvFiles...); err != nil {
			return WrapExitError(ExitCommandError, "failed to load env files", err)
		}
	}

	var cfg logger.Config
	if err := config.Parse(&cfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to read logger config", err)
	}
	if o.LogLevel != "" {
		if _, err := logger.ParseLevel(o.LogLevel); err != nil {
			return WrapExitError(ExitCommandError, "invalid --log-level", err)
		}
		cfg.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		if _, err := logger.ParseFormat(o.LogFormat); err != nil {
			return WrapExitError(ExitCommandError, "invalid --log-format", err)
		}
		cfg.Format = o.LogFormat
	}

	o.Logger = logger.New(
		logger.WithConfig(cfg),
		logger.WithOutput(cmd.ErrOrStderr()),
		logger.WithComponent("cli"),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	return nil
}

func (o *RootOptions) log() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func requireFile(path string) error {
	if path == "" {
		return NewExitError(ExitCommandError, "--file is required")
	}
	return nil
}
