package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/machinekit/pkg/caller"
	"github.com/dmitrymomot/machinekit/pkg/config"
	"github.com/dmitrymomot/machinekit/pkg/control"
	"github.com/dmitrymomot/machinekit/pkg/definition"
	"github.com/dmitrymomot/machinekit/pkg/httpserver"
	"github.com/dmitrymomot/machinekit/pkg/logger"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
	"github.com/dmitrymomot/machinekit/pkg/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	File         string
	Addr         string
	RedisChannel string

	// OnListen is called with the bound address. Used by tests.
	OnListen func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a machine over HTTP",
		Long: `Build the machine described by --file, start a caller for it and expose it
over HTTP until interrupted.

Endpoints:
  GET    /state
  POST   /events/{event}?mode=sync|async|defer&delay=1s
  DELETE /deferred/{id}
  GET    /metrics
  GET    /healthz, /readyz

Example:
  machinekit serve -f engine.yaml --addr :8080
  curl -X POST localhost:8080/events/start`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveMachine(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "path to the YAML definition")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides HTTP_ADDR")
	cmd.Flags().StringVar(&opts.RedisChannel, "redis-channel", "", "publish transitions on this redis channel (REDIS_URL)")

	return cmd
}

func serveMachine(cmd *cobra.Command, opts *ServeOptions) error {
	if err := requireFile(opts.File); err != nil {
		return err
	}
	log := opts.log()

	def, err := definition.Load(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load definition", err)
	}

	var httpCfg httpserver.Config
	if err := config.Parse(&httpCfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to read http config", err)
	}
	if opts.Addr != "" {
		httpCfg.Addr = opts.Addr
	}
	var callerCfg caller.Config
	if err := config.Parse(&callerCfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to read caller config", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := telemetry.NewPrometheusObserver(registry)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}
	observers := []statemachine.Observer{prom, statemachine.NewLoggingObserver(log)}

	var controlOpts []control.Option
	if opts.RedisChannel != "" {
		pub, client, err := connectPublisher(ctx, opts.RedisChannel, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Error("failed to close redis client", logger.Error(err))
			}
		}()
		observers = append(observers, pub)
		controlOpts = append(controlOpts, control.WithReadinessChecks(telemetry.Healthcheck(client)))
	}

	m, err := definition.Build(def, statemachine.WithObserver(observers...))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build machine", err)
	}
	c, err := caller.New(m, caller.WithLogger(log), caller.WithConfig(callerCfg))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create caller", err)
	}

	controlOpts = append(controlOpts, control.WithLogger(log), control.WithGatherer(registry))
	router := control.New(c, controlOpts...).Router()

	serverOpts := []httpserver.Option{httpserver.WithLogger(log)}
	if opts.OnListen != nil {
		serverOpts = append(serverOpts, httpserver.WithStartHook(opts.OnListen))
	}
	srv := httpserver.NewFromConfig(httpCfg, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(c.Run(gctx))
	g.Go(func() error { return srv.Run(gctx, router) })

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server stopped with error", err)
	}
	return nil
}
