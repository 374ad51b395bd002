package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/machinekit/pkg/async"
	"github.com/dmitrymomot/machinekit/pkg/caller"
	"github.com/dmitrymomot/machinekit/pkg/config"
	"github.com/dmitrymomot/machinekit/pkg/definition"
	"github.com/dmitrymomot/machinekit/pkg/logger"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
	"github.com/dmitrymomot/machinekit/pkg/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	File         string
	Async        bool
	Defer        time.Duration
	Output       string
	Metrics      bool
	RedisChannel string
	Timeout      time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <event>...",
		Short: "Dispatch events on a machine built from a definition",
		Long: `Build the machine described by --file, start a caller for it and submit the
given events in order. Events prefixed with "sub:" are wrapped for the
submachine. Every finished dispatch is printed as one line.

By default each event is submitted synchronously. --async submits all of them
without waiting; --defer schedules them as deferred events spaced by the given
delay.

Example:
  machinekit run -f engine.yaml start sub:next stop
  machinekit run -f engine.yaml --defer 200ms start stop`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachine(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "path to the YAML definition")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "submit events without waiting for each dispatch")
	cmd.Flags().DurationVar(&opts.Defer, "defer", 0, "submit events as deferred events spaced by this delay")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "record output format (text|json)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print prometheus counters after the run")
	cmd.Flags().StringVar(&opts.RedisChannel, "redis-channel", "", "publish transitions on this redis channel (REDIS_URL)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "give up waiting for dispatches after this long")

	return cmd
}

func runMachine(cmd *cobra.Command, opts *RunOptions, args []string) error {
	if err := requireFile(opts.File); err != nil {
		return err
	}
	if opts.Async && opts.Defer > 0 {
		return NewExitError(ExitCommandError, "--async and --defer are mutually exclusive")
	}
	out, err := newRecordWriter(cmd.OutOrStdout(), opts.Output)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --output", err)
	}

	log := opts.log()

	def, err := definition.Load(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load definition", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := telemetry.NewFeed(len(args)*4 + 16)
	observers := []statemachine.Observer{feed}

	registry := prometheus.NewRegistry()
	if opts.Metrics {
		prom, err := telemetry.NewPrometheusObserver(registry)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
		observers = append(observers, prom)
	}

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
	}

	m, err := definition.Build(def, statemachine.WithObserver(observers...))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build machine", err)
	}

	var callerCfg caller.Config
	if err := config.Parse(&callerCfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to read caller config", err)
	}
	c, err := caller.New(m, caller.WithLogger(log), caller.WithConfig(callerCfg))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create caller", err)
	}

	events := make([]statemachine.Event, 0, len(args))
	for _, arg := range args {
		events = append(events, definition.ParseEvent(arg))
	}

	// The printer counts records of the outer machine; the run is over once
	// every submitted event has produced one.
	sub := feed.Subscribe(context.Background())
	var (
		summary  runSummary
		printed  sync.WaitGroup
		finished = make(chan struct{})
	)
	printed.Add(1)
	go func() {
		defer printed.Done()
		for rec := range sub.C() {
			out.write(rec)
			if rec.Machine != m.Name() {
				continue
			}
			if summary.add(rec) == len(events) {
				close(finished)
			}
		}
	}()
	if len(events) == 0 {
		close(finished)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(c.Run(gctx))

	futures, submitErr := submit(ctx, c, opts, events)

	if submitErr == nil {
		select {
		case <-finished:
		case <-ctx.Done():
			submitErr = ctx.Err()
		case <-time.After(opts.Timeout):
			submitErr = fmt.Errorf("timed out after %s", opts.Timeout)
		}
	}
	if submitErr == nil && len(futures) > 0 {
		// Every record is in; the futures settle right behind them.
		if _, err := async.WaitAll(futures...); err != nil {
			log.Debug("async dispatch failed", logger.Error(err))
		}
	}

	stop()
	if err := g.Wait(); err != nil {
		log.Error("caller stopped with error", logger.Error(err))
	}
	_ = feed.Close()
	printed.Wait()

	summary.print(cmd.OutOrStdout(), c)
	if opts.Metrics {
		printMetrics(cmd.OutOrStdout(), registry)
	}

	if submitErr != nil {
		return WrapExitError(ExitCommandError, "run interrupted", submitErr)
	}
	if summary.errors > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d events failed", summary.errors, summary.total))
	}
	return nil
}

// submit hands events to the caller in the mode selected by the flags. In
// async mode it returns the futures of the submitted events.
func submit(ctx context.Context, c *caller.Caller[string], opts *RunOptions, events []statemachine.Event) ([]*async.Future[any], error) {
	var futures []*async.Future[any]
	for i, ev := range events {
		switch {
		case opts.Defer > 0:
			if _, err := c.DeferEvent(ev, opts.Defer*time.Duration(i+1)); err != nil {
				return nil, err
			}
		case opts.Async:
			f, err := c.Submit(ev)
			if err != nil {
				return nil, err
			}
			futures = append(futures, f)
		default:
			// Dispatch errors are reported through the record stream.
			if _, err := c.SyncEvent(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if errors.Is(err, caller.ErrCallerStopped) {
					return nil, err
				}
			}
		}
	}
	return futures, nil
}
