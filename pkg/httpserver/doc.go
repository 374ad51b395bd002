// Package httpserver runs an http.Handler with configurable timeouts and
// graceful shutdown driven by a context.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Run returns once ctx is canceled and in-flight requests have finished or
// the shutdown timeout expired. Listen errors are wrapped with ErrStart;
// shutdown errors with ErrShutdown.
//
// HealthCheckHandler builds liveness and readiness probes from plain
// func(context.Context) error checks such as telemetry.Healthcheck.
package httpserver
