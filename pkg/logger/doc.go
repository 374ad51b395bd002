// Package logger provides a context-aware wrapper around Go's slog package
// with functional options for configuration and helper attribute
// constructors shared by the machinekit packages.
//
// New creates a *slog.Logger configured by Option functions: output format
// (text or json), minimum level, static attributes, and ContextExtractor
// callbacks that pull attributes from the record context. The dispatch id
// extractor is registered by default, so anything logged with a context
// stamped by WithDispatchID carries "dispatch_id".
//
// # Usage
//
//	log := logger.New(
//	    logger.WithTextFormatter(),
//	    logger.WithLevel(slog.LevelDebug),
//	    logger.WithComponent("caller"),
//	)
//	log.InfoContext(ctx, "state changed",
//	    logger.Machine("engine"),
//	    logger.Event("start"),
//	    logger.State("running"),
//	)
//
// Config can be loaded from LOG_LEVEL and LOG_FORMAT with the config package
// and applied with WithConfig.
package logger
