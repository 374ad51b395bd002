// Package config loads typed configuration from environment variables.
//
// It is a thin layer over github.com/caarlos0/env and github.com/joho/godotenv:
// struct fields are described with `env` and `envDefault` tags, an optional
// .env file is read once per process, and parsed values are cached per type
// (and prefix) so every component sees the same settings.
//
// # Usage
//
//	type Config struct {
//	    StopTimeout time.Duration `env:"MACHINE_CALLER_STOP_TIMEOUT" envDefault:"5s"`
//	    QueueWarn   int           `env:"MACHINE_CALLER_QUEUE_WARN" envDefault:"1024"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// LoadPrefixed loads the same struct under a variable prefix, Parse skips
// the cache, and LoadEnvFiles reads explicit .env files (used by the CLI
// --env-file flag).
//
// # Errors
//
// Parsing failures wrap ErrParsingConfig together with the underlying env
// error, so both errors.Is(err, config.ErrParsingConfig) and inspection of
// the env error work.
package config
