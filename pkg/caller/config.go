package caller

import (
	"time"

	"github.com/dmitrymomot/machinekit/pkg/config"
)

// Config tunes a Caller. Zero values fall back to DefaultConfig.
type Config struct {
	// StopTimeout bounds how long Stop waits for the running dispatch.
	StopTimeout time.Duration `env:"MACHINE_CALLER_STOP_TIMEOUT" envDefault:"5s"`
	// QueueWarn is the queue length at which a warning is logged. Zero disables it.
	QueueWarn int `env:"MACHINE_CALLER_QUEUE_WARN" envDefault:"1024"`
}

// DefaultConfig returns the values used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		StopTimeout: 5 * time.Second,
		QueueWarn:   1024,
	}
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
