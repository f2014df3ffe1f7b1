package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBindAddress  = "0.0.0.0"
	defaultProbePort    = 7001
	defaultIOTimeout    = 5 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 5
)

// Config is the process configuration resolved from the environment.
type Config struct {
	BindAddress     string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	AllowedNetworks []*net.IPNet
	MetricsAddr     string

	SchedulerWorkers      int
	SchedulerPollInterval time.Duration
	SchedulerMaxAttempts  int

	Debug bool
}

// Load reads envFile (if given and present) into the process environment and
// then resolves the configuration. Variables already set in the environment
// take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		BindAddress:     String("PROBE_BIND_ADDRESS", defaultBindAddress),
		Port:            Int("PROBE_PORT", defaultProbePort),
		ReadTimeout:     Duration("PROBE_READ_TIMEOUT", defaultIOTimeout),
		WriteTimeout:    Duration("PROBE_WRITE_TIMEOUT", defaultIOTimeout),
		AllowedNetworks: AllowedNetworks(),
		MetricsAddr:     String("PROBE_METRICS_ADDR", ""),

		SchedulerWorkers:      SchedulerWorkers(),
		SchedulerPollInterval: Duration("SCHEDULER_POLL_INTERVAL", defaultPollInterval),
		SchedulerMaxAttempts:  Int("SCHEDULER_MAX_ATTEMPTS", defaultMaxAttempts),

		Debug: os.Getenv("PROBE_DEBUG") == "1",
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise only fail at bind time.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("PROBE_PORT %d out of range", c.Port)
	}
	if c.SchedulerPollInterval <= 0 {
		return errors.New("SCHEDULER_POLL_INTERVAL must be > 0")
	}
	if c.SchedulerMaxAttempts < 1 {
		return errors.New("SCHEDULER_MAX_ATTEMPTS must be >= 1")
	}
	return nil
}
