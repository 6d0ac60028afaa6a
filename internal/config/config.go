// Package config loads the runtime's construction parameters with
// spf13/viper, following the same Load/setDefaults shape used throughout
// this codebase's ambient stack.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for an embedding binary that
// constructs an execution system.
type Config struct {
	LogLevel string
	Pretty   bool
	Exec     ExecConfig
}

// ExecConfig mirrors exec.Config's shape so it can be loaded from YAML
// or CORORT_-prefixed environment variables before being translated into
// an exec.Config by the embedder.
type ExecConfig struct {
	MaxQueue      int
	Workers       []WorkerConfig
	MainQueueMask uint64
}

// WorkerConfig mirrors exec.WorkerConfig's shape for configuration
// loading.
type WorkerConfig struct {
	Name           string
	AllowedQueues  uint64
	IdleSpinBudget uint32
	PinOSThread    bool
}

// Load reads config.yaml from the working directory, ./config, or
// /etc/corort, overlays CORORT_-prefixed environment variables, and
// falls back to setDefaults when no file is present.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/corort")

	setDefaults()

	viper.SetEnvPrefix("CORORT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("pretty", false)

	viper.SetDefault("exec.maxqueue", 1)
	viper.SetDefault("exec.mainqueuemask", 1) // bit 0: Main
	viper.SetDefault("exec.workers", []map[string]interface{}{
		{
			"name":           "worker-0",
			"allowedqueues":  2, // bit 1: Worker
			"idlespinbudget": 64,
			"pinosthread":    false,
		},
	})
}

// DefaultIdleSpinBudget is used by callers building an ExecConfig by hand
// rather than loading one, matching the default above.
const DefaultIdleSpinBudget = 64

// DefaultShutdownTimeout bounds how long Scheduler.Close waits for
// workers to drain before giving up, mirroring the teacher's
// WorkerConfig.ShutdownTimeout.
const DefaultShutdownTimeout = 5 * time.Second
