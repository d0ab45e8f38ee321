// Package config loads tool-level settings.
//
// Settings are machine knobs, not case configuration: where sbatch lives, how
// fast submissions are paced, how verbose the logger is. They come from
// environment variables with the CCLMCTL_ prefix (CCLMCTL_SBATCH,
// CCLMCTL_SUBMIT_RATE, CCLMCTL_LOG_LEVEL, CCLMCTL_TASKS_PER_NODE), falling
// back to defaults. Case configuration lives in the setup file and the
// ledger.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Settings are the resolved tool-level knobs.
type Settings struct {
	// Sbatch is the scheduler submit binary.
	Sbatch string `mapstructure:"sbatch"`

	// SubmitRate caps sbatch invocations per second.
	SubmitRate float64 `mapstructure:"submit_rate"`

	// LogLevel is the CLI logger level (debug|info|warn|error).
	LogLevel string `mapstructure:"log_level"`

	// TasksPerNode is the node size used to compute job node counts.
	TasksPerNode int `mapstructure:"tasks_per_node"`

	// SubmitTimeout bounds one sbatch invocation.
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
}

// Defaults.
const (
	DefaultSbatch        = "sbatch"
	DefaultSubmitRate    = 2.0
	DefaultLogLevel      = "info"
	DefaultTasksPerNode  = 12
	DefaultSubmitTimeout = time.Minute
)

// Load resolves settings from the environment over defaults.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("CCLMCTL")
	v.AutomaticEnv()
	setDefaults(v)

	var s Settings
	hook := viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())
	if err := v.Unmarshal(&s, hook); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if s.SubmitRate <= 0 {
		return nil, fmt.Errorf("submit_rate must be positive, got %v", s.SubmitRate)
	}
	if s.TasksPerNode <= 0 {
		return nil, fmt.Errorf("tasks_per_node must be positive, got %d", s.TasksPerNode)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sbatch", DefaultSbatch)
	v.SetDefault("submit_rate", DefaultSubmitRate)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("tasks_per_node", DefaultTasksPerNode)
	v.SetDefault("submit_timeout", DefaultSubmitTimeout)
}
