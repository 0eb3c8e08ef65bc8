package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the points tunables. Loaded from an optional YAML file
// so point values can change without a redeploy.
type Config struct {
	// PointsPerHour is awarded for each scored hour in a focus channel.
	PointsPerHour int `yaml:"points_per_hour"`

	// RoundUpMinutes promotes a trailing partial hour to a full one.
	// With the default 55, a 1h55m session scores as two hours.
	RoundUpMinutes int `yaml:"round_up_minutes"`

	// TaskCompletionPoints is awarded for completing a task.
	TaskCompletionPoints int `yaml:"task_completion_points"`
}

// DefaultConfig returns the stock point values.
func DefaultConfig() Config {
	return Config{
		PointsPerHour:        5,
		RoundUpMinutes:       55,
		TaskCompletionPoints: 2,
	}
}

// LoadConfig reads the YAML tunables file. An empty path returns the
// defaults; file values override defaults field by field.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading scoring config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing scoring config: %w", err)
	}

	if cfg.PointsPerHour < 0 || cfg.TaskCompletionPoints < 0 {
		return cfg, fmt.Errorf("scoring config: point values must be non-negative")
	}
	if cfg.RoundUpMinutes < 1 || cfg.RoundUpMinutes > 60 {
		return cfg, fmt.Errorf("scoring config: round_up_minutes must be 1-60, got %d", cfg.RoundUpMinutes)
	}
	return cfg, nil
}
