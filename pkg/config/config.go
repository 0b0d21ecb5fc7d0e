// Package config loads the run configuration shared by the tracegram
// commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v2"
)

// Strategy names accepted by the fuzz command.
const (
	StrategyTerminal = "terminal"
	StrategyCode     = "code"
	StrategyCoverage = "coverage"
	StrategyRandom   = "random"
)

// Strategies returns the strategy names a run can be configured with. The
// symbol strategy needs a target and is only used by target runs.
func Strategies() []string {
	return []string{StrategyTerminal, StrategyCode, StrategyCoverage, StrategyRandom}
}

// ErrInvalidConfig indicates a configuration value is out of range.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds the settings of a mining and fuzzing run.
type Config struct {
	// Seeds is the number of fuzzing seeds; seeds 0..Seeds are run.
	Seeds int `yaml:"seeds"`

	// Strategy selects the fuzzer used by the fuzz command.
	Strategy string `yaml:"strategy"`

	// OutputDir is where grammars and generated inputs are written.
	OutputDir string `yaml:"output_dir"`

	// MaxExpansions bounds free expansion steps per round before the tree
	// is closed with minimal-cost alternatives.
	MaxExpansions int `yaml:"max_expansions"`

	// Parallelism is the number of seeds fuzzed concurrently.
	Parallelism int `yaml:"parallelism"`

	// Confidence and Margin parameterize target sampling.
	Confidence float64 `yaml:"confidence"`
	Margin     float64 `yaml:"margin"`

	// TranslateNames shortens state and widget ids to sNN and wNN.
	TranslateNames bool `yaml:"translate_names"`

	// AppPackage identifies in-app widgets in state files. When empty the
	// name of the directory holding the states directory is used.
	AppPackage string `yaml:"app_package"`

	// MetricsFile, when set, receives the run metrics in the Prometheus
	// text format.
	MetricsFile string `yaml:"metrics_file"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Seeds:          11,
		Strategy:       StrategyTerminal,
		OutputDir:      ".",
		MaxExpansions:  2000,
		Parallelism:    1,
		Confidence:     0.90,
		Margin:         0.10,
		TranslateNames: true,
	}
}

// Load reads a YAML configuration file. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return Parse(content)
}

// Parse decodes a YAML configuration document over the defaults.
func Parse(content []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	if !slices.Contains(Strategies(), c.Strategy) {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	if c.Seeds < 0 {
		return fmt.Errorf("%w: seeds must not be negative", ErrInvalidConfig)
	}
	if c.MaxExpansions <= 0 {
		return fmt.Errorf("%w: max_expansions must be positive", ErrInvalidConfig)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("%w: parallelism must be positive", ErrInvalidConfig)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("%w: confidence must be in (0, 1)", ErrInvalidConfig)
	}
	if c.Margin <= 0 || c.Margin >= 1 {
		return fmt.Errorf("%w: margin must be in (0, 1)", ErrInvalidConfig)
	}
	return nil
}

// Marshal returns the YAML form of the configuration.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
