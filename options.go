// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package systest

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/corewright/systest/scheduler"
	"github.com/corewright/systest/strategy"
)

// Config holds every configuration key enumerated in §6.
type Config struct {
	Strategy                     string
	Seed                         uint64
	Iterations                   uint32
	MaxUnfairSteps               int
	MaxFairSteps                 int
	DepthBoundHitAsBug           bool
	ProgramStateHashing          bool
	LivenessTemperatureThreshold int
	DeadlockTimeoutMS            int
	RelaxedControlledTesting     bool
	AttachDebuggerOnBug          bool
}

// --- Runtime Options ---

// Option configures a Runtime instance.
type Option interface {
	applyConfig(*Config) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyConfigFunc func(*Config) error
}

func (o *optionImpl) applyConfig(cfg *Config) error {
	return o.applyConfigFunc(cfg)
}

var knownStrategies = map[string]bool{
	"random": true, "probabilistic": true, "pct": true,
	"fair-pct": true, "dfs": true, "portfolio": true,
}

// WithStrategy sets the exploration strategy by name: one of random,
// probabilistic, pct, fair-pct, dfs, portfolio.
func WithStrategy(name string) Option {
	return &optionImpl{func(cfg *Config) error {
		if !knownStrategies[name] {
			return fmt.Errorf("systest: unknown strategy %q", name)
		}
		cfg.Strategy = name
		return nil
	}}
}

// WithSeed sets the strategy's random seed. Must be replay-stable:
// the same seed against the same configuration and program always
// produces the same scheduling decisions.
func WithSeed(seed uint64) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.Seed = seed
		return nil
	}}
}

// WithIterations sets the number of iterations to run.
func WithIterations(n uint32) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.Iterations = n
		return nil
	}}
}

// WithMaxUnfairSteps sets the unfair scheduling-step bound.
func WithMaxUnfairSteps(n int) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.MaxUnfairSteps = n
		return nil
	}}
}

// WithMaxFairSteps sets the fair scheduling-step bound.
func WithMaxFairSteps(n int) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.MaxFairSteps = n
		return nil
	}}
}

// WithDepthBoundHitAsBug sets whether hitting the step bound is itself
// reported as a bug, rather than a silent detach.
func WithDepthBoundHitAsBug(enabled bool) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.DepthBoundHitAsBug = enabled
		return nil
	}}
}

// WithProgramStateHashing sets Config.ProgramStateHashing, which Runtime
// passes on to scheduler.Config. The scheduler does not hash program
// state, and no strategy in this module reads the flag.
func WithProgramStateHashing(enabled bool) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.ProgramStateHashing = enabled
		return nil
	}}
}

// WithLivenessTemperatureThreshold sets the monitor hot-state
// temperature threshold above which a liveness failure is reported.
// Zero (the default) is replaced by MaxFairSteps/2 when MaxFairSteps is
// set; it disables the check only when MaxFairSteps is zero too.
func WithLivenessTemperatureThreshold(n int) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.LivenessTemperatureThreshold = n
		return nil
	}}
}

// WithDeadlockTimeoutMS sets the wall-clock deadlock detection timeout,
// used only outside controlled (deterministic) testing.
func WithDeadlockTimeoutMS(ms int) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.DeadlockTimeoutMS = ms
		return nil
	}}
}

// WithRelaxedControlledTesting permits a retry-sleep loop when an
// operation blocks on a dependency the scheduler does not control.
func WithRelaxedControlledTesting(enabled bool) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.RelaxedControlledTesting = enabled
		return nil
	}}
}

// WithAttachDebuggerOnBug sets whether a bug report should pause for
// debugger attachment before the iteration unwinds.
func WithAttachDebuggerOnBug(enabled bool) Option {
	return &optionImpl{func(cfg *Config) error {
		cfg.AttachDebuggerOnBug = enabled
		return nil
	}}
}

// resolveOptions applies Option instances over the §6 defaults.
func resolveOptions(opts []Option) (*Config, error) {
	cfg := &Config{
		Strategy:          "random",
		Iterations:        1,
		DeadlockTimeoutMS: 5000,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyConfig(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.LivenessTemperatureThreshold == 0 && cfg.MaxFairSteps > 0 {
		cfg.LivenessTemperatureThreshold = cfg.MaxFairSteps / 2
	}
	return cfg, nil
}

// ConfigFromMap builds a Config from an external harness's map[string]any of
// the §6 configuration keys (e.g. parsed from a YAML/JSON file by the
// caller), using viper purely as an unmarshal helper — systest itself
// owns no file format or CLI.
func ConfigFromMap(m map[string]interface{}) (*Config, error) {
	v := viper.New()
	v.SetDefault("strategy", "random")
	v.SetDefault("iterations", uint32(1))
	v.SetDefault("deadlock-timeout-ms", 5000)
	if err := v.MergeConfigMap(m); err != nil {
		return nil, fmt.Errorf("systest: ConfigFromMap: %w", err)
	}

	opts := []Option{
		WithStrategy(v.GetString("strategy")),
		WithSeed(uint64(v.GetInt64("seed"))),
		WithIterations(uint32(v.GetInt("iterations"))),
		WithMaxUnfairSteps(v.GetInt("max-unfair-steps")),
		WithMaxFairSteps(v.GetInt("max-fair-steps")),
		WithDepthBoundHitAsBug(v.GetBool("depth-bound-hit-as-bug")),
		WithProgramStateHashing(v.GetBool("program-state-hashing")),
		WithLivenessTemperatureThreshold(v.GetInt("liveness-temperature-threshold")),
		WithDeadlockTimeoutMS(v.GetInt("deadlock-timeout-ms")),
		WithRelaxedControlledTesting(v.GetBool("relaxed-controlled-testing")),
		WithAttachDebuggerOnBug(v.GetBool("attach-debugger-on-bug")),
	}
	return resolveOptions(opts)
}

// BuildStrategy constructs the scheduler.Strategy named by cfg.Strategy,
// seeded and step-bounded per cfg. fair-pct and pct share a constructor
// distinguished only by the fairness flag; portfolio is assembled by
// the caller (it fans out over several inner strategies, §4.4) and is
// therefore rejected here with a descriptive error.
func (cfg *Config) BuildStrategy() (scheduler.Strategy, error) {
	maxSteps := cfg.MaxUnfairSteps
	if cfg.MaxFairSteps > maxSteps {
		maxSteps = cfg.MaxFairSteps
	}
	switch cfg.Strategy {
	case "random", "":
		return strategy.NewRandom(cfg.Seed, maxSteps), nil
	case "probabilistic":
		return strategy.NewProbabilistic(cfg.Seed, 2, maxSteps), nil
	case "pct":
		return strategy.NewPCT(cfg.Seed, 3, maxSteps), nil
	case "fair-pct":
		return strategy.NewFairPCT(cfg.Seed, 3, maxSteps), nil
	case "dfs":
		return strategy.NewDFS(maxSteps), nil
	case "portfolio":
		return nil, fmt.Errorf("systest: portfolio strategy is assembled by the caller, not BuildStrategy")
	default:
		return nil, fmt.Errorf("systest: unknown strategy %q", cfg.Strategy)
	}
}
