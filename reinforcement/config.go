package reinforcement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gridvalue/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OuterConfig is the envelope of a config document: a kind, and the definition
// of that kind.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig encodes the problem and algorithm parameters outside of code.
// Keys are lower-case because viper lower-cases every key it reads.
type TrainingConfig struct {
	// HyperParams is a list of key-val pairs: gamma, theta, maxSweeps, workers.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// Algorithm holds algorithm selectors, currently only terminalValue (zero|reward).
	Algorithm map[string]string `yaml:"algorithm"`
	// TrainingDeadline is a duration bounding the whole run.
	TrainingDeadline map[string]string `yaml:"trainingdeadline"`
	// Grid is an optional layout overriding grid_world.DefaultLayout.
	Grid []string `yaml:"grid"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// DefaultConfig matches the reference driver: gamma 0.95, theta 0.05 and a
// cap of 1000 sweeps on the default layout.
func DefaultConfig() *TrainingConfig {
	return &TrainingConfig{
		HyperParams: []HyperParameter{
			{Key: "gamma", Val: grid_world.GAMMA},
			{Key: "theta", Val: 0.05},
			{Key: "maxSweeps", Val: DefaultMaxSweeps},
		},
		Algorithm: map[string]string{
			"terminalValue": Zero.String(),
		},
	}
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if strings.EqualFold(kvp.Key, param) {
			return kvp.Val
		}
	}
	return defaultVal
}

// SetHyperParam overwrites or appends a hyper parameter.
func (cfg *TrainingConfig) SetHyperParam(param string, val float64) {
	for i, kvp := range cfg.HyperParams {
		if strings.EqualFold(kvp.Key, param) {
			cfg.HyperParams[i].Val = val
			return
		}
	}
	cfg.HyperParams = append(cfg.HyperParams, HyperParameter{Key: param, Val: val})
}

// TerminalValue returns the configured terminal value convention.
func (cfg *TrainingConfig) TerminalValue() (TerminalValue, error) {
	return ParseTerminalValue(strings.ToLower(cfg.algorithm("terminalValue")))
}

// SetAlgorithm overwrites or adds an algorithm selector.
func (cfg *TrainingConfig) SetAlgorithm(key, val string) {
	if cfg.Algorithm == nil {
		cfg.Algorithm = map[string]string{}
	}
	for k := range cfg.Algorithm {
		if strings.EqualFold(k, key) {
			delete(cfg.Algorithm, k)
		}
	}
	cfg.Algorithm[key] = val
}

func (cfg *TrainingConfig) algorithm(key string) string {
	for k, v := range cfg.Algorithm {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		if duration, err := time.ParseDuration(val); err != nil {
			return nil, nil, err
		} else {
			innerCtx, cancel := context.WithTimeout(ctx, duration)
			return innerCtx, cancel, nil
		}
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// Model builds the grid world described by the config.
func (cfg *TrainingConfig) Model() (*grid_world.GridModel, error) {
	layout := cfg.Grid
	if len(layout) == 0 {
		layout = grid_world.DefaultLayout
	}
	return grid_world.FromLayout(
		layout,
		cfg.GetHyperParamOrDefault("gamma", grid_world.GAMMA),
		grid_world.DefaultRewards)
}

// SolverOptions converts the algorithm parameters into solver options.
func (cfg *TrainingConfig) SolverOptions() ([]SolverOption, error) {
	tv, err := cfg.TerminalValue()
	if err != nil {
		return nil, err
	}
	return []SolverOption{
		WithTheta(cfg.GetHyperParamOrDefault("theta", DefaultTheta)),
		WithMaxSweeps(int(cfg.GetHyperParamOrDefault("maxSweeps", DefaultMaxSweeps))),
		WithWorkers(int(cfg.GetHyperParamOrDefault("workers", 1))),
		WithTerminalValue(tv),
	}, nil
}

// FromYaml reads an OuterConfig document with viper and decodes its def block
// into a TrainingConfig.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, err
	}

	return innerConfig, nil
}
