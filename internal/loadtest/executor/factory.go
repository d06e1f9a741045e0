package executor

import (
	"fmt"

	"github.com/gustload/gust/internal/config"
)

// New creates an executor of the given type.
func New(execType Type) (Executor, error) {
	switch execType {
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	case TypeRampingVUs:
		return NewRampingVUs(), nil
	case TypePerVUIterations:
		return NewPerVUIterations(), nil
	case TypeSharedIterations:
		return NewSharedIterations(), nil
	case TypeConstantArrivalRate:
		return NewConstantArrivalRate(), nil
	case TypeRampingArrivalRate:
		return NewRampingArrivalRate(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", execType)
	}
}

// ConfigFromScenario converts a parsed scenario configuration into an
// executor configuration, resolving all duration strings.
func ConfigFromScenario(name string, sc *config.ScenarioConfig) (*Config, error) {
	cfg := &Config{
		Name:            name,
		Type:            Type(sc.Executor),
		VUs:             sc.VUs,
		Iterations:      sc.Iterations,
		Rate:            sc.Rate,
		PreAllocatedVUs: sc.PreAllocatedVUs,
		MaxVUs:          sc.MaxVUs,
	}

	var err error
	if sc.Duration != "" {
		cfg.Duration, err = config.ParseDurationString(sc.Duration)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: invalid duration: %w", name, err)
		}
	}
	if sc.MaxDuration != "" {
		cfg.MaxDuration, err = config.ParseDurationString(sc.MaxDuration)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: invalid maxDuration: %w", name, err)
		}
	}
	if sc.GracefulStop != "" {
		cfg.GracefulStop, err = config.ParseDurationString(sc.GracefulStop)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: invalid gracefulStop: %w", name, err)
		}
	}

	for i, stage := range sc.Stages {
		d, err := config.ParseDurationString(stage.Duration)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: stage %d: invalid duration: %w", name, i, err)
		}
		cfg.Stages = append(cfg.Stages, Stage{
			Duration: d,
			Target:   stage.Target,
			Name:     stage.Name,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}

	return cfg, nil
}
