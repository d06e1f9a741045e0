package executor

import (
	"testing"
	"time"

	"github.com/gustload/gust/internal/config"
)

func TestNew(t *testing.T) {
	types := []Type{
		TypeConstantVUs,
		TypeRampingVUs,
		TypePerVUIterations,
		TypeSharedIterations,
		TypeConstantArrivalRate,
		TypeRampingArrivalRate,
	}

	for _, execType := range types {
		t.Run(string(execType), func(t *testing.T) {
			exec, err := New(execType)
			if err != nil {
				t.Fatalf("New(%s) error = %v", execType, err)
			}
			if exec.Type() != execType {
				t.Errorf("Type() = %s, want %s", exec.Type(), execType)
			}
		})
	}

	if _, err := New("nonsense"); err == nil {
		t.Error("New() should fail for an unknown type")
	}
}

func TestConfigFromScenario(t *testing.T) {
	sc := &config.ScenarioConfig{
		Executor:     "ramping-vus",
		GracefulStop: "10s",
		Stages: []config.StageConfig{
			{Duration: "30s", Target: 20, Name: "ramp up"},
			{Duration: "1m", Target: 20},
			{Duration: "30s", Target: 0},
		},
	}

	cfg, err := ConfigFromScenario("spike", sc)
	if err != nil {
		t.Fatalf("ConfigFromScenario() error = %v", err)
	}

	if cfg.Name != "spike" || cfg.Type != TypeRampingVUs {
		t.Errorf("got %s/%s", cfg.Name, cfg.Type)
	}
	if cfg.GracefulStop != 10*time.Second {
		t.Errorf("GracefulStop = %v", cfg.GracefulStop)
	}
	if len(cfg.Stages) != 3 {
		t.Fatalf("got %d stages", len(cfg.Stages))
	}
	if cfg.Stages[1].Duration != time.Minute || cfg.Stages[0].Name != "ramp up" {
		t.Errorf("stages = %+v", cfg.Stages)
	}
	if cfg.TotalDuration() != 2*time.Minute {
		t.Errorf("TotalDuration() = %v, want 2m", cfg.TotalDuration())
	}
}

func TestConfigFromScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		sc   *config.ScenarioConfig
	}{
		{
			name: "bad duration string",
			sc: &config.ScenarioConfig{
				Executor: "constant-vus",
				VUs:      5,
				Duration: "soon",
			},
		},
		{
			name: "bad stage duration",
			sc: &config.ScenarioConfig{
				Executor: "ramping-vus",
				Stages:   []config.StageConfig{{Duration: "later", Target: 5}},
			},
		},
		{
			name: "fails executor validation",
			sc: &config.ScenarioConfig{
				Executor: "constant-arrival-rate",
				Duration: "30s",
				// no rate
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ConfigFromScenario("s", tt.sc); err == nil {
				t.Error("ConfigFromScenario() succeeded, want error")
			}
		})
	}
}
