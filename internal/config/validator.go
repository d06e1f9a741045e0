package config

import (
	"fmt"
)

// ValidationError represents a semantic configuration error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}

// Validate checks semantic rules the JSON schema cannot express:
// executor-specific field requirements and duration string formats.
func (c *TestConfig) Validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "name", Message: "test name is required"}
	}
	if len(c.Scenarios) == 0 {
		return &ValidationError{Field: "scenarios", Message: "at least one scenario is required"}
	}

	if c.Settings.Timeout != "" {
		if _, err := ParseDurationString(c.Settings.Timeout); err != nil {
			return &ValidationError{Field: "settings.timeout", Message: err.Error()}
		}
	}

	for name, sc := range c.Scenarios {
		if err := validateScenario(name, sc); err != nil {
			return err
		}
	}

	if c.Options != nil && c.Options.GracefulStop != "" {
		if _, err := ParseDurationString(c.Options.GracefulStop); err != nil {
			return &ValidationError{Field: "options.gracefulStop", Message: err.Error()}
		}
	}

	return nil
}

func validateScenario(name string, sc *ScenarioConfig) error {
	field := func(f string) string { return fmt.Sprintf("scenarios.%s.%s", name, f) }

	switch sc.Executor {
	case "constant-vus":
		if sc.VUs <= 0 {
			return &ValidationError{Field: field("vus"), Message: "vus must be > 0"}
		}
		if sc.Duration == "" {
			return &ValidationError{Field: field("duration"), Message: "duration is required"}
		}

	case "ramping-vus", "ramping-arrival-rate":
		if len(sc.Stages) == 0 {
			return &ValidationError{Field: field("stages"), Message: "at least one stage is required"}
		}

	case "constant-arrival-rate":
		if sc.Rate <= 0 {
			return &ValidationError{Field: field("rate"), Message: "rate must be > 0"}
		}
		if sc.Duration == "" {
			return &ValidationError{Field: field("duration"), Message: "duration is required"}
		}

	case "per-vu-iterations", "shared-iterations":
		if sc.VUs <= 0 {
			return &ValidationError{Field: field("vus"), Message: "vus must be > 0"}
		}
		if sc.Iterations <= 0 {
			return &ValidationError{Field: field("iterations"), Message: "iterations must be > 0"}
		}

	case "":
		return &ValidationError{Field: field("executor"), Message: "executor type is required"}

	default:
		return &ValidationError{Field: field("executor"), Message: "unknown executor type: " + sc.Executor}
	}

	for _, f := range []struct{ name, value string }{
		{"duration", sc.Duration},
		{"maxDuration", sc.MaxDuration},
		{"startTime", sc.StartTime},
		{"gracefulStop", sc.GracefulStop},
	} {
		if f.value == "" {
			continue
		}
		if _, err := ParseDurationString(f.value); err != nil {
			return &ValidationError{Field: field(f.name), Message: err.Error()}
		}
	}

	for i, stage := range sc.Stages {
		if _, err := ParseDurationString(stage.Duration); err != nil {
			return &ValidationError{
				Field:   field(fmt.Sprintf("stages[%d].duration", i)),
				Message: err.Error(),
			}
		}
	}

	if sc.Sleep != nil {
		if err := validateSleep(name, sc.Sleep); err != nil {
			return err
		}
	}

	if sc.Session != nil {
		if sc.Session.Cookie == "" {
			return &ValidationError{Field: field("session.cookie"), Message: "session cookie name is required"}
		}
		if err := validateRequest(name, "session.login", &sc.Session.Login); err != nil {
			return err
		}
	}

	if len(sc.Requests) == 0 {
		return &ValidationError{Field: field("requests"), Message: "at least one request is required"}
	}
	for i := range sc.Requests {
		if err := validateRequest(name, fmt.Sprintf("requests[%d]", i), &sc.Requests[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateSleep(scenario string, sleep *SleepConfig) error {
	field := func(f string) string { return fmt.Sprintf("scenarios.%s.sleep.%s", scenario, f) }

	if sleep.Duration != "" && (sleep.Min != "" || sleep.Max != "") {
		return &ValidationError{Field: field("duration"), Message: "duration and min/max are mutually exclusive"}
	}
	if (sleep.Min == "") != (sleep.Max == "") {
		return &ValidationError{Field: field("min"), Message: "min and max must be set together"}
	}

	for _, f := range []struct{ name, value string }{
		{"duration", sleep.Duration},
		{"min", sleep.Min},
		{"max", sleep.Max},
	} {
		if f.value == "" {
			continue
		}
		if _, err := ParseDurationString(f.value); err != nil {
			return &ValidationError{Field: field(f.name), Message: err.Error()}
		}
	}

	if sleep.Min != "" {
		min, _ := ParseDurationString(sleep.Min)
		max, _ := ParseDurationString(sleep.Max)
		if max < min {
			return &ValidationError{Field: field("max"), Message: "max must be >= min"}
		}
	}

	return nil
}

func validateRequest(scenario, where string, req *RequestConfig) error {
	field := func(f string) string { return fmt.Sprintf("scenarios.%s.%s.%s", scenario, where, f) }

	if req.Method == "" {
		return &ValidationError{Field: field("method"), Message: "method is required"}
	}
	if req.URL == "" {
		return &ValidationError{Field: field("url"), Message: "url is required"}
	}

	for _, f := range []struct{ name, value string }{
		{"timeout", req.Timeout},
		{"thinkTime", req.ThinkTime},
	} {
		if f.value == "" {
			continue
		}
		if _, err := ParseDurationString(f.value); err != nil {
			return &ValidationError{Field: field(f.name), Message: err.Error()}
		}
	}

	for i, ext := range req.Extract {
		if ext.Source == "header" && ext.Path == "" {
			return &ValidationError{
				Field:   field(fmt.Sprintf("extract[%d].path", i)),
				Message: "path is required for header extraction",
			}
		}
		if ext.Source == "body" && ext.Path == "" && ext.Regex == "" {
			return &ValidationError{
				Field:   field(fmt.Sprintf("extract[%d].path", i)),
				Message: "path or regex is required for body extraction",
			}
		}
	}

	for i, check := range req.Checks {
		switch check.Type {
		case "status":
			if check.Equals == "" {
				return &ValidationError{
					Field:   field(fmt.Sprintf("checks[%d].equals", i)),
					Message: "equals is required for status checks",
				}
			}
		case "body-contains":
			if check.Contains == "" {
				return &ValidationError{
					Field:   field(fmt.Sprintf("checks[%d].contains", i)),
					Message: "contains is required for body-contains checks",
				}
			}
		case "json":
			if check.Path == "" {
				return &ValidationError{
					Field:   field(fmt.Sprintf("checks[%d].path", i)),
					Message: "path is required for json checks",
				}
			}
		}
	}

	return nil
}

// ApplyDefaults fills unset optional fields. Called after Validate.
func ApplyDefaults(cfg *TestConfig) {
	if cfg.Settings.Timeout == "" {
		cfg.Settings.Timeout = "30s"
	}
	if cfg.Settings.MaxIdleConnsPerHost == 0 {
		cfg.Settings.MaxIdleConnsPerHost = 100
	}
	if cfg.Settings.UserAgent == "" {
		cfg.Settings.UserAgent = "gust-loadtest"
	}

	for name, sc := range cfg.Scenarios {
		if sc.GracefulStop == "" {
			if cfg.Options != nil && cfg.Options.GracefulStop != "" {
				sc.GracefulStop = cfg.Options.GracefulStop
			} else {
				sc.GracefulStop = "30s"
			}
		}

		switch sc.Executor {
		case "constant-arrival-rate", "ramping-arrival-rate":
			if sc.PreAllocatedVUs <= 0 {
				sc.PreAllocatedVUs = 1
			}
			if sc.MaxVUs < sc.PreAllocatedVUs {
				sc.MaxVUs = sc.PreAllocatedVUs
			}
		case "per-vu-iterations", "shared-iterations":
			if sc.MaxDuration == "" {
				sc.MaxDuration = "10m"
			}
		}

		if sc.Session != nil && sc.Session.ExpectStatus == 0 {
			sc.Session.ExpectStatus = 200
		}

		for i := range sc.Requests {
			if sc.Requests[i].Name == "" {
				sc.Requests[i].Name = fmt.Sprintf("%s_request_%d", name, i+1)
			}
		}
	}

	if cfg.Report == nil {
		cfg.Report = &ReportConfig{}
	}
	if cfg.Report.Title == "" {
		cfg.Report.Title = cfg.Name
	}
}
