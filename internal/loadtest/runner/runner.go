// Package runner orchestrates a load test: it compiles the parsed
// configuration into scenarios, drives their executors and assembles
// the final result.
package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gustload/gust/internal/config"
	"github.com/gustload/gust/internal/loadtest"
	"github.com/gustload/gust/internal/loadtest/executor"
	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/logging"
)

// Result is the assembled outcome of a completed run.
type Result struct {
	TestName    string                         `json:"testName"`
	Description string                         `json:"description,omitempty"`
	StartTime   time.Time                      `json:"startTime"`
	EndTime     time.Time                      `json:"endTime"`
	Duration    time.Duration                  `json:"duration"`
	Snapshot    *metrics.Snapshot              `json:"snapshot"`
	Requests    map[string]metrics.LatencyStats `json:"requests"`
	Checks      []metrics.CheckStats           `json:"checks"`
	Series      []*metrics.Bucket              `json:"series"`
	Scenarios   map[string]*executor.Stats     `json:"scenarios"`
	Thresholds  []ThresholdResult              `json:"thresholds,omitempty"`
	Passed      bool                           `json:"passed"`
}

// Runner executes a load test described by a TestConfig.
type Runner struct {
	cfg       *config.TestConfig
	collector *metrics.Collector
	logger    *zap.Logger

	executors map[string]executor.Executor
	mu        sync.Mutex
}

// New creates a runner. The collector is exposed via Collector so
// outputs can subscribe before Run starts.
func New(cfg *config.TestConfig, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		collector: metrics.NewCollector(),
		logger:    logging.OrNop(logger),
		executors: make(map[string]executor.Executor),
	}
}

// Collector returns the metrics collector for this run.
func (r *Runner) Collector() *metrics.Collector {
	return r.collector
}

// Run executes all scenarios and blocks until they complete or the
// context is cancelled. The collector is stopped before returning, so
// the result carries the final bucket.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	clientConfig, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(r.cfg.Scenarios))
	for name := range r.cfg.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	sequential := r.cfg.Options != nil && r.cfg.Options.Sequential

	type scenarioRun struct {
		name  string
		delay time.Duration
		exec  executor.Executor
		sched *loadtest.VUScheduler
	}

	runs := make([]scenarioRun, 0, len(names))
	for _, name := range names {
		sc := r.cfg.Scenarios[name]

		execCfg, err := executor.ConfigFromScenario(name, sc)
		if err != nil {
			return nil, err
		}

		exec, err := executor.New(execCfg.Type)
		if err != nil {
			return nil, err
		}
		if err := exec.Init(ctx, execCfg); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}

		scenario, err := r.compileScenario(name, sc)
		if err != nil {
			return nil, err
		}

		var delay time.Duration
		if sc.StartTime != "" {
			delay, err = config.ParseDurationString(sc.StartTime)
			if err != nil {
				return nil, fmt.Errorf("scenario %s: invalid startTime: %w", name, err)
			}
		}

		sched := loadtest.NewVUScheduler(scenario, r.collector, clientConfig, r.logger)
		runs = append(runs, scenarioRun{name: name, delay: delay, exec: exec, sched: sched})

		r.mu.Lock()
		r.executors[name] = exec
		r.mu.Unlock()
	}

	r.logger.Info("starting load test",
		zap.String("test", r.cfg.Name),
		zap.Int("scenarios", len(runs)),
		zap.Bool("sequential", sequential))

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)

	runOne := func(run scenarioRun) {
		if run.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(run.delay):
			}
		}

		r.logger.Info("starting scenario",
			zap.String("scenario", run.name),
			zap.String("executor", string(run.exec.Type())))

		if err := run.exec.Run(ctx, run.sched, r.collector); err != nil && ctx.Err() == nil {
			errMu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("scenario %s: %w", run.name, err)
			}
			errMu.Unlock()
		}

		run.sched.Shutdown(gracefulStop(r.cfg, r.cfg.Scenarios[run.name]))

		r.logger.Info("scenario finished", zap.String("scenario", run.name))
	}

	if sequential {
		for _, run := range runs {
			if ctx.Err() != nil {
				break
			}
			runOne(run)
		}
	} else {
		for _, run := range runs {
			wg.Add(1)
			go func(run scenarioRun) {
				defer wg.Done()
				runOne(run)
			}(run)
		}
		wg.Wait()
	}

	r.collector.Stop()

	endTime := time.Now()
	snapshot := r.collector.Snapshot()

	thresholds, err := EvaluateThresholds(r.cfg.Thresholds, snapshot, endTime.Sub(startTime))
	if err != nil {
		return nil, err
	}

	scenarioStats := make(map[string]*executor.Stats, len(runs))
	r.mu.Lock()
	for name, exec := range r.executors {
		scenarioStats[name] = exec.Stats()
	}
	r.mu.Unlock()

	result := &Result{
		TestName:    r.cfg.Name,
		Description: r.cfg.Description,
		StartTime:   startTime,
		EndTime:     endTime,
		Duration:    endTime.Sub(startTime),
		Snapshot:    snapshot,
		Requests:    r.collector.RequestStats(),
		Checks:      r.collector.CheckStats(),
		Series:      r.collector.Series(),
		Scenarios:   scenarioStats,
		Thresholds:  thresholds,
		Passed:      AllPassed(thresholds),
	}

	if firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// Stop asks every executor to stop early.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	execs := make([]executor.Executor, 0, len(r.executors))
	for _, exec := range r.executors {
		execs = append(execs, exec)
	}
	r.mu.Unlock()

	for _, exec := range execs {
		if err := exec.Stop(ctx); err != nil {
			r.logger.Warn("executor stop", zap.Error(err))
		}
	}
}

// Progress returns the mean progress across all executors.
func (r *Runner) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.executors) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, exec := range r.executors {
		sum += exec.Progress()
	}
	return sum / float64(len(r.executors))
}

func (r *Runner) clientConfig() (loadtest.HTTPClientConfig, error) {
	cc := loadtest.DefaultHTTPClientConfig()
	settings := r.cfg.Settings

	if settings.Timeout != "" {
		timeout, err := config.ParseDurationString(settings.Timeout)
		if err != nil {
			return cc, fmt.Errorf("invalid settings.timeout: %w", err)
		}
		cc.Timeout = timeout
	}
	if settings.MaxConnectionsPerHost > 0 {
		cc.MaxConnectionsPerHost = settings.MaxConnectionsPerHost
	}
	if settings.MaxIdleConnsPerHost > 0 {
		cc.MaxIdleConnsPerHost = settings.MaxIdleConnsPerHost
	}
	cc.InsecureSkipVerify = settings.InsecureSkipVerify
	cc.UserAgent = settings.UserAgent
	cc.Headers = settings.Headers

	return cc, nil
}

// compileScenario turns a parsed scenario configuration into the
// runtime form, resolving durations and merging variable scopes.
func (r *Runner) compileScenario(name string, sc *config.ScenarioConfig) (*loadtest.Scenario, error) {
	variables := make(map[string]string)
	if r.cfg.Settings.BaseURL != "" {
		variables["baseUrl"] = r.cfg.Settings.BaseURL
	}
	for k, v := range r.cfg.Variables {
		variables[k] = v
	}
	for k, v := range sc.Tags {
		variables[k] = v
	}

	scenario := &loadtest.Scenario{
		Name:      name,
		Variables: variables,
	}

	if sc.Sleep != nil {
		sleep, err := compileSleep(sc.Sleep)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
		scenario.Sleep = sleep
	}

	for i := range sc.Requests {
		req, err := r.compileRequest(&sc.Requests[i])
		if err != nil {
			return nil, fmt.Errorf("scenario %s: request %q: %w", name, sc.Requests[i].Name, err)
		}
		scenario.Requests = append(scenario.Requests, req)
	}

	if sc.Session != nil {
		login, err := r.compileRequest(&sc.Session.Login)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: session login: %w", name, err)
		}
		if login.Name == "" {
			login.Name = "login"
		}
		scenario.Session = &loadtest.SessionSpec{
			Login:         login,
			Cookie:        sc.Session.Cookie,
			FallbackValue: sc.Session.FallbackValue,
			ExpectStatus:  sc.Session.ExpectStatus,
		}
	}

	return scenario, nil
}

func (r *Runner) compileRequest(rc *config.RequestConfig) (*loadtest.RequestSpec, error) {
	spec := &loadtest.RequestSpec{
		Name:    rc.Name,
		Method:  strings.ToUpper(rc.Method),
		URL:     rc.URL,
		Headers: rc.Headers,
		Body:    rc.Body,
	}

	// Relative URLs are joined onto the base URL.
	if strings.HasPrefix(spec.URL, "/") && r.cfg.Settings.BaseURL != "" {
		spec.URL = strings.TrimRight(r.cfg.Settings.BaseURL, "/") + spec.URL
	}

	var err error
	if rc.Timeout != "" {
		spec.Timeout, err = config.ParseDurationString(rc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
	}
	if rc.ThinkTime != "" {
		spec.ThinkTime, err = config.ParseDurationString(rc.ThinkTime)
		if err != nil {
			return nil, fmt.Errorf("invalid thinkTime: %w", err)
		}
	}

	for _, ext := range rc.Extract {
		spec.Extract = append(spec.Extract, loadtest.ExtractSpec{
			Name:   ext.Name,
			Source: ext.Source,
			Path:   ext.Path,
			Regex:  ext.Regex,
		})
	}

	for _, check := range rc.Checks {
		spec.Checks = append(spec.Checks, loadtest.CheckSpec{
			Name:     check.Name,
			Type:     check.Type,
			Equals:   check.Equals,
			Contains: check.Contains,
			Path:     check.Path,
		})
	}

	return spec, nil
}

func compileSleep(sc *config.SleepConfig) (*loadtest.SleepSpec, error) {
	spec := &loadtest.SleepSpec{}
	var err error

	if sc.Duration != "" {
		spec.Constant, err = config.ParseDurationString(sc.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid sleep duration: %w", err)
		}
		return spec, nil
	}

	if sc.Min != "" {
		spec.Min, err = config.ParseDurationString(sc.Min)
		if err != nil {
			return nil, fmt.Errorf("invalid sleep min: %w", err)
		}
	}
	if sc.Max != "" {
		spec.Max, err = config.ParseDurationString(sc.Max)
		if err != nil {
			return nil, fmt.Errorf("invalid sleep max: %w", err)
		}
	}
	if spec.Max < spec.Min {
		return nil, fmt.Errorf("sleep max must be >= min")
	}

	return spec, nil
}

func gracefulStop(cfg *config.TestConfig, sc *config.ScenarioConfig) time.Duration {
	raw := sc.GracefulStop
	if raw == "" && cfg.Options != nil {
		raw = cfg.Options.GracefulStop
	}
	if raw == "" {
		return 30 * time.Second
	}
	d, err := config.ParseDurationString(raw)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
