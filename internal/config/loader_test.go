package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
name: "Storefront Load Test"
description: "Browse and checkout under load"
settings:
  baseUrl: "https://shop.example.com"
  timeout: "10s"
variables:
  apiKey: "test-key"
scenarios:
  browse:
    executor: constant-vus
    vus: 5
    duration: 30s
    sleep:
      min: 1s
      max: 3s
    requests:
      - name: "List Products"
        method: GET
        url: "{{baseUrl}}/api/products"
        checks:
          - name: "status is 200"
            type: status
            equals: "200"
  checkout:
    executor: ramping-vus
    stages:
      - duration: 10s
        target: 10
      - duration: 20s
        target: 0
    session:
      cookie: sessionid
      fallbackValue: abc123
      login:
        method: POST
        url: "{{baseUrl}}/login"
        body: '{"user":"u","pass":"p"}'
    requests:
      - method: GET
        url: "{{baseUrl}}/cart"
thresholds:
  http_req_duration:
    - "p95 < 500ms"
  http_req_failed:
    - "rate < 0.01"
`

func TestParseConfig_Valid(t *testing.T) {
	cfg, err := ParseConfig([]byte(validYAML))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if cfg.Name != "Storefront Load Test" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if len(cfg.Scenarios) != 2 {
		t.Fatalf("got %d scenarios, want 2", len(cfg.Scenarios))
	}

	browse := cfg.Scenarios["browse"]
	if browse.Executor != "constant-vus" || browse.VUs != 5 {
		t.Errorf("browse = %s/%d VUs", browse.Executor, browse.VUs)
	}
	if len(browse.Requests) != 1 || browse.Requests[0].Name != "List Products" {
		t.Errorf("browse requests = %+v", browse.Requests)
	}

	checkout := cfg.Scenarios["checkout"]
	if checkout.Session == nil || checkout.Session.Cookie != "sessionid" {
		t.Errorf("checkout session = %+v", checkout.Session)
	}
	if len(checkout.Stages) != 2 || checkout.Stages[0].Target != 10 {
		t.Errorf("checkout stages = %+v", checkout.Stages)
	}

	if cfg.Thresholds == nil || len(cfg.Thresholds.HTTPReqDuration) != 1 {
		t.Errorf("thresholds = %+v", cfg.Thresholds)
	}
}

func TestParseConfig_DefaultsApplied(t *testing.T) {
	cfg, err := ParseConfig([]byte(validYAML))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if cfg.Settings.MaxIdleConnsPerHost != 100 {
		t.Errorf("MaxIdleConnsPerHost = %d, want default 100", cfg.Settings.MaxIdleConnsPerHost)
	}
	if cfg.Settings.UserAgent != "gust-loadtest" {
		t.Errorf("UserAgent = %q", cfg.Settings.UserAgent)
	}
	if cfg.Scenarios["browse"].GracefulStop != "30s" {
		t.Errorf("GracefulStop = %q, want default 30s", cfg.Scenarios["browse"].GracefulStop)
	}
	if cfg.Scenarios["checkout"].Session.ExpectStatus != 200 {
		t.Errorf("Session.ExpectStatus = %d, want default 200", cfg.Scenarios["checkout"].Session.ExpectStatus)
	}
	// Unnamed requests get a generated name
	if got := cfg.Scenarios["checkout"].Requests[0].Name; got != "checkout_request_1" {
		t.Errorf("generated request name = %q", got)
	}
	if cfg.Report == nil || cfg.Report.Title != "Storefront Load Test" {
		t.Errorf("Report = %+v, want title defaulted to test name", cfg.Report)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid YAML",
			yaml:    "name: [unclosed",
			wantErr: "invalid YAML",
		},
		{
			name: "missing name",
			yaml: `
scenarios:
  s:
    executor: constant-vus
    vus: 1
    duration: 10s
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "name",
		},
		{
			name: "no scenarios",
			yaml: `
name: test
scenarios: {}
`,
			wantErr: "scenario",
		},
		{
			name: "unknown executor",
			yaml: `
name: test
scenarios:
  s:
    executor: warp-speed
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "executor",
		},
		{
			name: "constant-vus without vus",
			yaml: `
name: test
scenarios:
  s:
    executor: constant-vus
    duration: 10s
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "vus",
		},
		{
			name: "arrival rate without rate",
			yaml: `
name: test
scenarios:
  s:
    executor: constant-arrival-rate
    duration: 10s
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "rate",
		},
		{
			name: "ramping without stages",
			yaml: `
name: test
scenarios:
  s:
    executor: ramping-vus
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "stage",
		},
		{
			name: "iterations executor without iterations",
			yaml: `
name: test
scenarios:
  s:
    executor: per-vu-iterations
    vus: 2
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "iterations",
		},
		{
			name: "bad duration",
			yaml: `
name: test
scenarios:
  s:
    executor: constant-vus
    vus: 1
    duration: "ten seconds"
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "duration",
		},
		{
			name: "sleep min without max",
			yaml: `
name: test
scenarios:
  s:
    executor: constant-vus
    vus: 1
    duration: 10s
    sleep:
      min: 1s
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "min and max",
		},
		{
			name: "sleep max below min",
			yaml: `
name: test
scenarios:
  s:
    executor: constant-vus
    vus: 1
    duration: 10s
    sleep:
      min: 5s
      max: 1s
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "max must be >= min",
		},
		{
			name: "session without cookie",
			yaml: `
name: test
scenarios:
  s:
    executor: constant-vus
    vus: 1
    duration: 10s
    session:
      login:
        method: POST
        url: "http://x/login"
    requests:
      - method: GET
        url: "http://x"
`,
			wantErr: "cookie",
		},
		{
			name: "request without url",
			yaml: `
name: test
scenarios:
  s:
    executor: constant-vus
    vus: 1
    duration: 10s
    requests:
      - method: GET
`,
			wantErr: "url",
		},
		{
			name: "status check without equals",
			yaml: `
name: test
scenarios:
  s:
    executor: constant-vus
    vus: 1
    duration: 10s
    requests:
      - method: GET
        url: "http://x"
        checks:
          - name: ok
            type: status
`,
			wantErr: "equals",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatal("ParseConfig() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseConfig_ArrivalRateDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
name: test
scenarios:
  open:
    executor: constant-arrival-rate
    rate: 50
    duration: 10s
    preAllocatedVUs: 20
    requests:
      - method: GET
        url: "http://x"
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	sc := cfg.Scenarios["open"]
	if sc.MaxVUs != 20 {
		t.Errorf("MaxVUs = %d, want raised to preAllocatedVUs", sc.MaxVUs)
	}
}

func TestParseConfig_IterationExecutorDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
name: test
scenarios:
  fixed:
    executor: shared-iterations
    vus: 4
    iterations: 100
    requests:
      - method: GET
        url: "http://x"
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if got := cfg.Scenarios["fixed"].MaxDuration; got != "10m" {
		t.Errorf("MaxDuration = %q, want default 10m", got)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Name != "Storefront Load Test" {
		t.Errorf("Name = %q", cfg.Name)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() succeeded for a missing file")
	}
}
