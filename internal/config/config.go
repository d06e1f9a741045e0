// Package config defines and loads the YAML test configuration.
package config

import (
	"time"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "Checkout Load Test"
//	settings:
//	  baseUrl: "https://shop.example.com"
//	scenarios:
//	  browse:
//	    executor: constant-vus
//	    vus: 10
//	    duration: 30s
//	    requests:
//	      - name: "List Products"
//	        method: GET
//	        url: "{{baseUrl}}/api/products"
type TestConfig struct {
	// Name of the test (used in reports and the dashboard)
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains global HTTP settings for all scenarios
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are global variables available to all scenarios
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Scenarios defines the load profiles to run.
	// Each scenario runs independently with its own executor.
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`

	// Thresholds define pass/fail criteria for the run
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Report configures the HTML report artifact
	Report *ReportConfig `json:"report,omitempty" yaml:"report,omitempty"`

	// Options for test execution
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// GlobalSettings contains global HTTP and execution settings.
type GlobalSettings struct {
	// BaseURL is the default base URL, exposed as {{baseUrl}}
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the default HTTP request timeout (e.g. "30s")
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ScenarioConfig defines a single load-testing scenario.
type ScenarioConfig struct {
	// Executor specifies the load generation strategy. One of:
	// "constant-vus", "ramping-vus", "constant-arrival-rate",
	// "ramping-arrival-rate", "per-vu-iterations", "shared-iterations".
	Executor string `json:"executor" yaml:"executor"`

	// VUs is the number of virtual users (VU-based executors)
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to run (e.g. "30s", "2m")
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Iterations is the iteration budget for per-vu-iterations
	// (per VU) and shared-iterations (total across VUs)
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// MaxDuration caps iteration-based executors (default "10m")
	MaxDuration string `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`

	// Rate is iterations per second (arrival-rate executors)
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// PreAllocatedVUs is the starting VU pool size (arrival-rate executors)
	PreAllocatedVUs int `json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`

	// MaxVUs is the VU pool ceiling (arrival-rate executors)
	MaxVUs int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// Stages defines ramping stages (ramping executors)
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// StartTime delays this scenario relative to test start (e.g. "10s")
	StartTime string `json:"startTime,omitempty" yaml:"startTime,omitempty"`

	// Sleep is applied between iterations
	Sleep *SleepConfig `json:"sleep,omitempty" yaml:"sleep,omitempty"`

	// Session configures the per-VU login flow and session cookie
	Session *SessionConfig `json:"session,omitempty" yaml:"session,omitempty"`

	// Requests defines the HTTP requests executed each iteration
	Requests []RequestConfig `json:"requests" yaml:"requests"`

	// GracefulStop is how long to wait for in-flight iterations
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Tags are exposed to requests as extra variables
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// StageConfig defines a single stage in a ramping executor.
type StageConfig struct {
	// Duration of this stage (e.g. "30s")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count (ramping-vus) or rate (ramping-arrival-rate)
	Target int `json:"target" yaml:"target"`

	// Name is optional, for reporting
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// SleepConfig controls the pause between iterations.
//
// Either Duration (constant) or Min/Max (uniform random) is set.
type SleepConfig struct {
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Min      string `json:"min,omitempty" yaml:"min,omitempty"`
	Max      string `json:"max,omitempty" yaml:"max,omitempty"`
}

// SessionConfig describes the login flow a VU performs before its first
// iteration. The login response is expected to set the session cookie;
// when the login check fails, FallbackValue is installed instead and the
// VU keeps going.
type SessionConfig struct {
	// Login is the request that establishes the session
	Login RequestConfig `json:"login" yaml:"login"`

	// Cookie is the session cookie name (e.g. "sessionid")
	Cookie string `json:"cookie" yaml:"cookie"`

	// FallbackValue is used when login fails
	FallbackValue string `json:"fallbackValue,omitempty" yaml:"fallbackValue,omitempty"`

	// ExpectStatus is the status code that marks login success (default 200)
	ExpectStatus int `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	// Name for this request (used in metrics)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, ...)
	Method string `json:"method" yaml:"method"`

	// URL is the request URL (supports {{var}} substitution)
	URL string `json:"url" yaml:"url"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is the request body (supports {{var}} substitution)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Timeout is a request-specific timeout (overrides global)
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ThinkTime is wait time after this request
	ThinkTime string `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Extract defines variable extraction from the response
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Checks validate the response
	Checks []CheckConfig `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// ExtractConfig defines how to extract a variable from a response.
type ExtractConfig struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name"`

	// Source is where to extract from: "body", "header", "status"
	Source string `json:"source" yaml:"source"`

	// Path is the header name, or a gjson path for body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Regex is an optional pattern applied after Path
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty"`
}

// CheckConfig defines a response validation.
//
// Check outcomes are counted per name and reported in the summary; they
// never abort the iteration.
type CheckConfig struct {
	// Name of the check (e.g. "status is 200")
	Name string `json:"name" yaml:"name"`

	// Type is the check type: "status", "body-contains", "json"
	Type string `json:"type" yaml:"type"`

	// Equals is the expected value (status code or json value)
	Equals string `json:"equals,omitempty" yaml:"equals,omitempty"`

	// Contains is the substring expected in the body
	Contains string `json:"contains,omitempty" yaml:"contains,omitempty"`

	// Path is the gjson path for json checks
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the run.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds, e.g. ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds, e.g. ["rate < 0.01"]
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds, e.g. ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`

	// Checks thresholds on the overall check pass rate, e.g. ["rate > 0.99"]
	Checks []string `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// ReportConfig customizes the HTML report.
type ReportConfig struct {
	// Title is injected into the report header (defaults to the test name)
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Logo is an image URL injected into the report header
	Logo string `json:"logo,omitempty" yaml:"logo,omitempty"`
}

// ExecutionOptions controls test execution behavior.
type ExecutionOptions struct {
	// Sequential runs scenarios one-by-one instead of in parallel
	Sequential bool `json:"sequential,omitempty" yaml:"sequential,omitempty"`

	// GracefulStop is the default graceful-stop timeout for all scenarios
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// ParseDurationString parses a duration string such as "30s" or "1h30m".
func ParseDurationString(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
