// Package loadtest provides the virtual-user execution core: scenarios,
// VU lifecycle and scheduling, session handling and response checks.
package loadtest

import (
	"math/rand"
	"time"
)

// Scenario defines what a VU executes during each iteration.
type Scenario struct {
	// Name of the scenario
	Name string

	// Variables available to all requests via {{name}} placeholders
	Variables map[string]string

	// Session, when set, is established once per VU before its first
	// iteration
	Session *SessionSpec

	// Sleep is applied between iterations
	Sleep *SleepSpec

	// Requests are executed in order within each iteration
	Requests []*RequestSpec
}

// RequestSpec defines a single HTTP request of a scenario.
type RequestSpec struct {
	// Name is used in metrics and per-request breakdowns
	Name string

	// Method is the HTTP method
	Method string

	// URL supports {{var}} substitution
	URL string

	// Headers support {{var}} substitution in values
	Headers map[string]string

	// Body supports {{var}} substitution
	Body string

	// Timeout overrides the client timeout for this request
	Timeout time.Duration

	// ThinkTime is waited after this request, within the iteration
	ThinkTime time.Duration

	// Extract defines variable extraction from the response
	Extract []ExtractSpec

	// Checks validate the response; outcomes are counted, never fatal
	Checks []CheckSpec
}

// ExtractSpec defines how to pull a variable out of a response.
type ExtractSpec struct {
	// Name of the VU variable to store
	Name string

	// Source is "body", "header" or "status"
	Source string

	// Path is a gjson path (body) or header name (header)
	Path string

	// Regex is applied to the extracted string; the first capture group
	// (or the whole match) wins
	Regex string
}

// CheckSpec defines a response validation.
type CheckSpec struct {
	// Name identifies the check in metrics and the summary
	Name string

	// Type is "status", "body-contains" or "json"
	Type string

	// Equals is the expected status code or gjson value
	Equals string

	// Contains is the expected body substring
	Contains string

	// Path is the gjson path for json checks
	Path string
}

// SessionSpec describes the per-VU login flow.
type SessionSpec struct {
	// Login is executed once before the VU's first iteration
	Login *RequestSpec

	// Cookie is the session cookie name expected from the login response
	Cookie string

	// FallbackValue is installed as the session cookie when login fails
	FallbackValue string

	// ExpectStatus marks login success
	ExpectStatus int
}

// SleepSpec is the pause between iterations: either constant, or uniform
// random in [Min, Max].
type SleepSpec struct {
	Constant time.Duration
	Min      time.Duration
	Max      time.Duration
}

// Duration returns the sleep to apply for one iteration.
func (s *SleepSpec) Duration() time.Duration {
	if s == nil {
		return 0
	}
	if s.Constant > 0 {
		return s.Constant
	}
	if s.Max > s.Min {
		return s.Min + time.Duration(rand.Int63n(int64(s.Max-s.Min)))
	}
	return s.Min
}
