// Package output implements run result sinks: NDJSON files, a SQLite
// results store and the live web dashboard.
package output

import (
	"fmt"
	"strings"

	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/runner"
)

// Output receives metric buckets while a test runs and the assembled
// result when it ends.
type Output interface {
	// Description identifies the output in logs and the console banner.
	Description() string

	// Start prepares the output before the run begins.
	Start() error

	// AddBucket consumes one emitted metrics bucket. Called from the
	// collector's emitter goroutine; implementations must not block.
	AddBucket(bucket *metrics.Bucket)

	// Finish writes the final result and releases resources.
	Finish(result *runner.Result) error
}

// Spec is a parsed --out argument, e.g. "dashboard", "json=out.ndjson"
// or "sqlite=results.db".
type Spec struct {
	Kind string
	Arg  string
}

// ParseSpec splits an --out argument into kind and argument.
func ParseSpec(raw string) (Spec, error) {
	kind, arg, _ := strings.Cut(raw, "=")
	kind = strings.TrimSpace(kind)

	switch kind {
	case "dashboard", "json", "sqlite":
	case "":
		return Spec{}, fmt.Errorf("empty output spec")
	default:
		return Spec{}, fmt.Errorf("unknown output %q (supported: dashboard, json, sqlite)", kind)
	}

	if (kind == "json" || kind == "sqlite") && arg == "" {
		return Spec{}, fmt.Errorf("output %q requires a file path, e.g. %s=results.%s", kind, kind, fileExt(kind))
	}

	return Spec{Kind: kind, Arg: arg}, nil
}

func fileExt(kind string) string {
	if kind == "sqlite" {
		return "db"
	}
	return "ndjson"
}

// Manager fans collector buckets out to a set of outputs.
type Manager struct {
	outputs []Output
}

// NewManager creates a manager over the given outputs.
func NewManager(outputs ...Output) *Manager {
	return &Manager{outputs: outputs}
}

// Add appends an output.
func (m *Manager) Add(o Output) {
	m.outputs = append(m.outputs, o)
}

// Outputs returns the managed outputs.
func (m *Manager) Outputs() []Output {
	return m.outputs
}

// Start starts every output; the first error aborts.
func (m *Manager) Start() error {
	for _, o := range m.outputs {
		if err := o.Start(); err != nil {
			return fmt.Errorf("starting output %s: %w", o.Description(), err)
		}
	}
	return nil
}

// AddBucket forwards a bucket to every output.
func (m *Manager) AddBucket(bucket *metrics.Bucket) {
	for _, o := range m.outputs {
		o.AddBucket(bucket)
	}
}

// Finish finishes every output, returning the first error but always
// attempting all of them.
func (m *Manager) Finish(result *runner.Result) error {
	var firstErr error
	for _, o := range m.outputs {
		if err := o.Finish(result); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("finishing output %s: %w", o.Description(), err)
		}
	}
	return firstErr
}
