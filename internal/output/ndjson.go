package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/runner"
)

// envelope is one NDJSON line: a streamed bucket or the final summary.
type envelope struct {
	Type    string          `json:"type"`
	Bucket  *metrics.Bucket `json:"bucket,omitempty"`
	Summary *runner.Result  `json:"summary,omitempty"`
}

// NDJSON streams buckets to a newline-delimited JSON file and appends
// the full result as the last line. The file can be replayed later with
// the report command.
type NDJSON struct {
	path string

	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewNDJSON creates an NDJSON output writing to path.
func NewNDJSON(path string) *NDJSON {
	return &NDJSON{path: path}
}

// Description identifies this output.
func (n *NDJSON) Description() string {
	return "json (" + n.path + ")"
}

// Start opens the target file, truncating any previous content.
func (n *NDJSON) Start() error {
	file, err := os.Create(n.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", n.path, err)
	}
	n.file = file
	n.w = bufio.NewWriter(file)
	n.enc = json.NewEncoder(n.w)
	return nil
}

// AddBucket writes one bucket line.
func (n *NDJSON) AddBucket(bucket *metrics.Bucket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.enc == nil {
		return
	}
	_ = n.enc.Encode(envelope{Type: "bucket", Bucket: bucket})
}

// Finish writes the summary line and closes the file.
func (n *NDJSON) Finish(result *runner.Result) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.file == nil {
		return nil
	}

	if err := n.enc.Encode(envelope{Type: "summary", Summary: result}); err != nil {
		n.file.Close()
		return err
	}
	if err := n.w.Flush(); err != nil {
		n.file.Close()
		return err
	}
	return n.file.Close()
}

// ReadResult loads a run result from a file written by this output or
// by --summary-export: either a plain result JSON document, or an
// NDJSON stream whose last summary line wins.
func ReadResult(path string) (*runner.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var result runner.Result
	if err := json.Unmarshal(data, &result); err == nil && result.Snapshot != nil {
		return &result, nil
	}

	var found *runner.Result
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		if env.Type == "summary" && env.Summary != nil {
			found = env.Summary
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%s contains no run summary", path)
	}
	return found, nil
}
