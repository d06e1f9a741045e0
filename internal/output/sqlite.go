package output

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/runner"
	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	test_name TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	passed INTEGER,
	summary_json TEXT
);

CREATE TABLE IF NOT EXISTS samples (
	run_id TEXT NOT NULL REFERENCES runs(id),
	ts INTEGER NOT NULL,
	phase TEXT NOT NULL,
	active_vus INTEGER NOT NULL,
	interval_requests INTEGER NOT NULL,
	interval_rps REAL NOT NULL,
	total_requests INTEGER NOT NULL,
	total_failures INTEGER NOT NULL,
	total_bytes INTEGER NOT NULL,
	p50_us INTEGER NOT NULL,
	p95_us INTEGER NOT NULL,
	p99_us INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_run ON samples(run_id, ts);
`

// SQLite persists run samples and summaries into a SQLite database so
// runs can be compared across invocations.
type SQLite struct {
	path  string
	runID string

	db *sql.DB
	mu sync.Mutex

	// samples that failed to insert; reported from Finish
	dropped    int64
	droppedErr error
}

// NewSQLite creates a SQLite output writing to the database at path.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path, runID: uuid.NewString()}
}

// Description identifies this output.
func (s *SQLite) Description() string {
	return "sqlite (" + s.path + ")"
}

// RunID returns the identifier assigned to this run.
func (s *SQLite) RunID() string {
	return s.runID
}

// Start opens the database, applies the schema and registers the run.
func (s *SQLite) Start() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	if _, err := db.Exec(
		`INSERT INTO runs (id, test_name, started_at) VALUES (?, ?, ?)`,
		s.runID, "", time.Now().UnixMilli(),
	); err != nil {
		db.Close()
		return fmt.Errorf("failed to register run: %w", err)
	}

	s.db = db
	return nil
}

// AddBucket inserts one sample row.
func (s *SQLite) AddBucket(bucket *metrics.Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}

	_, err := s.db.Exec(
		`INSERT INTO samples (
			run_id, ts, phase, active_vus,
			interval_requests, interval_rps,
			total_requests, total_failures, total_bytes,
			p50_us, p95_us, p99_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID,
		bucket.Timestamp.UnixMilli(),
		string(bucket.Phase),
		bucket.ActiveVUs,
		bucket.IntervalRequests,
		bucket.IntervalRPS,
		bucket.TotalRequests,
		bucket.TotalFailures,
		bucket.TotalBytes,
		bucket.LatencyP50.Microseconds(),
		bucket.LatencyP95.Microseconds(),
		bucket.LatencyP99.Microseconds(),
	)
	if err != nil {
		// Keep the run going on a locked or full database, but don't
		// lose the failure: Finish reports how many samples are missing.
		s.dropped++
		s.droppedErr = err
	}
}

// Finish stores the summary and closes the database.
func (s *SQLite) Finish(result *runner.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	defer func() {
		s.db.Close()
		s.db = nil
	}()

	summary, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	passed := 0
	if result.Passed {
		passed = 1
	}

	if _, err := s.db.Exec(
		`UPDATE runs SET test_name = ?, finished_at = ?, passed = ?, summary_json = ? WHERE id = ?`,
		result.TestName, result.EndTime.UnixMilli(), passed, string(summary), s.runID,
	); err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}

	if s.dropped > 0 {
		return fmt.Errorf("%d samples were not written: %w", s.dropped, s.droppedErr)
	}
	return nil
}
