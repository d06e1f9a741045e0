package output

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gustload/gust/internal/loadtest/metrics"
)

func TestSQLite_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	out := NewSQLite(path)
	if err := out.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		out.AddBucket(&metrics.Bucket{
			Timestamp:        time.Now(),
			Phase:            metrics.PhaseSteady,
			ActiveVUs:        5,
			IntervalRequests: 10,
			IntervalRPS:      10.0,
			TotalRequests:    int64((i + 1) * 10),
			LatencyP50:       20 * time.Millisecond,
			LatencyP95:       80 * time.Millisecond,
			LatencyP99:       150 * time.Millisecond,
		})
	}

	result := sampleResult()
	if err := out.Finish(result); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var testName string
	var passed int
	var summary sql.NullString
	err = db.QueryRow(
		`SELECT test_name, passed, summary_json FROM runs WHERE id = ?`, out.RunID(),
	).Scan(&testName, &passed, &summary)
	if err != nil {
		t.Fatalf("reading run row: %v", err)
	}
	if testName != result.TestName {
		t.Errorf("test_name = %q, want %q", testName, result.TestName)
	}
	if passed != 1 {
		t.Errorf("passed = %d, want 1", passed)
	}
	if !summary.Valid || summary.String == "" {
		t.Error("summary_json was not stored")
	}

	var samples int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM samples WHERE run_id = ?`, out.RunID(),
	).Scan(&samples); err != nil {
		t.Fatalf("counting samples: %v", err)
	}
	if samples != 3 {
		t.Errorf("samples = %d, want 3", samples)
	}

	var p95 int64
	if err := db.QueryRow(
		`SELECT p95_us FROM samples WHERE run_id = ? ORDER BY ts LIMIT 1`, out.RunID(),
	).Scan(&p95); err != nil {
		t.Fatalf("reading sample: %v", err)
	}
	if p95 != (80 * time.Millisecond).Microseconds() {
		t.Errorf("p95_us = %d, want %d", p95, (80 * time.Millisecond).Microseconds())
	}
}

func TestSQLite_DroppedSamplesReportedOnFinish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	out := NewSQLite(path)
	if err := out.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Break the samples table out from under the output so inserts fail
	// the way they would on a corrupted or concurrently-altered database.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`DROP TABLE samples`); err != nil {
		t.Fatalf("dropping samples table: %v", err)
	}
	db.Close()

	out.AddBucket(&metrics.Bucket{Timestamp: time.Now(), Phase: metrics.PhaseSteady})
	out.AddBucket(&metrics.Bucket{Timestamp: time.Now(), Phase: metrics.PhaseSteady})

	err = out.Finish(sampleResult())
	if err == nil {
		t.Fatal("Finish() did not report the dropped samples")
	}
	if !strings.Contains(err.Error(), "2 samples") {
		t.Errorf("Finish() error = %v, want mention of 2 dropped samples", err)
	}
}

func TestSQLite_AddBucketBeforeStart(t *testing.T) {
	out := NewSQLite(filepath.Join(t.TempDir(), "unused.db"))
	// Must not panic with no open database.
	out.AddBucket(&metrics.Bucket{Timestamp: time.Now()})
	if err := out.Finish(sampleResult()); err != nil {
		t.Errorf("Finish() before Start() error = %v", err)
	}
}
