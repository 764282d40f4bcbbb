// Package history provides the SQLite archive of finished pipeline
// runs, so metrics can cover periods longer than one process lifetime.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
	_ "modernc.org/sqlite"
)

// Archive records terminal pipelines in a local SQLite database.
type Archive struct {
	db *sql.DB
}

// Open creates the archive database and runs migrations.
func Open(dbPath string) (*Archive, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// migrate runs idempotent schema migrations.
func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pipelines (
		id TEXT PRIMARY KEY,
		app_name TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		duration_secs REAL,
		failure_reason TEXT,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pipelines_app_name ON pipelines(app_name);
	CREATE INDEX IF NOT EXISTS idx_pipelines_start_time ON pipelines(start_time);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Record archives one pipeline. Non-terminal pipelines are ignored, and
// re-recording a pipeline replaces its row, so replays across restarts
// are harmless.
func (a *Archive) Record(p models.Pipeline) error {
	if !p.Status.IsTerminal() {
		return nil
	}

	var endTime interface{}
	if p.EndTime != nil {
		endTime = p.EndTime.UTC()
	}
	var durationSecs interface{}
	if p.Duration != nil {
		durationSecs = p.Duration.Seconds()
	}
	var reason interface{}
	if r := p.FailureReason(); r != "" {
		reason = r
	}

	_, err := a.db.Exec(
		`INSERT OR REPLACE INTO pipelines (id, app_name, status, start_time, end_time, duration_secs, failure_reason, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AppName, p.Status, p.StartTime.UTC(), endTime, durationSecs, reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

// Run is one archived pipeline row.
type Run struct {
	ID            string
	AppName       string
	Status        models.PipelineStatus
	StartTime     time.Time
	EndTime       *time.Time
	Duration      *time.Duration
	FailureReason string
}

// RecentForApp returns archived runs for an app that started at or
// after since, newest first. An empty app matches every app.
func (a *Archive) RecentForApp(app string, since time.Time) ([]Run, error) {
	query := `SELECT id, app_name, status, start_time, end_time, duration_secs, failure_reason FROM pipelines WHERE start_time >= ?`
	args := []interface{}{since.UTC()}

	if app != "" {
		query += ` AND app_name = ?`
		args = append(args, app)
	}
	query += ` ORDER BY start_time DESC, id DESC`

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var endTime sql.NullTime
		var durationSecs sql.NullFloat64
		var reason sql.NullString
		if err := rows.Scan(&run.ID, &run.AppName, &run.Status, &run.StartTime, &endTime, &durationSecs, &reason); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		if endTime.Valid {
			t := endTime.Time
			run.EndTime = &t
		}
		if durationSecs.Valid {
			d := time.Duration(durationSecs.Float64 * float64(time.Second))
			run.Duration = &d
		}
		if reason.Valid {
			run.FailureReason = reason.String
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes archived runs older than the cutoff and reports how
// many rows went away.
func (a *Archive) Prune(olderThan time.Time) (int64, error) {
	res, err := a.db.Exec(`DELETE FROM pipelines WHERE start_time < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune pipelines: %w", err)
	}
	return res.RowsAffected()
}

// Metrics aggregates archived runs for an app since the given time,
// using the same scoring as the live reconciler.
func (a *Archive) Metrics(app string, since time.Time) (models.Metrics, error) {
	runs, err := a.RecentForApp(app, since)
	if err != nil {
		return models.Metrics{}, err
	}

	m := models.Metrics{AppName: app}
	var total time.Duration
	var timed int
	for _, run := range runs {
		m.TotalRuns++
		switch run.Status {
		case models.PipelineStatusSucceeded:
			m.SucceededRuns++
		case models.PipelineStatusFailed:
			m.FailedRuns++
			if run.FailureReason != "" {
				if m.FailureReasons == nil {
					m.FailureReasons = make(map[string]int)
				}
				m.FailureReasons[run.FailureReason]++
			}
		}
		if run.Duration != nil {
			total += *run.Duration
			timed++
		}
	}
	if m.TotalRuns > 0 {
		m.SuccessRate = float64(m.SucceededRuns) / float64(m.TotalRuns) * 100
	}
	if timed > 0 {
		m.AvgDuration = total / time.Duration(timed)
	}
	return m, nil
}
