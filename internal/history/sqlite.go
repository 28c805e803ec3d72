// Package history archives job execution records in SQLite. The daemon
// keeps only a small in-memory window; this store retains the full
// record for inspection after restarts.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/tokenkeeper/tokenkeeper/internal/errors"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed job execution archive with WAL mode.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrHistoryOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrHistoryOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrHistoryQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrHistoryQuery{Operation: "get migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS job_executions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					job_id TEXT NOT NULL,
					scheduled_time DATETIME NOT NULL,
					execution_time DATETIME NOT NULL,
					status TEXT NOT NULL,
					error TEXT,
					duration REAL NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_job_executions_job_id
					ON job_executions(job_id, execution_time DESC);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return &errors.ErrHistoryQuery{Operation: "begin migration", Err: err}
		}
		if _, err := tx.Exec(m.up); err != nil {
			tx.Rollback()
			return &errors.ErrHistoryQuery{Operation: "apply migration", Err: err}
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return &errors.ErrHistoryQuery{Operation: "record migration", Err: err}
		}
		if err := tx.Commit(); err != nil {
			return &errors.ErrHistoryQuery{Operation: "commit migration", Err: err}
		}
	}

	return nil
}

// Append stores one execution record.
func (s *Store) Append(rec models.JobExecutionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO job_executions (job_id, scheduled_time, execution_time, status, error, duration)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.ScheduledTime.UTC().Format(time.RFC3339Nano),
		rec.ExecutionTime.UTC().Format(time.RFC3339Nano),
		string(rec.Status),
		rec.Error,
		rec.Duration,
	)
	if err != nil {
		return &errors.ErrHistoryQuery{Operation: "append execution", Err: err}
	}
	return nil
}

// Recent returns the latest records, newest first. jobID filters when
// non-empty.
func (s *Store) Recent(jobID string, limit int) ([]models.JobExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT job_id, scheduled_time, execution_time, status, error, duration
		FROM job_executions`
	args := []any{}
	if jobID != "" {
		query += " WHERE job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &errors.ErrHistoryQuery{Operation: "query executions", Err: err}
	}
	defer rows.Close()

	var out []models.JobExecutionRecord
	for rows.Next() {
		var rec models.JobExecutionRecord
		var scheduled, executed string
		var status string
		if err := rows.Scan(&rec.JobID, &scheduled, &executed, &status, &rec.Error, &rec.Duration); err != nil {
			return nil, &errors.ErrHistoryQuery{Operation: "scan execution", Err: err}
		}
		rec.Status = models.JobStatus(status)
		if ts, err := time.Parse(time.RFC3339Nano, scheduled); err == nil {
			rec.ScheduledTime = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, executed); err == nil {
			rec.ExecutionTime = ts
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrHistoryQuery{Operation: "iterate executions", Err: err}
	}

	return out, nil
}

// Prune deletes records older than the retention window.
func (s *Store) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec("DELETE FROM job_executions WHERE execution_time < ?", cutoff)
	if err != nil {
		return 0, &errors.ErrHistoryQuery{Operation: "prune executions", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
