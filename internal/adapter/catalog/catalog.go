package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/semmidev/arkiva/internal/domain"
)

// Catalog is the durable relational index over backup sets, their file
// manifests, the per-job last-full marker, and run events. One owning
// archive per (set, path, archive) version is enforced by the schema.
type Catalog struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS backup_sets (
	job_name      TEXT NOT NULL,
	set_id        TEXT NOT NULL,
	run_type      TEXT NOT NULL,
	status        TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER,
	archive_count INTEGER NOT NULL DEFAULT 0,
	byte_count    INTEGER NOT NULL DEFAULT 0,
	file_count    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (job_name, set_id)
);
CREATE TABLE IF NOT EXISTS backup_files (
	job_name TEXT NOT NULL,
	set_id   TEXT NOT NULL,
	path     TEXT NOT NULL,
	archive  TEXT NOT NULL,
	size     INTEGER NOT NULL,
	mtime    INTEGER NOT NULL,
	PRIMARY KEY (job_name, set_id, path, archive)
);
CREATE TABLE IF NOT EXISTS last_full (
	job_name TEXT PRIMARY KEY,
	set_id   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	job_name   TEXT NOT NULL,
	event_type TEXT NOT NULL,
	status     TEXT NOT NULL,
	message    TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// Single-process writers; the serialized connection avoids SQLITE_BUSY
	// between the runner and the scheduler goroutines.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// BeginSet records a set as running. A differential run re-enters its owning
// full set's row, flipping it back to running for the duration; the row keeps
// the run_type it was created with.
func (c *Catalog) BeginSet(set domain.BackupSet) error {
	_, err := c.db.Exec(`
		INSERT INTO backup_sets (job_name, set_id, run_type, status, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_name, set_id) DO UPDATE SET status = excluded.status`,
		set.JobName, set.SetID, string(set.RunType), string(domain.StatusRunning), set.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record running set: %w", err)
	}
	return nil
}

// FinalizeSet moves a set to its terminal status and accumulates the run's
// archive, byte and file totals onto the set.
func (c *Catalog) FinalizeSet(jobName, setID string, status domain.SetStatus, archives int, bytes int64, files int) error {
	_, err := c.db.Exec(`
		UPDATE backup_sets
		SET status = ?, finished_at = ?,
		    archive_count = archive_count + ?,
		    byte_count = byte_count + ?,
		    file_count = file_count + ?
		WHERE job_name = ? AND set_id = ?`,
		string(status), time.Now().Unix(), archives, bytes, files, jobName, setID)
	if err != nil {
		return fmt.Errorf("failed to finalize set: %w", err)
	}
	return nil
}

// AddFiles records the manifest rows for the archives of one run.
func (c *Catalog) AddFiles(jobName, setID string, archives []domain.ArchiveInfo) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO backup_files (job_name, set_id, path, archive, size, mtime)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range archives {
		for _, e := range a.Entries {
			if _, err := stmt.Exec(jobName, setID, e.RelPath, a.Name, e.Size, e.ModTime.Unix()); err != nil {
				return fmt.Errorf("failed to insert manifest row for %s: %w", e.RelPath, err)
			}
		}
	}
	return tx.Commit()
}

// ListSets returns every set of a job, newest first.
func (c *Catalog) ListSets(jobName string) ([]domain.BackupSet, error) {
	rows, err := c.db.Query(`
		SELECT set_id, run_type, status, started_at, COALESCE(finished_at, 0),
		       archive_count, byte_count, file_count
		FROM backup_sets WHERE job_name = ? ORDER BY set_id DESC`, jobName)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets: %w", err)
	}
	defer rows.Close()

	var sets []domain.BackupSet
	for rows.Next() {
		var (
			set                  domain.BackupSet
			runType, status      string
			startedAt, finishedAt int64
		)
		if err := rows.Scan(&set.SetID, &runType, &status, &startedAt, &finishedAt,
			&set.ArchiveCount, &set.ByteCount, &set.FileCount); err != nil {
			return nil, fmt.Errorf("failed to scan set row: %w", err)
		}
		set.JobName = jobName
		set.RunType = domain.RunType(runType)
		set.Status = domain.SetStatus(status)
		set.StartedAt = time.Unix(startedAt, 0)
		if finishedAt > 0 {
			set.FinishedAt = time.Unix(finishedAt, 0)
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// ListRunning returns sets of a job still marked running. After a crash
// these are the abandoned runs the next invocation must recognize.
func (c *Catalog) ListRunning(jobName string) ([]string, error) {
	rows, err := c.db.Query(`
		SELECT set_id FROM backup_sets WHERE job_name = ? AND status = ?`,
		jobName, string(domain.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to list running sets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkAbandoned flips an orphaned running set to error.
func (c *Catalog) MarkAbandoned(jobName, setID string) error {
	_, err := c.db.Exec(`
		UPDATE backup_sets SET status = ?, finished_at = ?
		WHERE job_name = ? AND set_id = ? AND status = ?`,
		string(domain.StatusError), time.Now().Unix(), jobName, setID, string(domain.StatusRunning))
	if err != nil {
		return fmt.Errorf("failed to mark set abandoned: %w", err)
	}
	return nil
}

// DeleteSet removes a set's manifest rows before its index row, so an
// interrupted deletion is detectable and resumable by re-running rotation.
func (c *Catalog) DeleteSet(jobName, setID string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM backup_files WHERE job_name = ? AND set_id = ?`, jobName, setID); err != nil {
		return fmt.Errorf("failed to delete manifest rows: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM backup_sets WHERE job_name = ? AND set_id = ?`, jobName, setID); err != nil {
		return fmt.Errorf("failed to delete set row: %w", err)
	}
	return tx.Commit()
}

// SetLastFull records the reference marker differential runs read. Written
// only by the job's own successful full run, under the job lock.
func (c *Catalog) SetLastFull(jobName, setID string) error {
	_, err := c.db.Exec(`
		INSERT INTO last_full (job_name, set_id) VALUES (?, ?)
		ON CONFLICT(job_name) DO UPDATE SET set_id = excluded.set_id`,
		jobName, setID)
	if err != nil {
		return fmt.Errorf("failed to record last full marker: %w", err)
	}
	return nil
}

// LastFull returns the marker, or "" when the job has no successful full yet.
func (c *Catalog) LastFull(jobName string) (string, error) {
	var setID string
	err := c.db.QueryRow(`SELECT set_id FROM last_full WHERE job_name = ?`, jobName).Scan(&setID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last full marker: %w", err)
	}
	return setID, nil
}

// LogEvent opens an audit record for a run or restore and returns its id.
func (c *Catalog) LogEvent(jobName, eventType, message string) (string, error) {
	id := uuid.NewString()
	now := time.Now().Unix()
	_, err := c.db.Exec(`
		INSERT INTO events (id, job_name, event_type, status, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, jobName, eventType, string(domain.StatusRunning), message, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to log event: %w", err)
	}
	return id, nil
}

// FinalizeEvent closes an audit record with its terminal status.
func (c *Catalog) FinalizeEvent(id string, status domain.SetStatus, message string) error {
	_, err := c.db.Exec(`
		UPDATE events SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		string(status), message, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to finalize event: %w", err)
	}
	return nil
}
