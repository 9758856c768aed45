package domain

import "time"

// RunType selects how the change set for a run is computed.
type RunType string

const (
	RunFull         RunType = "full"
	RunDifferential RunType = "diff"
	RunIncremental  RunType = "incr"
	RunDryRun       RunType = "dryrun"
)

// IsDifferential reports whether the run type uses the last-full marker as
// its modification-time baseline.
func (t RunType) IsDifferential() bool {
	return t == RunDifferential || t == RunIncremental
}

// SetStatus is the lifecycle status of a backup set. A set is mutated only by
// the run that owns it and becomes immutable once the status leaves
// StatusRunning.
type SetStatus string

const (
	StatusRunning SetStatus = "running"
	StatusSuccess SetStatus = "success"
	StatusError   SetStatus = "error"
	StatusPartial SetStatus = "partial"
	StatusSkipped SetStatus = "skipped"
)

// Entry is one file selected for archiving.
type Entry struct {
	AbsPath string
	RelPath string
	Size    int64
	ModTime time.Time
}

// ArchiveInfo describes one size-bounded tarball within a backup set. Name is
// always the plain tarball name; the on-disk file may additionally carry the
// encryption suffix.
type ArchiveInfo struct {
	Name    string
	Path    string
	Ordinal int
	Bytes   int64
	Entries []Entry
}

// BackupSet is one invocation of a job, identified by (JobName, SetID) where
// SetID is a sortable "20060102_150405" timestamp.
type BackupSet struct {
	JobName      string
	SetID        string
	RunType      RunType
	Status       SetStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	ArchiveCount int
	ByteCount    int64
	FileCount    int
}

// BackupResult is what a run reports back to its caller.
type BackupResult struct {
	JobName      string
	SetID        string
	RunType      RunType
	Status       SetStatus
	ArchiveCount int
	ByteCount    int64
	FileCount    int
	Skipped      []string
	Duration     time.Duration
	Err          error
}

// Summary renders the one-line human-readable outcome of a run.
func (r *BackupResult) Summary() string {
	if r.Err != nil {
		return string(r.Status) + ": " + r.Err.Error()
	}
	return string(r.Status)
}

// PathStatus is the per-path outcome of a partial restore.
type PathStatus struct {
	Path     string
	Restored bool
	Err      error
}

// RestoreResult reports a full or partial restore.
type RestoreResult struct {
	JobName  string
	SetID    string
	Restored int
	Paths    []PathStatus
	Duration time.Duration
}
