package usecase

import "github.com/semmidev/arkiva/internal/domain"

// Logger is the minimal logging surface the use cases need.
type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Catalog is the durable index of sets, manifests, markers and events.
type Catalog interface {
	BeginSet(set domain.BackupSet) error
	FinalizeSet(jobName, setID string, status domain.SetStatus, archives int, bytes int64, files int) error
	AddFiles(jobName, setID string, archives []domain.ArchiveInfo) error
	ListSets(jobName string) ([]domain.BackupSet, error)
	ListRunning(jobName string) ([]string, error)
	MarkAbandoned(jobName, setID string) error
	DeleteSet(jobName, setID string) error
	SetLastFull(jobName, setID string) error
	LastFull(jobName string) (string, error)
	LogEvent(jobName, eventType, message string) (string, error)
	FinalizeEvent(id string, status domain.SetStatus, message string) error
}

// RunLock is a held job lock.
type RunLock interface {
	Release() error
	WasReclaimed() bool
}

// LockManager hands out per-job locks. Acquire is non-blocking: when the
// job is already locked it fails with domain.ErrLockBusy immediately.
type LockManager interface {
	Acquire(jobName string) (RunLock, error)
}
