package usecase

import (
	"fmt"
	"sync"

	"github.com/semmidev/arkiva/internal/domain"
)

// nopLogger satisfies Logger for tests that do not assert on log output.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

type fakeLock struct {
	released  bool
	reclaimed bool
}

func (l *fakeLock) Release() error     { l.released = true; return nil }
func (l *fakeLock) WasReclaimed() bool { return l.reclaimed }

type fakeLocks struct {
	busy      bool
	reclaimed bool
	acquired  int
}

func (f *fakeLocks) Acquire(jobName string) (RunLock, error) {
	if f.busy {
		return nil, fmt.Errorf("job %q locked: %w", jobName, domain.ErrLockBusy)
	}
	f.acquired++
	return &fakeLock{reclaimed: f.reclaimed}, nil
}

// memCatalog is an in-memory Catalog double.
type memCatalog struct {
	mu       sync.Mutex
	sets     map[string]*domain.BackupSet
	files    map[string]int
	lastFull map[string]string
	events   map[string]domain.SetStatus
	deleted  []string
	eventSeq int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		sets:     make(map[string]*domain.BackupSet),
		files:    make(map[string]int),
		lastFull: make(map[string]string),
		events:   make(map[string]domain.SetStatus),
	}
}

func key(jobName, setID string) string { return jobName + "|" + setID }

func (c *memCatalog) BeginSet(set domain.BackupSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(set.JobName, set.SetID)
	if existing, ok := c.sets[k]; ok {
		existing.Status = domain.StatusRunning
		return nil
	}
	set.Status = domain.StatusRunning
	c.sets[k] = &set
	return nil
}

func (c *memCatalog) FinalizeSet(jobName, setID string, status domain.SetStatus, archives int, bytes int64, files int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[key(jobName, setID)]
	if !ok {
		return fmt.Errorf("unknown set %s", setID)
	}
	set.Status = status
	set.ArchiveCount += archives
	set.ByteCount += bytes
	set.FileCount += files
	return nil
}

func (c *memCatalog) AddFiles(jobName, setID string, archives []domain.ArchiveInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range archives {
		c.files[key(jobName, setID)] += len(a.Entries)
	}
	return nil
}

func (c *memCatalog) ListSets(jobName string) ([]domain.BackupSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sets []domain.BackupSet
	for _, set := range c.sets {
		if set.JobName == jobName {
			sets = append(sets, *set)
		}
	}
	return sets, nil
}

func (c *memCatalog) ListRunning(jobName string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, set := range c.sets {
		if set.JobName == jobName && set.Status == domain.StatusRunning {
			ids = append(ids, set.SetID)
		}
	}
	return ids, nil
}

func (c *memCatalog) MarkAbandoned(jobName, setID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.sets[key(jobName, setID)]; ok && set.Status == domain.StatusRunning {
		set.Status = domain.StatusError
	}
	return nil
}

func (c *memCatalog) DeleteSet(jobName, setID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, key(jobName, setID))
	delete(c.files, key(jobName, setID))
	c.deleted = append(c.deleted, setID)
	return nil
}

func (c *memCatalog) SetLastFull(jobName, setID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFull[jobName] = setID
	return nil
}

func (c *memCatalog) LastFull(jobName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFull[jobName], nil
}

func (c *memCatalog) LogEvent(jobName, eventType, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventSeq++
	id := fmt.Sprintf("event-%d", c.eventSeq)
	c.events[id] = domain.StatusRunning
	return id, nil
}

func (c *memCatalog) FinalizeEvent(id string, status domain.SetStatus, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[id] = status
	return nil
}

func (c *memCatalog) setStatus(jobName, setID string) (domain.SetStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[key(jobName, setID)]
	if !ok {
		return "", false
	}
	return set.Status, true
}
