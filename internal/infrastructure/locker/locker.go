package locker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/semmidev/arkiva/internal/config"
	"github.com/semmidev/arkiva/internal/domain"
)

// Locker hands out cross-process job locks backed by pid files in a shared
// directory. Acquire is non-blocking: a held lock yields domain.ErrLockBusy.
type Locker struct {
	dir string
}

// Lock is a held job lock. Reclaimed is true when a stale lock from a dead
// process was swept aside during acquisition.
type Lock struct {
	JobName   string
	Path      string
	Reclaimed bool
}

func New(dir string) (*Locker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Locker{dir: dir}, nil
}

// Acquire takes the lock for a job or fails immediately with
// domain.ErrLockBusy. A lock whose owning process is no longer alive is
// reclaimed instead of blocking the job forever.
func (l *Locker) Acquire(jobName string) (*Lock, error) {
	path := l.lockPath(jobName)

	reclaimed := false
	if err := l.create(path); err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}
		pid, ok := readLockPID(path)
		if ok && pidAlive(pid) {
			return nil, fmt.Errorf("job %q locked by pid %d: %w", jobName, pid, domain.ErrLockBusy)
		}
		// Owner is dead or the file is garbage. Remove and take it over;
		// losing the race to another process still reports busy.
		_ = os.Remove(path)
		if err := l.create(path); err != nil {
			return nil, fmt.Errorf("job %q: %w", jobName, domain.ErrLockBusy)
		}
		reclaimed = true
	}

	return &Lock{JobName: jobName, Path: path, Reclaimed: reclaimed}, nil
}

func (l *Locker) create(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%d %d\n", os.Getpid(), time.Now().Unix())
	return err
}

// WasReclaimed reports whether acquisition swept aside a stale lock.
func (lk *Lock) WasReclaimed() bool {
	return lk.Reclaimed
}

// Release deletes the lock file. Safe to call once per held lock.
func (lk *Lock) Release() error {
	if err := os.Remove(lk.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// CleanStale removes every lock file in the directory whose owning process is
// gone, and returns the affected job names.
func (l *Locker) CleanStale() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock directory: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		pid, ok := readLockPID(path)
		if ok && pidAlive(pid) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed = append(removed, strings.TrimSuffix(entry.Name(), ".lock"))
		}
	}
	return removed, nil
}

func (l *Locker) lockPath(jobName string) string {
	return filepath.Join(l.dir, config.SanitizeName(jobName)+".lock")
}

func readLockPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// pidAlive probes the process with signal 0. EPERM still means the process
// exists, just owned by someone else.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) {
		return false
	}
	return errors.Is(err, syscall.EPERM)
}
