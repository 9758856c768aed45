package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/arkiva/internal/adapter/archive"
	"github.com/semmidev/arkiva/internal/adapter/crypto"
	"github.com/semmidev/arkiva/internal/adapter/manifest"
	"github.com/semmidev/arkiva/internal/adapter/source"
	"github.com/semmidev/arkiva/internal/config"
	"github.com/semmidev/arkiva/internal/domain"
)

// Backup runs one backup invocation for one job: pre-flight checks, lock
// acquisition, change-set selection, archive splitting, encryption, manifest
// emission, rotation, remote sync and notification.
type Backup struct {
	settings    config.JobSettings
	host        string
	catalog     Catalog
	locks       LockManager
	syncTargets []domain.SyncTarget
	notifier    domain.Notifier
	rotation    *Rotation
	logger      Logger
}

func NewBackup(
	settings config.JobSettings,
	host string,
	cat Catalog,
	locks LockManager,
	syncTargets []domain.SyncTarget,
	notifier domain.Notifier,
	logger Logger,
) *Backup {
	return &Backup{
		settings:    settings,
		host:        host,
		catalog:     cat,
		locks:       locks,
		syncTargets: syncTargets,
		notifier:    notifier,
		rotation:    NewRotation(cat, syncTargets, logger),
		logger:      logger,
	}
}

// Execute performs one run. Per-entry read failures are accumulated on the
// result; structural failures (lock, encryption, capacity) set a terminal
// error status. The result always carries an explicit status.
func (uc *Backup) Execute(ctx context.Context, runType domain.RunType) *domain.BackupResult {
	start := time.Now()
	jobName := uc.settings.JobName
	res := &domain.BackupResult{JobName: jobName, RunType: runType, Status: domain.StatusError}
	defer func() { res.Duration = time.Since(start) }()

	uc.logger.Infof("[%s] Starting %s backup: %s", jobName, runType, uc.settings.Source)

	eventID, err := uc.catalog.LogEvent(jobName, string(runType), "backup started")
	if err != nil {
		uc.logger.Warnf("[%s] Could not record run event: %v", jobName, err)
	}

	// Pre-flight: everything that can fail must fail before any archive
	// exists on disk.
	passphrase, err := uc.preflight()
	if err != nil {
		return uc.fail(res, eventID, err)
	}

	lock, err := uc.locks.Acquire(jobName)
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			uc.logger.Warnf("[%s] Skipping run: %v", jobName, err)
			res.Status = domain.StatusSkipped
			res.Err = err
			uc.finalizeEvent(eventID, domain.StatusSkipped, err.Error())
			return res
		}
		return uc.fail(res, eventID, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			uc.logger.Errorf("[%s] Failed to release lock: %v", jobName, err)
		}
	}()
	if lock.WasReclaimed() {
		uc.logger.Warnf("[%s] Reclaimed stale lock from a dead process", jobName)
	}

	uc.markAbandonedRuns(jobName)

	jobDst := jobDestDir(uc.settings.Destination, uc.host, jobName)
	if err := os.MkdirAll(jobDst, 0755); err != nil {
		return uc.fail(res, eventID, fmt.Errorf("failed to create job destination: %w", err))
	}

	// A differential with no prior full falls back to a full run.
	lastFull, err := readLastFull(jobDst)
	if err != nil {
		return uc.fail(res, eventID, err)
	}
	if runType.IsDifferential() && lastFull == "" {
		uc.logger.Infof("[%s] No full backup found, performing full backup instead", jobName)
		runType = domain.RunFull
		res.RunType = runType
	}

	if runType == domain.RunDryRun {
		return uc.dryRun(res, eventID)
	}

	stamp := start.Format(stampLayout)
	var (
		setID string
		since time.Time
	)
	if runType.IsDifferential() {
		setID = lastFull
		since, err = parseStamp(lastFull)
		if err != nil {
			return uc.fail(res, eventID, err)
		}
		if _, err := os.Stat(setDirPath(jobDst, setID)); err != nil {
			return uc.fail(res, eventID, fmt.Errorf("backup set folder for last full %s not found: %w", setID, err))
		}
	} else {
		setID = stamp
	}
	res.SetID = setID

	setDir := setDirPath(jobDst, setID)
	if err := os.MkdirAll(setDir, 0755); err != nil {
		return uc.fail(res, eventID, fmt.Errorf("failed to create backup set directory: %w", err))
	}

	if err := uc.catalog.BeginSet(domain.BackupSet{
		JobName:   jobName,
		SetID:     setID,
		RunType:   runType,
		Status:    domain.StatusRunning,
		StartedAt: start,
	}); err != nil {
		return uc.fail(res, eventID, err)
	}

	archives, err := uc.writeArchives(setDir, runType, since, stamp, res)
	if err != nil {
		uc.finalizeSet(jobName, setID, domain.StatusError, nil)
		return uc.fail(res, eventID, err)
	}

	if runType.IsDifferential() && len(archives) == 0 {
		uc.logger.Infof("[%s] No modified files since last full backup", jobName)
		res.Status = domain.StatusSuccess
		uc.finalizeSet(jobName, setID, domain.StatusSuccess, nil)
		uc.finalizeEvent(eventID, domain.StatusSuccess, "no modified files")
		return res
	}

	if len(archives) > 0 {
		if err := uc.writeManifest(setDir, setID, runType, archives); err != nil {
			uc.finalizeSet(jobName, setID, domain.StatusError, nil)
			return uc.fail(res, eventID, err)
		}
	} else {
		uc.logger.Warnf("[%s] No archives created, skipping manifest generation", jobName)
	}

	if uc.settings.Encryption.Enabled {
		if err := uc.encryptArchives(archives, passphrase); err != nil {
			uc.finalizeSet(jobName, setID, domain.StatusError, nil)
			return uc.fail(res, eventID, err)
		}
	}

	for _, a := range archives {
		res.ArchiveCount++
		res.ByteCount += a.Bytes
		res.FileCount += len(a.Entries)
	}

	if err := uc.catalog.AddFiles(jobName, setID, archives); err != nil {
		uc.logger.Errorf("[%s] Failed to index manifest rows: %v", jobName, err)
	}

	if runType == domain.RunFull {
		if err := writeLastFull(jobDst, setID); err != nil {
			uc.finalizeSet(jobName, setID, domain.StatusError, nil)
			return uc.fail(res, eventID, err)
		}
		if err := uc.catalog.SetLastFull(jobName, setID); err != nil {
			uc.logger.Errorf("[%s] Failed to record last full marker: %v", jobName, err)
		}
	}

	res.Status = domain.StatusSuccess
	if len(res.Skipped) > 0 {
		res.Status = domain.StatusPartial
	}

	// Terminal status is durable before rotation ever runs, and rotation
	// only prunes after a clean success.
	uc.finalizeSet(jobName, setID, res.Status, res)

	if res.Status == domain.StatusSuccess {
		if err := uc.rotation.Execute(ctx, jobName, uc.host, jobDst, uc.settings.KeepSets); err != nil {
			uc.logger.Errorf("[%s] Rotation failed: %v", jobName, err)
		}
	}

	if uc.settings.Sync {
		uc.syncSet(ctx, setDir, setID)
	}
	uc.notify(ctx, res)

	uc.finalizeEvent(eventID, res.Status, fmt.Sprintf(
		"%d files in %d archives (%d bytes)", res.FileCount, res.ArchiveCount, res.ByteCount))
	uc.logger.Infof("[%s] %s backup %s in %s: %d files, %d archives",
		jobName, runType, res.Status, res.Duration.Round(time.Second), res.FileCount, res.ArchiveCount)
	return res
}

// preflight validates source, destination and the encryption passphrase.
func (uc *Backup) preflight() (string, error) {
	if _, err := os.Stat(uc.settings.Source); err != nil {
		return "", fmt.Errorf("source path does not exist: %s", uc.settings.Source)
	}
	if !filepath.IsAbs(uc.settings.Destination) {
		return "", fmt.Errorf("destination path is not absolute: %s", uc.settings.Destination)
	}
	if _, err := os.Stat(filepath.Dir(uc.settings.Destination)); err != nil {
		return "", fmt.Errorf("destination parent directory does not exist: %s", filepath.Dir(uc.settings.Destination))
	}

	if !uc.settings.Encryption.Enabled {
		return "", nil
	}
	passphrase := os.Getenv(uc.settings.Encryption.PassphraseEnv)
	if passphrase == "" {
		return "", &domain.EncryptionError{
			Op:  "preflight",
			Err: fmt.Errorf("passphrase environment variable %q is not set", uc.settings.Encryption.PassphraseEnv),
		}
	}
	return passphrase, nil
}

// writeArchives streams the change set through the archive writer. Per-entry
// read errors are skips; anything else aborts.
func (uc *Backup) writeArchives(setDir string, runType domain.RunType, since time.Time, stamp string, res *domain.BackupResult) ([]domain.ArchiveInfo, error) {
	filter := source.NewFilter(uc.settings.Exclude)
	walker := source.NewWalker(uc.settings.Source, filter)
	writer := archive.NewWriter(setDir, runType, uc.settings.MaxArchiveBytes, stamp)

	skipped, walkErr := walker.Walk(since, func(e domain.Entry) error {
		err := writer.Add(e)
		var srcErr *domain.SourceReadError
		if errors.As(err, &srcErr) {
			uc.logger.Warnf("[%s] Skipping unreadable entry: %v", uc.settings.JobName, srcErr)
			res.Skipped = append(res.Skipped, srcErr.Path)
			return nil
		}
		return err
	})
	for _, s := range skipped {
		uc.logger.Warnf("[%s] Skipping: %s", uc.settings.JobName, s)
	}
	res.Skipped = append(res.Skipped, skipped...)

	archives, closeErr := writer.Close()
	if walkErr != nil {
		return archives, walkErr
	}
	if closeErr != nil {
		return archives, closeErr
	}

	for _, a := range archives {
		uc.logger.Infof("[%s] Archive created: %s (%d files, %d bytes)",
			uc.settings.JobName, a.Name, len(a.Entries), a.Bytes)
	}
	return archives, nil
}

func (uc *Backup) writeManifest(setDir, setID string, runType domain.RunType, archives []domain.ArchiveInfo) error {
	var (
		m   *manifest.Manifest
		err error
	)
	if runType.IsDifferential() {
		m, err = manifest.Load(setDir, setID)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to load set manifest: %w", err)
			}
			m, err = manifest.Build(uc.settings.JobName, setID, uc.settings, nil)
			if err != nil {
				return err
			}
		}
		if err := m.Append(archives); err != nil {
			return err
		}
	} else {
		m, err = manifest.Build(uc.settings.JobName, setID, uc.settings, archives)
		if err != nil {
			return err
		}
	}
	if err := m.Write(setDir); err != nil {
		return err
	}
	uc.logger.Infof("[%s] Manifest written: %s", uc.settings.JobName, manifest.JSONPath(setDir, setID))
	return nil
}

// encryptArchives wraps each finished archive in place and drops the
// plaintext.
func (uc *Backup) encryptArchives(archives []domain.ArchiveInfo, passphrase string) error {
	cipher, err := crypto.New(passphrase)
	if err != nil {
		return err
	}
	for i := range archives {
		encPath, err := cipher.Encrypt(archives[i].Path)
		if err != nil {
			return err
		}
		uc.logger.Infof("[%s] Encrypted: %s", uc.settings.JobName, filepath.Base(encPath))
	}
	return nil
}

// dryRun simulates selection and archive splitting without touching the
// destination.
func (uc *Backup) dryRun(res *domain.BackupResult, eventID string) *domain.BackupResult {
	filter := source.NewFilter(uc.settings.Exclude)
	walker := source.NewWalker(uc.settings.Source, filter)

	var (
		archiveCount = 0
		currentBytes int64
	)
	skipped, err := walker.Walk(time.Time{}, func(e domain.Entry) error {
		if archiveCount == 0 {
			archiveCount = 1
		}
		if currentBytes > 0 && currentBytes+e.Size > uc.settings.MaxArchiveBytes {
			archiveCount++
			currentBytes = 0
		}
		currentBytes += e.Size
		res.FileCount++
		res.ByteCount += e.Size
		return nil
	})
	if err != nil {
		return uc.fail(res, eventID, err)
	}
	res.Skipped = skipped
	res.ArchiveCount = archiveCount
	res.Status = domain.StatusSuccess

	uc.logger.Infof("[%s] Dry run: %d files (%d bytes) would fill %d archive(s)",
		uc.settings.JobName, res.FileCount, res.ByteCount, res.ArchiveCount)
	uc.finalizeEvent(eventID, domain.StatusSuccess, "dry run complete")
	return res
}

func (uc *Backup) syncSet(ctx context.Context, setDir, setID string) {
	prefix := remotePrefix(uc.host, uc.settings.JobName, setID)
	for _, target := range uc.syncTargets {
		uc.logger.Infof("[%s] Syncing set to %s: %s", uc.settings.JobName, target.Name(), prefix)
		if err := target.SyncSet(ctx, setDir, prefix); err != nil {
			uc.logger.Errorf("[%s] Sync to %s failed: %v", uc.settings.JobName, target.Name(), err)
		} else {
			uc.logger.Infof("[%s] Sync to %s complete", uc.settings.JobName, target.Name())
		}
	}
}

func (uc *Backup) notify(ctx context.Context, res *domain.BackupResult) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.NotifyRun(ctx, res); err != nil {
		uc.logger.Warnf("[%s] Notification failed: %v", uc.settings.JobName, err)
	}
}

// markAbandonedRuns flips sets a killed process left in running state. The
// lock we hold proves no live run owns them.
func (uc *Backup) markAbandonedRuns(jobName string) {
	ids, err := uc.catalog.ListRunning(jobName)
	if err != nil {
		uc.logger.Warnf("[%s] Could not check for abandoned runs: %v", jobName, err)
		return
	}
	for _, id := range ids {
		uc.logger.Warnf("[%s] Marking abandoned run as failed: set %s", jobName, id)
		if err := uc.catalog.MarkAbandoned(jobName, id); err != nil {
			uc.logger.Errorf("[%s] Failed to mark abandoned run: %v", jobName, err)
		}
	}
}

func (uc *Backup) fail(res *domain.BackupResult, eventID string, err error) *domain.BackupResult {
	uc.logger.Errorf("[%s] Backup failed: %v", uc.settings.JobName, err)
	res.Status = domain.StatusError
	res.Err = err
	uc.finalizeEvent(eventID, domain.StatusError, err.Error())
	return res
}

func (uc *Backup) finalizeSet(jobName, setID string, status domain.SetStatus, res *domain.BackupResult) {
	archives, files, bytes := 0, 0, int64(0)
	if res != nil {
		archives, files, bytes = res.ArchiveCount, res.FileCount, res.ByteCount
	}
	if err := uc.catalog.FinalizeSet(jobName, setID, status, archives, bytes, files); err != nil {
		uc.logger.Errorf("[%s] Failed to finalize set record: %v", jobName, err)
	}
}

func (uc *Backup) finalizeEvent(eventID string, status domain.SetStatus, message string) {
	if eventID == "" {
		return
	}
	if err := uc.catalog.FinalizeEvent(eventID, status, message); err != nil {
		uc.logger.Warnf("[%s] Failed to finalize event: %v", uc.settings.JobName, err)
	}
}
