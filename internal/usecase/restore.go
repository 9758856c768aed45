package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/semmidev/arkiva/internal/adapter/archive"
	"github.com/semmidev/arkiva/internal/adapter/crypto"
	"github.com/semmidev/arkiva/internal/adapter/manifest"
	"github.com/semmidev/arkiva/internal/config"
	"github.com/semmidev/arkiva/internal/domain"
)

// Restore extracts whole sets or single files back out of a backup set,
// decrypting transparently. A restore that writes into the job's tree is a
// run like any other, so it takes the same job lock as a backup.
type Restore struct {
	settings config.JobSettings
	host     string
	catalog  Catalog
	locks    LockManager
	logger   Logger
}

func NewRestore(settings config.JobSettings, host string, cat Catalog, locks LockManager, logger Logger) *Restore {
	return &Restore{settings: settings, host: host, catalog: cat, locks: locks, logger: logger}
}

// Full restores a complete backup set into dest (the job's source when dest
// is empty): every full archive first, then every differential archive in
// chronological order, so later versions overwrite earlier ones. The order
// across differentials is the correctness-critical invariant here.
func (uc *Restore) Full(ctx context.Context, setID, dest string) (*domain.RestoreResult, error) {
	start := time.Now()
	jobName := uc.settings.JobName
	uc.logger.Infof("[%s] Starting full restore of set %s", jobName, setID)

	eventID, _ := uc.catalog.LogEvent(jobName, "restore", "full restore of set "+setID)

	lock, err := uc.locks.Acquire(jobName)
	if err != nil {
		uc.finalizeRestoreEvent(eventID, domain.StatusError, err)
		return nil, err
	}
	defer lock.Release()

	// Resolving: locate the manifest and order the archives.
	setDir := setDirPath(jobDestDir(uc.settings.Destination, uc.host, jobName), setID)
	m, err := uc.loadManifest(setDir, setID)
	if err != nil {
		uc.finalizeRestoreEvent(eventID, domain.StatusError, err)
		return nil, err
	}
	if dest == "" {
		dest = m.Config.Source
	}

	ordered, err := orderForRestore(m.ArchiveRefs(), setID)
	if err != nil {
		uc.finalizeRestoreEvent(eventID, domain.StatusError, err)
		return nil, err
	}

	// Extracting: apply each archive in order; later archives may overwrite
	// files written by earlier ones.
	result := &domain.RestoreResult{JobName: jobName, SetID: setID}
	for _, ref := range ordered {
		n, err := uc.extractArchive(setDir, ref.Name, dest)
		if err != nil {
			uc.logger.Errorf("[%s] Restore failed at archive %s: %v", jobName, ref.Name, err)
			uc.finalizeRestoreEvent(eventID, domain.StatusError, err)
			return nil, err
		}
		result.Restored += n
		uc.logger.Infof("[%s] Extracted %s (%d files)", jobName, ref.Name, n)
	}

	result.Duration = time.Since(start)
	uc.logger.Infof("[%s] Full restore complete: %d files to %s", jobName, result.Restored, dest)
	uc.finalizeRestoreEvent(eventID, domain.StatusSuccess, nil)
	return result, nil
}

// Files restores an explicit path list from one set. Each path is resolved
// through the set's manifest to its single owning archive; only that archive
// is opened and only the requested members are extracted. A path missing
// from the manifest is reported per item without aborting the rest.
func (uc *Restore) Files(ctx context.Context, setID string, paths []string, dest string) (*domain.RestoreResult, error) {
	start := time.Now()
	jobName := uc.settings.JobName
	uc.logger.Infof("[%s] Starting partial restore of %d path(s) from set %s", jobName, len(paths), setID)

	eventID, _ := uc.catalog.LogEvent(jobName, "restore", "partial restore of set "+setID)

	lock, err := uc.locks.Acquire(jobName)
	if err != nil {
		uc.finalizeRestoreEvent(eventID, domain.StatusError, err)
		return nil, err
	}
	defer lock.Release()

	setDir := setDirPath(jobDestDir(uc.settings.Destination, uc.host, jobName), setID)
	m, err := uc.loadManifest(setDir, setID)
	if err != nil {
		uc.finalizeRestoreEvent(eventID, domain.StatusError, err)
		return nil, err
	}
	if dest == "" {
		dest = m.Config.Source
	}

	// Resolve each requested path to its owning archive (newest version
	// wins when differentials re-archived it).
	statuses := make(map[string]*domain.PathStatus, len(paths))
	byArchive := make(map[string][]string)
	for _, p := range paths {
		statuses[p] = &domain.PathStatus{Path: p}
		entry, ok := m.FindLatest(p)
		if !ok {
			statuses[p].Err = fmt.Errorf("%s: not found in manifest of set %s", p, setID)
			uc.logger.Warnf("[%s] %v", jobName, statuses[p].Err)
			continue
		}
		byArchive[entry.Tarball] = append(byArchive[entry.Tarball], p)
	}

	archiveNames := make([]string, 0, len(byArchive))
	for name := range byArchive {
		archiveNames = append(archiveNames, name)
	}
	sort.Strings(archiveNames)

	result := &domain.RestoreResult{JobName: jobName, SetID: setID}
	for _, name := range archiveNames {
		members := byArchive[name]
		restored, missing, err := uc.extractMembers(setDir, name, dest, members)
		if err != nil {
			for _, p := range members {
				statuses[p].Err = err
			}
			uc.logger.Errorf("[%s] Failed extracting from %s: %v", jobName, name, err)
			continue
		}
		for _, p := range restored {
			statuses[p].Restored = true
			result.Restored++
		}
		for _, p := range missing {
			statuses[p].Err = fmt.Errorf("%s: not found in archive %s", p, name)
		}
	}

	for _, p := range paths {
		result.Paths = append(result.Paths, *statuses[p])
	}
	result.Duration = time.Since(start)

	status := domain.StatusSuccess
	for _, ps := range result.Paths {
		if ps.Err != nil {
			status = domain.StatusPartial
		}
	}
	uc.logger.Infof("[%s] Partial restore %s: %d of %d path(s) restored", jobName, status, result.Restored, len(paths))
	uc.finalizeRestoreEvent(eventID, status, nil)
	return result, nil
}

func (uc *Restore) loadManifest(setDir, setID string) (*manifest.Manifest, error) {
	m, err := manifest.Load(setDir, setID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.ManifestNotFoundError{JobName: uc.settings.JobName, SetID: setID}
		}
		return nil, err
	}
	return m, nil
}

// orderForRestore sorts archives for a full restore: full parts first, then
// differential parts, each chronologically (stamp, then ordinal). A set with
// differential archives but no full ones cannot be restored coherently.
func orderForRestore(refs []manifest.ArchiveRef, setID string) ([]manifest.ArchiveRef, error) {
	var fulls, diffs []manifest.ArchiveRef
	for _, ref := range refs {
		if ref.Kind == string(domain.RunFull) {
			fulls = append(fulls, ref)
		} else {
			diffs = append(diffs, ref)
		}
	}
	if len(fulls) == 0 && len(diffs) > 0 {
		return nil, &domain.RestoreOrderError{SetID: setID}
	}

	chrono := func(refs []manifest.ArchiveRef) {
		sort.Slice(refs, func(i, j int) bool { return refs[j].After(refs[i]) })
	}
	chrono(fulls)
	chrono(diffs)
	return append(fulls, diffs...), nil
}

// extractArchive unpacks a whole archive, decrypting to a scratch directory
// first when the on-disk file is encrypted.
func (uc *Restore) extractArchive(setDir, name, dest string) (int, error) {
	diskPath, encrypted, err := resolveArchive(setDir, name)
	if err != nil {
		return 0, err
	}

	if encrypted {
		plainPath, cleanup, err := uc.decryptToScratch(diskPath)
		if err != nil {
			return 0, err
		}
		defer cleanup()
		diskPath = plainPath
	}

	return archive.ExtractAll(diskPath, dest)
}

func (uc *Restore) extractMembers(setDir, name, dest string, members []string) (restored, missing []string, err error) {
	diskPath, encrypted, err := resolveArchive(setDir, name)
	if err != nil {
		return nil, nil, err
	}

	if encrypted {
		plainPath, cleanup, err := uc.decryptToScratch(diskPath)
		if err != nil {
			return nil, nil, err
		}
		defer cleanup()
		diskPath = plainPath
	}

	return archive.ExtractMembers(diskPath, dest, members)
}

func (uc *Restore) decryptToScratch(encPath string) (string, func(), error) {
	passphrase := os.Getenv(uc.settings.Encryption.PassphraseEnv)
	cipher, err := crypto.New(passphrase)
	if err != nil {
		return "", nil, err
	}

	scratch, err := os.MkdirTemp("", "arkiva_restore_")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(scratch) }

	plainPath, err := cipher.Decrypt(encPath, scratch)
	if err != nil {
		cleanup()
		if errors.Is(err, domain.ErrNotEncrypted) {
			// Suffix said encrypted but the content disagrees; surface
			// the distinction instead of a generic cipher failure.
			return "", nil, fmt.Errorf("%s: %w", encPath, domain.ErrNotEncrypted)
		}
		return "", nil, err
	}
	return plainPath, cleanup, nil
}

// resolveArchive maps a manifest archive reference to the file actually on
// disk: the plain tarball or its encrypted form, whichever exists.
func resolveArchive(setDir, name string) (diskPath string, encrypted bool, err error) {
	plain := filepath.Join(setDir, name)
	if _, statErr := os.Stat(plain); statErr == nil {
		return plain, false, nil
	}
	enc := plain + crypto.Suffix
	if _, statErr := os.Stat(enc); statErr == nil {
		return enc, true, nil
	}
	return "", false, &domain.ArchiveNotFoundError{Archive: name}
}

func (uc *Restore) finalizeRestoreEvent(eventID string, status domain.SetStatus, err error) {
	if eventID == "" {
		return
	}
	message := "restore complete"
	if err != nil {
		message = err.Error()
	} else if status != domain.StatusSuccess {
		message = "restore finished with missing paths"
	}
	if ferr := uc.catalog.FinalizeEvent(eventID, status, message); ferr != nil {
		uc.logger.Warnf("[%s] Failed to finalize restore event: %v", uc.settings.JobName, ferr)
	}
}
