package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/semmidev/arkiva/internal/domain"
)

// Rotation deletes the oldest backup sets beyond the retention count. It
// runs only after a run's terminal status has been durably recorded.
//
// Policy for dependent differentials: a differential lives inside its owning
// full set's directory, so deleting a full set cascade-deletes the
// differential archives with it; a differential is never stranded without
// its baseline. The current last-full baseline itself is never deleted.
type Rotation struct {
	catalog     Catalog
	syncTargets []domain.SyncTarget
	logger      Logger
}

func NewRotation(cat Catalog, syncTargets []domain.SyncTarget, logger Logger) *Rotation {
	return &Rotation{catalog: cat, syncTargets: syncTargets, logger: logger}
}

// Execute prunes sets of one job under jobDst, keeping the newest `keep`.
// Archives and manifests are removed before the catalog index row, so an
// interrupted deletion is detectable and finished by the next rotation.
func (uc *Rotation) Execute(ctx context.Context, jobName, host, jobDst string, keep int) error {
	setNames, err := listSetDirs(jobDst)
	if err != nil {
		return err
	}
	if len(setNames) <= keep {
		return nil
	}

	lastFull, err := readLastFull(jobDst)
	if err != nil {
		uc.logger.Warnf("[%s] Rotation: %v", jobName, err)
	}

	for _, name := range setNames[keep:] {
		setID := strings.TrimPrefix(name, setDirPrefix)
		if setID == lastFull {
			uc.logger.Warnf("[%s] Rotation refusing to delete current full baseline: %s", jobName, name)
			continue
		}

		if err := os.RemoveAll(filepath.Join(jobDst, name)); err != nil {
			uc.logger.Errorf("[%s] Failed to delete backup set %s: %v", jobName, name, err)
			continue
		}
		uc.logger.Infof("[%s] Deleted old backup set: %s", jobName, name)

		for _, target := range uc.syncTargets {
			if err := target.DeletePrefix(ctx, remotePrefix(host, jobName, setID)); err != nil {
				uc.logger.Errorf("[%s] Failed to delete %s copy of %s: %v", jobName, target.Name(), name, err)
			}
		}

		if err := uc.catalog.DeleteSet(jobName, setID); err != nil {
			uc.logger.Errorf("[%s] Failed to delete catalog record for %s: %v", jobName, name, err)
		}
	}
	return nil
}

// listSetDirs returns backup_set_* directory names, newest first. Set ids
// are sortable timestamps, so a reverse lexical sort is chronological.
func listSetDirs(jobDst string) ([]string, error) {
	entries, err := os.ReadDir(jobDst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), setDirPrefix) {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
