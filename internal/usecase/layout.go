package usecase

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/arkiva/internal/config"
)

// On-disk layout, relied upon by restore and external tooling:
//
//	destination/<host>/<job>/backup_set_<stamp>/{type}_part_<n>_<stamp>.tar.gz[.enc]
//	destination/<host>/<job>/last_full.txt
const (
	stampLayout  = "20060102_150405"
	setDirPrefix = "backup_set_"
	lastFullFile = "last_full.txt"
)

func jobDestDir(destination, host, jobName string) string {
	return filepath.Join(destination, config.SanitizeName(host), config.SanitizeName(jobName))
}

func setDirPath(jobDst, setID string) string {
	return filepath.Join(jobDst, setDirPrefix+setID)
}

func remotePrefix(host, jobName, setID string) string {
	return path.Join(config.SanitizeName(host), config.SanitizeName(jobName), setDirPrefix+setID)
}

// readLastFull returns the job's reference marker, or "" when the job has no
// successful full backup yet.
func readLastFull(jobDst string) (string, error) {
	data, err := os.ReadFile(filepath.Join(jobDst, lastFullFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read last full marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeLastFull(jobDst, setID string) error {
	if err := os.WriteFile(filepath.Join(jobDst, lastFullFile), []byte(setID+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write last full marker: %w", err)
	}
	return nil
}

func parseStamp(setID string) (time.Time, error) {
	t, err := time.ParseInLocation(stampLayout, setID, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid backup set id %q: %w", setID, err)
	}
	return t, nil
}
