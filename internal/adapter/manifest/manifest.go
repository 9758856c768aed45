package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/semmidev/arkiva/internal/config"
	"github.com/semmidev/arkiva/internal/domain"
)

// Manifest is the durable per-set index: a point-in-time snapshot of the job
// configuration plus one row per archived file naming its single owning
// archive. Differential runs append rows to the owning full set's manifest;
// earlier rows are never rewritten.
type Manifest struct {
	JobName     string          `json:"job_name"`
	BackupSetID string          `json:"backup_set_id"`
	Timestamp   string          `json:"timestamp"`
	Config      ConfigSnapshot  `json:"config"`
	Archives    []ArchiveRecord `json:"archives"`
	Files       []File          `json:"files"`
}

// ConfigSnapshot freezes the settings the run actually used, so later config
// edits cannot retroactively alter an emitted manifest.
type ConfigSnapshot struct {
	Source          string   `json:"source"`
	Destination     string   `json:"destination"`
	KeepSets        int      `json:"keep_sets"`
	MaxArchiveBytes int64    `json:"max_archive_bytes"`
	Exclude         []string `json:"exclude,omitempty"`
	Encrypted       bool     `json:"encrypted"`
}

// ArchiveRecord summarizes one tarball. Name is the plain tarball name; the
// on-disk file may carry the encryption suffix.
type ArchiveRecord struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Files     int    `json:"files"`
}

// File is one manifest row.
type File struct {
	Tarball   string `json:"tarball"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified"`
}

const modifiedLayout = "2006-01-02 15:04:05"

// Build creates the manifest for a fresh full run. A path resolving to more
// than one archive within the batch is a writer bug and is rejected here
// rather than discovered at restore time.
func Build(jobName, setID string, settings config.JobSettings, archives []domain.ArchiveInfo) (*Manifest, error) {
	m := &Manifest{
		JobName:     jobName,
		BackupSetID: setID,
		Timestamp:   time.Now().Format(time.RFC3339),
		Config: ConfigSnapshot{
			Source:          settings.Source,
			Destination:     settings.Destination,
			KeepSets:        settings.KeepSets,
			MaxArchiveBytes: settings.MaxArchiveBytes,
			Exclude:         settings.Exclude,
			Encrypted:       settings.Encryption.Enabled,
		},
	}
	if err := m.Append(archives); err != nil {
		return nil, err
	}
	return m, nil
}

// Append adds one run's archives to the manifest. Within the appended batch
// every path must map to exactly one archive.
func (m *Manifest) Append(archives []domain.ArchiveInfo) error {
	owners := make(map[string]string)
	for _, a := range archives {
		m.Archives = append(m.Archives, ArchiveRecord{
			Name:      a.Name,
			SizeBytes: a.Bytes,
			Files:     len(a.Entries),
		})
		for _, e := range a.Entries {
			if owner, dup := owners[e.RelPath]; dup {
				return fmt.Errorf("path %q owned by both %s and %s", e.RelPath, owner, a.Name)
			}
			owners[e.RelPath] = a.Name
			m.Files = append(m.Files, File{
				Tarball:   a.Name,
				Path:      e.RelPath,
				SizeBytes: e.Size,
				Modified:  e.ModTime.Format(modifiedLayout),
			})
		}
	}
	m.Timestamp = time.Now().Format(time.RFC3339)
	return nil
}

// JSONPath and HTMLPath locate the two manifest artifacts inside a set
// directory.
func JSONPath(setDir, setID string) string {
	return filepath.Join(setDir, fmt.Sprintf("manifest_%s.json", setID))
}

func HTMLPath(setDir, setID string) string {
	return filepath.Join(setDir, fmt.Sprintf("manifest_%s.html", setID))
}

// Load reads the structured manifest of a set.
func Load(setDir, setID string) (*Manifest, error) {
	data, err := os.ReadFile(JSONPath(setDir, setID))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Write persists both artifacts: the JSON record restore reads and the
// static browsable HTML report.
func (m *Manifest) Write(setDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(JSONPath(setDir, m.BackupSetID), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest json: %w", err)
	}
	if err := m.writeHTML(HTMLPath(setDir, m.BackupSetID)); err != nil {
		return fmt.Errorf("failed to write manifest report: %w", err)
	}
	return nil
}

// FindLatest returns the newest manifest row for a path: the row whose
// archive sorts last by (stamp, ordinal), so a file re-archived by a later
// differential resolves to its most recent version.
func (m *Manifest) FindLatest(path string) (File, bool) {
	var (
		found  bool
		best   File
		bestAt ArchiveRef
	)
	for _, f := range m.Files {
		if f.Path != path {
			continue
		}
		ref, ok := ParseArchiveName(f.Tarball)
		if !ok {
			continue
		}
		if !found || ref.After(bestAt) {
			found, best, bestAt = true, f, ref
		}
	}
	return best, found
}

// ArchiveRef is the sortable identity parsed out of a tarball name.
type ArchiveRef struct {
	Name    string
	Kind    string
	Ordinal int
	Stamp   string
}

var archiveNameRE = regexp.MustCompile(`^([a-z]+)_part_(\d+)_(\d{8}_\d{6})\.tar\.gz$`)

// ParseArchiveName decodes {type}_part_<n>_<stamp>.tar.gz.
func ParseArchiveName(name string) (ArchiveRef, bool) {
	match := archiveNameRE.FindStringSubmatch(name)
	if match == nil {
		return ArchiveRef{}, false
	}
	ordinal, err := strconv.Atoi(match[2])
	if err != nil {
		return ArchiveRef{}, false
	}
	return ArchiveRef{Name: name, Kind: match[1], Ordinal: ordinal, Stamp: match[3]}, true
}

// After orders refs chronologically, ordinal breaking stamp ties.
func (r ArchiveRef) After(other ArchiveRef) bool {
	if r.Stamp != other.Stamp {
		return r.Stamp > other.Stamp
	}
	return r.Ordinal > other.Ordinal
}

// ArchiveRefs returns every distinct archive referenced by the manifest in
// insertion order.
func (m *Manifest) ArchiveRefs() []ArchiveRef {
	seen := make(map[string]bool)
	var refs []ArchiveRef
	for _, rec := range m.Archives {
		if seen[rec.Name] {
			continue
		}
		seen[rec.Name] = true
		if ref, ok := ParseArchiveName(rec.Name); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}
