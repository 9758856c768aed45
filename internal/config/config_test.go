package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const globalYAML = `
app:
  name: arkiva
  log_level: debug
  lock_dir: /var/lock/arkiva
  data_dir: /var/lib/arkiva
backup:
  destination: /backups
  local_path: /mnt/mirror
  keep_sets: 3
  max_tarball_size: 512
  exclude:
    - "*.log"
    - ".*"
  use_common_exclude: true
  encryption:
    enabled: false
    passphrase_env: ARKIVA_ENCRYPT_PASSPHRASE
`

const docsJobYAML = `
job_name: docs
source: /home/user/docs
schedule: "0 0 2 * * *"
enabled: true
exclude:
  - "node_modules/"
`

const mediaJobYAML = `
job_name: media
source: /home/user/media
destination: /mnt/media-backups
enabled: false
use_common_exclude: false
keep_sets: 10
max_tarball_size: 2048
sync: true
encryption:
  enabled: true
exclude:
  - "*.iso"
`

func writeConfigTree(t *testing.T) (string, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	globalPath := filepath.Join(dir, "config.yaml")
	jobsDir := filepath.Join(dir, "jobs")
	if err := os.WriteFile(globalPath, []byte(globalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(jobsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobsDir, "docs.yaml"), []byte(docsJobYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobsDir, "media.yaml"), []byte(mediaJobYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return globalPath, jobsDir
}

func TestLoad(t *testing.T) {
	Convey("Given a config tree on disk", t, func() {
		globalPath, jobsDir := writeConfigTree(t)

		Convey("Load should read globals plus every job file", func() {
			cfg, err := Load(globalPath, jobsDir)
			So(err, ShouldBeNil)

			So(cfg.App.Name, ShouldEqual, "arkiva")
			So(cfg.Backup.KeepSets, ShouldEqual, 3)
			So(cfg.Backup.LocalPath, ShouldEqual, "/mnt/mirror")
			So(len(cfg.Jobs), ShouldEqual, 2)

			job, ok := cfg.Job("docs")
			So(ok, ShouldBeTrue)
			So(job.Source, ShouldEqual, "/home/user/docs")

			enabled := cfg.EnabledJobs()
			So(len(enabled), ShouldEqual, 1)
			So(enabled[0].Name, ShouldEqual, "docs")
		})

		Convey("A job with a duplicate name should fail validation", func() {
			dup := filepath.Join(jobsDir, "zz-dup.yaml")
			So(os.WriteFile(dup, []byte(docsJobYAML), 0644), ShouldBeNil)

			_, err := Load(globalPath, jobsDir)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "duplicate job_name")
		})

		Convey("An enabled job without a schedule should fail validation", func() {
			bad := "job_name: broken\nsource: /tmp\nenabled: true\n"
			So(os.WriteFile(filepath.Join(jobsDir, "broken.yaml"), []byte(bad), 0644), ShouldBeNil)

			_, err := Load(globalPath, jobsDir)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "schedule is required")
		})

		Convey("A missing jobs directory should load with zero jobs", func() {
			cfg, err := Load(globalPath, filepath.Join(jobsDir, "does-not-exist"))
			So(err, ShouldBeNil)
			So(len(cfg.Jobs), ShouldEqual, 0)
		})
	})
}

func TestResolve(t *testing.T) {
	Convey("Given a loaded config", t, func() {
		globalPath, jobsDir := writeConfigTree(t)
		cfg, err := Load(globalPath, jobsDir)
		So(err, ShouldBeNil)

		Convey("A job without overrides should inherit the globals", func() {
			job, _ := cfg.Job("docs")
			s := cfg.Resolve(job)

			So(s.Destination, ShouldEqual, "/backups")
			So(s.KeepSets, ShouldEqual, 3)
			So(s.MaxArchiveBytes, ShouldEqual, int64(512)*1024*1024)
			So(s.Encryption.Enabled, ShouldBeFalse)
			So(s.Sync, ShouldBeFalse)

			Convey("Common excludes should merge before the job's own", func() {
				So(s.Exclude, ShouldResemble, []string{"*.log", ".*", "node_modules/"})
			})
		})

		Convey("A job with overrides should win over the globals", func() {
			job, _ := cfg.Job("media")
			s := cfg.Resolve(job)

			So(s.Destination, ShouldEqual, "/mnt/media-backups")
			So(s.KeepSets, ShouldEqual, 10)
			So(s.MaxArchiveBytes, ShouldEqual, int64(2048)*1024*1024)
			So(s.Sync, ShouldBeTrue)

			Convey("use_common_exclude false should drop the common patterns", func() {
				So(s.Exclude, ShouldResemble, []string{"*.iso"})
			})

			Convey("Job encryption should inherit the global passphrase env", func() {
				So(s.Encryption.Enabled, ShouldBeTrue)
				So(s.Encryption.PassphraseEnv, ShouldEqual, "ARKIVA_ENCRYPT_PASSPHRASE")
			})
		})
	})
}

func TestSanitizeName(t *testing.T) {
	Convey("SanitizeName should keep only path-safe characters", t, func() {
		So(SanitizeName("docs"), ShouldEqual, "docs")
		So(SanitizeName("my host.local"), ShouldEqual, "my_host_local")
		So(SanitizeName("a/b\\c:d"), ShouldEqual, "a_b_c_d")
	})
}
