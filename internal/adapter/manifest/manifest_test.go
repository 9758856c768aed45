package manifest

import (
	"os"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/arkiva/internal/config"
	"github.com/semmidev/arkiva/internal/domain"
)

func testSettings() config.JobSettings {
	return config.JobSettings{
		JobName:         "docs",
		Source:          "/home/user/docs",
		Destination:     "/backups",
		KeepSets:        5,
		MaxArchiveBytes: 10 * 1024 * 1024,
		Exclude:         []string{"*.log"},
	}
}

func entry(rel string, size int64) domain.Entry {
	return domain.Entry{RelPath: rel, Size: size, ModTime: time.Now()}
}

func TestManifest(t *testing.T) {
	Convey("Given archives from a full run", t, func() {
		archives := []domain.ArchiveInfo{
			{
				Name:    "full_part_1_20260101_020000.tar.gz",
				Bytes:   2048,
				Entries: []domain.Entry{entry("a.txt", 100), entry("docs/b.txt", 200)},
			},
			{
				Name:    "full_part_2_20260101_020000.tar.gz",
				Bytes:   1024,
				Entries: []domain.Entry{entry("c.bin", 300)},
			},
		}

		Convey("Build should snapshot the config and index every file", func() {
			m, err := Build("docs", "20260101_020000", testSettings(), archives)
			So(err, ShouldBeNil)

			So(m.JobName, ShouldEqual, "docs")
			So(m.BackupSetID, ShouldEqual, "20260101_020000")
			So(m.Config.Source, ShouldEqual, "/home/user/docs")
			So(m.Config.KeepSets, ShouldEqual, 5)
			So(len(m.Archives), ShouldEqual, 2)
			So(len(m.Files), ShouldEqual, 3)
			So(m.Files[0].Tarball, ShouldEqual, "full_part_1_20260101_020000.tar.gz")
		})

		Convey("A path owned by two archives in one batch should be rejected", func() {
			dup := append(archives, domain.ArchiveInfo{
				Name:    "full_part_3_20260101_020000.tar.gz",
				Entries: []domain.Entry{entry("a.txt", 100)},
			})
			_, err := Build("docs", "20260101_020000", testSettings(), dup)

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "a.txt")
		})

		Convey("Appending a differential batch", func() {
			m, err := Build("docs", "20260101_020000", testSettings(), archives)
			So(err, ShouldBeNil)

			diff := []domain.ArchiveInfo{{
				Name:    "diff_part_1_20260102_020000.tar.gz",
				Bytes:   512,
				Entries: []domain.Entry{entry("a.txt", 150)},
			}}
			So(m.Append(diff), ShouldBeNil)

			Convey("Existing rows stay and the path gains a newer version", func() {
				So(len(m.Files), ShouldEqual, 4)
				So(len(m.Archives), ShouldEqual, 3)
			})

			Convey("FindLatest should resolve the path to the differential archive", func() {
				f, ok := m.FindLatest("a.txt")
				So(ok, ShouldBeTrue)
				So(f.Tarball, ShouldEqual, "diff_part_1_20260102_020000.tar.gz")

				f, ok = m.FindLatest("c.bin")
				So(ok, ShouldBeTrue)
				So(f.Tarball, ShouldEqual, "full_part_2_20260101_020000.tar.gz")

				_, ok = m.FindLatest("never-archived.txt")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("Write and Load should round-trip through the set directory", func() {
			setDir, err := os.MkdirTemp("", "manifest_test")
			So(err, ShouldBeNil)
			defer os.RemoveAll(setDir)

			m, err := Build("docs", "20260101_020000", testSettings(), archives)
			So(err, ShouldBeNil)
			So(m.Write(setDir), ShouldBeNil)

			loaded, err := Load(setDir, "20260101_020000")
			So(err, ShouldBeNil)
			So(loaded.BackupSetID, ShouldEqual, m.BackupSetID)
			So(len(loaded.Files), ShouldEqual, len(m.Files))

			Convey("The HTML report should exist and mention the archives", func() {
				html, err := os.ReadFile(HTMLPath(setDir, "20260101_020000"))
				So(err, ShouldBeNil)
				So(string(html), ShouldContainSubstring, "full_part_1_20260101_020000.tar.gz")
				So(string(html), ShouldContainSubstring, "Backup manifest - docs / 20260101_020000")
				So(strings.Contains(string(html), "docs"), ShouldBeTrue)
			})
		})

		Convey("Load on a missing manifest should surface the raw not-exist error", func() {
			_, err := Load(os.TempDir(), "19990101_000000")
			So(os.IsNotExist(err), ShouldBeTrue)
		})
	})
}

func TestParseArchiveName(t *testing.T) {
	Convey("Given archive file names", t, func() {
		Convey("Valid names should parse into sortable refs", func() {
			ref, ok := ParseArchiveName("diff_part_12_20260102_020000.tar.gz")
			So(ok, ShouldBeTrue)
			So(ref.Kind, ShouldEqual, "diff")
			So(ref.Ordinal, ShouldEqual, 12)
			So(ref.Stamp, ShouldEqual, "20260102_020000")
		})

		Convey("Foreign names should be rejected", func() {
			_, ok := ParseArchiveName("manifest_20260101_020000.json")
			So(ok, ShouldBeFalse)
			_, ok = ParseArchiveName("full_part_1_20260101_020000.tar.gz.enc")
			So(ok, ShouldBeFalse)
		})

		Convey("After should order by stamp then ordinal", func() {
			a, _ := ParseArchiveName("full_part_1_20260101_020000.tar.gz")
			b, _ := ParseArchiveName("full_part_2_20260101_020000.tar.gz")
			c, _ := ParseArchiveName("diff_part_1_20260102_020000.tar.gz")

			So(b.After(a), ShouldBeTrue)
			So(c.After(b), ShouldBeTrue)
			So(a.After(c), ShouldBeFalse)
		})
	})
}
