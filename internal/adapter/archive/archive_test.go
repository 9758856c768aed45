package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/arkiva/internal/domain"
)

const mb = 1024 * 1024

func writeSource(t *testing.T, dir, name string, size int) domain.Entry {
	t.Helper()
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return domain.Entry{
		AbsPath: path,
		RelPath: name,
		Size:    int64(size),
		ModTime: time.Now(),
	}
}

func TestWriter(t *testing.T) {
	Convey("Given an archive writer", t, func() {
		srcDir, err := os.MkdirTemp("", "archive_src")
		So(err, ShouldBeNil)
		defer os.RemoveAll(srcDir)

		outDir, err := os.MkdirTemp("", "archive_out")
		So(err, ShouldBeNil)
		defer os.RemoveAll(outDir)

		Convey("When three 4MB files go through a 10MB limit", func() {
			w := NewWriter(outDir, domain.RunFull, 10*mb, "20260101_020000")
			for i := 1; i <= 3; i++ {
				entry := writeSource(t, srcDir, fmt.Sprintf("file%d.bin", i), 4*mb)
				So(w.Add(entry), ShouldBeNil)
			}
			archives, err := w.Close()
			So(err, ShouldBeNil)

			Convey("It should split into two archives of two and one files", func() {
				So(len(archives), ShouldEqual, 2)
				So(archives[0].Name, ShouldEqual, "full_part_1_20260101_020000.tar.gz")
				So(archives[1].Name, ShouldEqual, "full_part_2_20260101_020000.tar.gz")
				So(len(archives[0].Entries), ShouldEqual, 2)
				So(len(archives[1].Entries), ShouldEqual, 1)
				So(archives[1].Entries[0].RelPath, ShouldEqual, "file3.bin")
			})

			Convey("Every archive should exist on disk with its recorded size", func() {
				for _, a := range archives {
					info, err := os.Stat(a.Path)
					So(err, ShouldBeNil)
					So(info.Size(), ShouldEqual, a.Bytes)
					So(a.Bytes, ShouldBeGreaterThan, 0)
				}
			})
		})

		Convey("When a single file exceeds the limit on its own", func() {
			w := NewWriter(outDir, domain.RunFull, 1*mb, "20260101_020000")
			big := writeSource(t, srcDir, "big.bin", 3*mb)
			small := writeSource(t, srcDir, "small.bin", 100)

			So(w.Add(big), ShouldBeNil)
			So(w.Add(small), ShouldBeNil)
			archives, err := w.Close()
			So(err, ShouldBeNil)

			Convey("It should write the oversized file alone and never produce an empty archive", func() {
				So(len(archives), ShouldEqual, 2)
				So(len(archives[0].Entries), ShouldEqual, 1)
				So(archives[0].Entries[0].RelPath, ShouldEqual, "big.bin")
				So(len(archives[1].Entries), ShouldEqual, 1)
				for _, a := range archives {
					So(len(a.Entries), ShouldBeGreaterThan, 0)
				}
			})
		})

		Convey("When an entry vanishes between selection and archiving", func() {
			w := NewWriter(outDir, domain.RunFull, 10*mb, "20260101_020000")
			gone := domain.Entry{
				AbsPath: filepath.Join(srcDir, "gone.bin"),
				RelPath: "gone.bin",
				Size:    10,
			}
			err := w.Add(gone)

			Convey("It should report a SourceReadError naming the path", func() {
				var srcErr *domain.SourceReadError
				So(err, ShouldNotBeNil)
				So(errors.As(err, &srcErr), ShouldBeTrue)
				So(srcErr.Path, ShouldEqual, gone.AbsPath)
			})

			Convey("The run should continue after skipping it", func() {
				ok := writeSource(t, srcDir, "ok.bin", 10)
				So(w.Add(ok), ShouldBeNil)
				archives, err := w.Close()
				So(err, ShouldBeNil)
				So(len(archives), ShouldEqual, 1)
				So(len(archives[0].Entries), ShouldEqual, 1)
			})
		})

		Convey("When no entries are added", func() {
			w := NewWriter(outDir, domain.RunDifferential, 10*mb, "20260101_020000")
			archives, err := w.Close()

			Convey("It should produce no archives at all", func() {
				So(err, ShouldBeNil)
				So(len(archives), ShouldEqual, 0)
				entries, err := os.ReadDir(outDir)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 0)
			})
		})
	})
}

func TestExtract(t *testing.T) {
	Convey("Given a written archive", t, func() {
		srcDir, err := os.MkdirTemp("", "extract_src")
		So(err, ShouldBeNil)
		defer os.RemoveAll(srcDir)

		outDir, err := os.MkdirTemp("", "extract_out")
		So(err, ShouldBeNil)
		defer os.RemoveAll(outDir)

		w := NewWriter(outDir, domain.RunFull, 10*mb, "20260101_020000")
		So(w.Add(writeSource(t, srcDir, "docs/readme.txt", 512)), ShouldBeNil)
		So(w.Add(writeSource(t, srcDir, "data.bin", 2048)), ShouldBeNil)
		archives, err := w.Close()
		So(err, ShouldBeNil)
		So(len(archives), ShouldEqual, 1)
		archivePath := archives[0].Path

		Convey("ExtractAll should restore every member with its content", func() {
			destDir, err := os.MkdirTemp("", "extract_dest")
			So(err, ShouldBeNil)
			defer os.RemoveAll(destDir)

			count, err := ExtractAll(archivePath, destDir)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 2)

			original, err := os.ReadFile(filepath.Join(srcDir, "docs/readme.txt"))
			So(err, ShouldBeNil)
			restored, err := os.ReadFile(filepath.Join(destDir, "docs/readme.txt"))
			So(err, ShouldBeNil)
			So(restored, ShouldResemble, original)
		})

		Convey("ExtractMembers should restore only the requested members", func() {
			destDir, err := os.MkdirTemp("", "extract_dest")
			So(err, ShouldBeNil)
			defer os.RemoveAll(destDir)

			restored, missing, err := ExtractMembers(archivePath, destDir, []string{"data.bin", "absent.txt"})
			So(err, ShouldBeNil)
			So(restored, ShouldResemble, []string{"data.bin"})
			So(missing, ShouldResemble, []string{"absent.txt"})

			_, err = os.Stat(filepath.Join(destDir, "data.bin"))
			So(err, ShouldBeNil)
			_, err = os.Stat(filepath.Join(destDir, "docs/readme.txt"))
			So(os.IsNotExist(err), ShouldBeTrue)
		})
	})
}
