package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalTarget(t *testing.T) {
	Convey("Given a local mirror target", t, func() {
		mirrorDir, err := os.MkdirTemp("", "mirror_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(mirrorDir)

		setDir, err := os.MkdirTemp("", "set_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(setDir)

		target, err := NewLocal(mirrorDir)
		So(err, ShouldBeNil)
		So(target.Name(), ShouldEqual, "local")

		ctx := context.Background()
		prefix := "testhost/docs/backup_set_20260101_020000"

		Convey("SyncSet", func() {
			So(os.WriteFile(filepath.Join(setDir, "full_part_1_20260101_020000.tar.gz"), []byte("archive"), 0644), ShouldBeNil)
			So(os.WriteFile(filepath.Join(setDir, "manifest_20260101_020000.json"), []byte("{}"), 0644), ShouldBeNil)
			So(os.Mkdir(filepath.Join(setDir, "subdir"), 0755), ShouldBeNil)

			err := target.SyncSet(ctx, setDir, prefix)

			Convey("It should mirror every file under the prefix", func() {
				So(err, ShouldBeNil)

				mirrored := filepath.Join(mirrorDir, filepath.FromSlash(prefix))
				content, err := os.ReadFile(filepath.Join(mirrored, "full_part_1_20260101_020000.tar.gz"))
				So(err, ShouldBeNil)
				So(string(content), ShouldEqual, "archive")

				_, err = os.Stat(filepath.Join(mirrored, "manifest_20260101_020000.json"))
				So(err, ShouldBeNil)
				_, err = os.Stat(filepath.Join(mirrored, "subdir"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("DeletePrefix", func() {
			So(os.WriteFile(filepath.Join(setDir, "full_part_1_20260101_020000.tar.gz"), []byte("archive"), 0644), ShouldBeNil)
			So(target.SyncSet(ctx, setDir, prefix), ShouldBeNil)

			err := target.DeletePrefix(ctx, prefix)

			Convey("It should remove the mirrored set", func() {
				So(err, ShouldBeNil)
				_, err := os.Stat(filepath.Join(mirrorDir, filepath.FromSlash(prefix)))
				So(os.IsNotExist(err), ShouldBeTrue)
			})

			Convey("Deleting an absent prefix should be a no-op", func() {
				So(target.DeletePrefix(ctx, "testhost/docs/backup_set_19990101_000000"), ShouldBeNil)
			})
		})
	})
}
