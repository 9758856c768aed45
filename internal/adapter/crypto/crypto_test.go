package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/arkiva/internal/domain"
)

func TestCipher(t *testing.T) {
	Convey("Given a cipher with a passphrase", t, func() {
		tempDir, err := os.MkdirTemp("", "crypto_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		cipher, err := New("correct horse battery staple")
		So(err, ShouldBeNil)

		content := []byte("archive bytes that must round-trip exactly")
		plainPath := filepath.Join(tempDir, "full_part_1_20260101_020000.tar.gz")
		So(os.WriteFile(plainPath, content, 0644), ShouldBeNil)

		Convey("When encrypting an archive", func() {
			encPath, err := cipher.Encrypt(plainPath)
			So(err, ShouldBeNil)

			Convey("It should produce the .enc file and drop the plaintext", func() {
				So(encPath, ShouldEqual, plainPath+Suffix)
				So(IsEncrypted(encPath), ShouldBeTrue)
				_, err := os.Stat(plainPath)
				So(os.IsNotExist(err), ShouldBeTrue)
			})

			Convey("Decrypting with the same passphrase should round-trip", func() {
				outDir := filepath.Join(tempDir, "out")
				So(os.MkdirAll(outDir, 0755), ShouldBeNil)

				outPath, err := cipher.Decrypt(encPath, outDir)
				So(err, ShouldBeNil)
				So(filepath.Base(outPath), ShouldEqual, filepath.Base(plainPath))

				restored, err := os.ReadFile(outPath)
				So(err, ShouldBeNil)
				So(restored, ShouldResemble, content)
			})

			Convey("Decrypting with a wrong passphrase should fail as an encryption error", func() {
				wrong, err := New("not the passphrase")
				So(err, ShouldBeNil)

				_, err = wrong.Decrypt(encPath, tempDir)
				So(err, ShouldNotBeNil)
				var encErr *domain.EncryptionError
				So(errors.As(err, &encErr), ShouldBeTrue)
				So(errors.Is(err, domain.ErrNotEncrypted), ShouldBeFalse)
			})
		})

		Convey("When decrypting a file without the container header", func() {
			_, err := cipher.Decrypt(plainPath, tempDir)

			Convey("It should report the file as not encrypted", func() {
				So(errors.Is(err, domain.ErrNotEncrypted), ShouldBeTrue)
			})
		})

		Convey("When the passphrase is empty", func() {
			_, err := New("")

			Convey("Construction should fail eagerly", func() {
				So(err, ShouldNotBeNil)
				var encErr *domain.EncryptionError
				So(errors.As(err, &encErr), ShouldBeTrue)
				So(encErr.Op, ShouldEqual, "init")
			})
		})
	})
}
