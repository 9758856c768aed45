package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ExtractAll unpacks every member of a tar.gz archive into destDir,
// restoring file modes and modification times. Members already on disk are
// overwritten, which is what lets later differential archives win over
// earlier full ones.
func ExtractAll(archivePath, destDir string) (int, error) {
	count := 0
	err := walkMembers(archivePath, func(hdr *tar.Header, r io.Reader) error {
		ok, err := writeMember(hdr, r, destDir)
		if err != nil {
			return err
		}
		if ok {
			count++
		}
		return nil
	})
	return count, err
}

// ExtractMembers unpacks only the named members from the archive and reports
// which of them were not present. Sibling members are never touched.
func ExtractMembers(archivePath, destDir string, members []string) (restored []string, missing []string, err error) {
	wanted := make(map[string]bool, len(members))
	for _, m := range members {
		wanted[m] = true
	}

	err = walkMembers(archivePath, func(hdr *tar.Header, r io.Reader) error {
		if !wanted[hdr.Name] {
			return nil
		}
		ok, err := writeMember(hdr, r, destDir)
		if err != nil {
			return err
		}
		if ok {
			restored = append(restored, hdr.Name)
			delete(wanted, hdr.Name)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for m := range wanted {
		missing = append(missing, m)
	}
	return restored, missing, nil
}

func walkMembers(archivePath string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read gzip stream: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive member: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// writeMember materializes one regular-file member under destDir. Member
// names escaping the destination are rejected.
func writeMember(hdr *tar.Header, r io.Reader, destDir string) (bool, error) {
	if hdr.Typeflag != tar.TypeReg {
		return false, nil
	}
	if filepath.IsAbs(hdr.Name) {
		return false, fmt.Errorf("refusing unsafe archive member name: %s", hdr.Name)
	}
	for _, seg := range strings.Split(hdr.Name, "/") {
		if seg == ".." {
			return false, fmt.Errorf("refusing unsafe archive member name: %s", hdr.Name)
		}
	}
	name := filepath.FromSlash(hdr.Name)

	target := filepath.Join(destDir, name)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return false, fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("failed to close %s: %w", target, err)
	}

	_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	return true, nil
}
