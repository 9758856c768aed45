package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/semmidev/arkiva/internal/domain"
)

// Writer turns an ordered entry stream into size-bounded tar.gz files named
// {type}_part_<n>_<stamp>.tar.gz. The size budget counts raw file bytes
// before compression; the current archive rolls over when the next entry
// would push it past the limit. A single entry bigger than the whole limit
// is written alone to its own archive, with the limit waived for that one.
type Writer struct {
	dir      string
	runType  domain.RunType
	maxBytes int64
	stamp    string

	file     *os.File
	gzw      *gzip.Writer
	tw       *tar.Writer
	rawBytes int64

	current  *domain.ArchiveInfo
	archives []domain.ArchiveInfo
	closed   bool
}

func NewWriter(dir string, runType domain.RunType, maxBytes int64, stamp string) *Writer {
	return &Writer{
		dir:      dir,
		runType:  runType,
		maxBytes: maxBytes,
		stamp:    stamp,
	}
}

// Add appends one entry to the stream. A *domain.SourceReadError means the
// entry vanished or became unreadable between selection and archiving and
// may be skipped; a *domain.CapacityError means the destination failed and
// the run must abort.
func (w *Writer) Add(entry domain.Entry) error {
	if w.current != nil && len(w.current.Entries) > 0 && w.rawBytes+entry.Size > w.maxBytes {
		if err := w.closeCurrent(); err != nil {
			return err
		}
	}
	if w.current == nil {
		if err := w.openNext(); err != nil {
			return err
		}
	}

	src, err := os.Open(entry.AbsPath)
	if err != nil {
		return &domain.SourceReadError{Path: entry.AbsPath, Err: err}
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return &domain.SourceReadError{Path: entry.AbsPath, Err: err}
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return &domain.SourceReadError{Path: entry.AbsPath, Err: err}
	}
	hdr.Name = entry.RelPath

	if err := w.tw.WriteHeader(hdr); err != nil {
		return &domain.CapacityError{Archive: w.current.Name, Err: err}
	}
	if _, err := io.Copy(w.tw, src); err != nil {
		return &domain.CapacityError{Archive: w.current.Name, Err: err}
	}

	w.rawBytes += entry.Size
	w.current.Entries = append(w.current.Entries, entry)
	return nil
}

// Close flushes the in-progress archive and returns every archive written,
// in order, with its entry list. An archive is only reported once its gzip
// trailer is on disk.
func (w *Writer) Close() ([]domain.ArchiveInfo, error) {
	if w.closed {
		return w.archives, nil
	}
	w.closed = true
	if w.current != nil {
		if err := w.closeCurrent(); err != nil {
			return w.archives, err
		}
	}
	return w.archives, nil
}

func (w *Writer) openNext() error {
	ordinal := len(w.archives) + 1
	if w.current != nil {
		ordinal = w.current.Ordinal + 1
	}
	name := fmt.Sprintf("%s_part_%d_%s.tar.gz", w.runType, ordinal, w.stamp)
	path := filepath.Join(w.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return &domain.CapacityError{Archive: name, Err: err}
	}

	w.file = file
	w.gzw = gzip.NewWriter(file)
	w.tw = tar.NewWriter(w.gzw)
	w.rawBytes = 0
	w.current = &domain.ArchiveInfo{Name: name, Path: path, Ordinal: ordinal}
	return nil
}

func (w *Writer) closeCurrent() error {
	name := w.current.Name
	if err := w.tw.Close(); err != nil {
		return &domain.CapacityError{Archive: name, Err: err}
	}
	if err := w.gzw.Close(); err != nil {
		return &domain.CapacityError{Archive: name, Err: err}
	}
	if err := w.file.Close(); err != nil {
		return &domain.CapacityError{Archive: name, Err: err}
	}

	info, err := os.Stat(w.current.Path)
	if err != nil {
		return fmt.Errorf("failed to stat finished archive: %w", err)
	}
	w.current.Bytes = info.Size()

	w.archives = append(w.archives, *w.current)
	w.current = nil
	w.file, w.gzw, w.tw = nil, nil, nil
	return nil
}
