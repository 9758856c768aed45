package domain

import (
	"errors"
	"fmt"
)

// ErrLockBusy means another run holds the job lock. Callers treat it as
// "skip this trigger", never as a failure of the job itself.
var ErrLockBusy = errors.New("another run is in progress for this job")

// ErrNotEncrypted is returned by the decryption layer when the input file does
// not carry the encrypted-container header, so callers can tell "wrong
// passphrase" apart from "file was never encrypted".
var ErrNotEncrypted = errors.New("file is not an encrypted archive")

// SourceReadError records a single unreadable source entry. It is accumulated
// on the run result and never aborts the run.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("cannot read source entry %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// EncryptionError covers a missing passphrase (pre-flight) and cipher
// failures (mid-run or restore-time). Both abort the operation.
type EncryptionError struct {
	Op  string
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption %s failed: %v", e.Op, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// CapacityError is a structural failure writing archive data, typically a
// full destination disk. The set is left with status error and rotation is
// not run.
type CapacityError struct {
	Archive string
	Err     error
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("cannot write archive %s: %v", e.Archive, e.Err)
}

func (e *CapacityError) Unwrap() error { return e.Err }

// ManifestNotFoundError names the exact missing manifest at restore time.
type ManifestNotFoundError struct {
	JobName string
	SetID   string
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found for job %q set %s", e.JobName, e.SetID)
}

// ArchiveNotFoundError names the exact missing archive at restore time. The
// archive was looked up both with and without the encryption suffix.
type ArchiveNotFoundError struct {
	Archive string
}

func (e *ArchiveNotFoundError) Error() string {
	return fmt.Sprintf("archive not found on disk: %s", e.Archive)
}

// RestoreOrderError means a set holds differential archives but no full
// archives to apply them on top of. Restoring such a set would silently lose
// data, so it is always fatal.
type RestoreOrderError struct {
	SetID string
}

func (e *RestoreOrderError) Error() string {
	return fmt.Sprintf("backup set %s has differential archives but no full archives", e.SetID)
}
