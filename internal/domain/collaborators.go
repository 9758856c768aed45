package domain

import "context"

// SyncTarget mirrors a completed backup set directory to a remote prefix.
// The engine treats targets as opaque: failures are surfaced as warnings on
// the run, never as run failures.
type SyncTarget interface {
	Name() string
	SyncSet(ctx context.Context, localDir string, remotePrefix string) error
	DeletePrefix(ctx context.Context, remotePrefix string) error
}

// Encryptor wraps and unwraps a finished archive file in place.
type Encryptor interface {
	Encrypt(path string) (string, error)
	Decrypt(path string, destDir string) (string, error)
}

// Notifier reports a finished run to an external channel.
type Notifier interface {
	NotifyRun(ctx context.Context, result *BackupResult) error
}
