package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/semmidev/arkiva/internal/domain"
)

// Suffix marks an encrypted archive on disk. Manifests always reference the
// plain tarball name; restore resolves either form.
const Suffix = ".enc"

// Container layout: magic | 16-byte salt | 12-byte nonce | AES-256-GCM
// ciphertext. The magic header is what lets Decrypt distinguish "not
// encrypted" from "wrong passphrase".
var magic = []byte("ARKV1")

const (
	saltLen    = 16
	nonceLen   = 12
	keyLen     = 32
	pbkdf2Iter = 120_000
)

// Cipher performs passphrase-based symmetric encryption of whole archive
// files.
type Cipher struct {
	passphrase []byte
}

// New fails eagerly on an empty passphrase so a misconfigured job dies
// before any archive is written.
func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, &domain.EncryptionError{Op: "init", Err: errors.New("passphrase is empty")}
	}
	return &Cipher{passphrase: []byte(passphrase)}, nil
}

// Encrypt wraps path into path+Suffix and removes the plaintext original.
func (c *Cipher) Encrypt(path string) (string, error) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return "", &domain.EncryptionError{Op: "encrypt", Err: err}
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", &domain.EncryptionError{Op: "encrypt", Err: err}
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", &domain.EncryptionError{Op: "encrypt", Err: err}
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, len(magic)+saltLen+nonceLen+len(plaintext)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)

	encPath := path + Suffix
	if err := os.WriteFile(encPath, out, 0644); err != nil {
		return "", &domain.EncryptionError{Op: "encrypt", Err: err}
	}
	if err := os.Remove(path); err != nil {
		return "", &domain.EncryptionError{Op: "encrypt", Err: fmt.Errorf("failed to remove plaintext: %w", err)}
	}
	return encPath, nil
}

// Decrypt unwraps path into destDir and returns the plaintext file path.
// A file without the container header yields domain.ErrNotEncrypted; a
// failed open (wrong passphrase or corrupt stream) yields an
// EncryptionError.
func (c *Cipher) Decrypt(path string, destDir string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &domain.EncryptionError{Op: "decrypt", Err: err}
	}
	if !bytes.HasPrefix(data, magic) {
		return "", domain.ErrNotEncrypted
	}
	body := data[len(magic):]
	if len(body) < saltLen+nonceLen {
		return "", &domain.EncryptionError{Op: "decrypt", Err: errors.New("truncated container")}
	}
	salt := body[:saltLen]
	nonce := body[saltLen : saltLen+nonceLen]
	ciphertext := body[saltLen+nonceLen:]

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &domain.EncryptionError{Op: "decrypt", Err: fmt.Errorf("wrong passphrase or corrupt archive: %w", err)}
	}

	outPath := filepath.Join(destDir, strings.TrimSuffix(filepath.Base(path), Suffix))
	if err := os.WriteFile(outPath, plaintext, 0644); err != nil {
		return "", &domain.EncryptionError{Op: "decrypt", Err: err}
	}
	return outPath, nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.passphrase, salt, pbkdf2Iter, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &domain.EncryptionError{Op: "keygen", Err: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &domain.EncryptionError{Op: "keygen", Err: err}
	}
	return gcm, nil
}

// IsEncrypted reports whether the on-disk file carries the container header.
func IsEncrypted(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, len(magic))
	if _, err := f.Read(head); err != nil {
		return false
	}
	return bytes.Equal(head, magic)
}
