// Package secrets provides an opaque named-blob store for credentials,
// durable across process restarts. The platform keychain is an external
// concern; this file-backed implementation is its local stand-in.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Well-known entry names used by the session manager.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyPinVerifier  = "pinVerifier"
)

// ErrNotFound is returned when a named secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Store is an opaque get/set/delete of named byte blobs.
type Store interface {
	Get(name string) ([]byte, error)
	Set(name string, value []byte) error
	Delete(name string) error
}

// FileStore keeps one 0600 file per secret under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the secrets directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create secrets dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *FileStore) Get(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FileStore) Set(name string, value []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	// Write-then-rename so a crash never leaves a half-written secret.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("write secret %s: %w", name, err)
	}
	return os.Rename(tmp, p)
}

func (s *FileStore) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
