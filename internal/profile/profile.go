// Package profile holds registered identities and keeps them in sync with
// durable storage.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/face-unlock/internal/signature"
)

// MaxNameLength bounds identity names.
const MaxNameLength = 64

// ErrInvalidName is returned for names that cannot be used as a storage label.
var ErrInvalidName = errors.New("invalid profile name")

// Profile is a registered identity.
type Profile struct {
	Name        string                `json:"name"`
	Fingerprint signature.Fingerprint `json:"fingerprint"`
	ImagePath   string                `json:"image_path"`
	CreatedAt   time.Time             `json:"created_at"`
}

// StorageError reports a failed read or write of durable profile storage.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("profile storage %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("profile storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NormalizeName trims name and checks that it is safe to use as a file label.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	case len(name) > MaxNameLength:
		return "", fmt.Errorf("%w: name longer than %d characters", ErrInvalidName, MaxNameLength)
	case strings.HasPrefix(name, "."):
		return "", fmt.Errorf("%w: name must not start with a dot", ErrInvalidName)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return "", fmt.Errorf("%w: character %q not allowed", ErrInvalidName, r)
		}
	}
	return name, nil
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '_', r == '-', r == '.':
		return true
	}
	return false
}
