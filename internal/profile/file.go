package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/example/face-unlock/internal/atomicfile"
)

const fileFormatVersion = 1

type fileDocument struct {
	Version  int       `json:"version"`
	Profiles []Profile `json:"profiles"`
}

// FileBackend persists the whole profile set to one JSON file, rewriting it
// on every change.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file location.
func (b *FileBackend) Path() string { return b.path }

// Load reads the profile file. A missing file is an empty set. A file that
// cannot be decoded is copied to BackupPath first.
func (b *FileBackend) Load(ctx context.Context) ([]Profile, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Path: b.path, Err: err}
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, b.undecodable(data, err)
	}
	if doc.Version != fileFormatVersion {
		return nil, b.undecodable(data, fmt.Errorf("unsupported version %d", doc.Version))
	}
	return doc.Profiles, nil
}

// BackupPath is where an undecodable profile file is copied before the next
// Save can overwrite it.
func (b *FileBackend) BackupPath() string { return b.path + ".bak" }

func (b *FileBackend) undecodable(data []byte, err error) error {
	if backupErr := atomicfile.Write(b.BackupPath(), data); backupErr != nil {
		err = errors.Join(err, fmt.Errorf("backup failed: %w", backupErr))
	}
	return &StorageError{Op: "decode", Path: b.path, Err: err}
}

// Save rewrites the file with all profiles.
func (b *FileBackend) Save(ctx context.Context, all []Profile, _ Profile) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "write", Path: b.path, Err: err}
	}
	data, err := json.MarshalIndent(fileDocument{Version: fileFormatVersion, Profiles: all}, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Path: b.path, Err: err}
	}
	if err := atomicfile.Write(b.path, data); err != nil {
		return &StorageError{Op: "write", Path: b.path, Err: err}
	}
	return nil
}
