package profile

import (
	"bytes"
	"errors"
	"image"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/example/face-unlock/internal/imageprocessor"
)

const jpegQuality = 90

// ImageDir stores registration captures as <dir>/<name>.jpg.
type ImageDir struct {
	dir string
}

// NewImageDir returns an ImageDir rooted at dir.
func NewImageDir(dir string) *ImageDir {
	return &ImageDir{dir: dir}
}

// PathFor returns the file used for name. The name must already have passed
// NormalizeName.
func (d *ImageDir) PathFor(name string) string {
	return filepath.Join(d.dir, name+".jpg")
}

// Stage encodes img to a temporary file next to the final one and returns
// both paths. Nothing a profile refers to changes until Commit. Staged names
// start with a dot, which NormalizeName never allows.
func (d *ImageDir) Stage(name string, img image.Image) (staged, final string, err error) {
	final = d.PathFor(name)

	var buf bytes.Buffer
	if err := imageprocessor.EncodeJPEG(&buf, img, jpegQuality); err != nil {
		return "", "", &StorageError{Op: "encode image", Path: final, Err: err}
	}
	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return "", "", &StorageError{Op: "write image", Path: final, Err: err}
	}
	tmp, err := os.CreateTemp(d.dir, "."+name+".jpg.*")
	if err != nil {
		return "", "", &StorageError{Op: "write image", Path: final, Err: err}
	}
	staged = tmp.Name()
	_, err = tmp.Write(buf.Bytes())
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(staged)
		return "", "", &StorageError{Op: "write image", Path: final, Err: err}
	}
	return staged, final, nil
}

// Commit moves a staged capture over its final path.
func (d *ImageDir) Commit(staged, final string) error {
	if err := os.Rename(staged, final); err != nil {
		return &StorageError{Op: "commit image", Path: final, Err: err}
	}
	return nil
}

// Discard deletes a staged capture. Missing files are ignored.
func (d *ImageDir) Discard(staged string) error {
	if err := os.Remove(staged); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "discard image", Path: staged, Err: err}
	}
	return nil
}
