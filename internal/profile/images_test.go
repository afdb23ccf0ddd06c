package profile

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestImageDirStageAndCommit(t *testing.T) {
	dir := NewImageDir(filepath.Join(t.TempDir(), "known_faces"))

	staged, final, err := dir.Stage("alice", solid(color.White))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if final != dir.PathFor("alice") {
		t.Fatalf("unexpected final path %q", final)
	}
	if _, err := os.Stat(final); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("final file must not exist before commit, stat err %v", err)
	}

	if err := dir.Commit(staged, final); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := os.Stat(final); err != nil {
		t.Fatalf("expected final file after commit: %v", err)
	}
	if _, err := os.Stat(staged); !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("staged file must be gone after commit")
	}
}

func TestImageDirDiscardKeepsPublishedCapture(t *testing.T) {
	dir := NewImageDir(t.TempDir())

	staged, final, err := dir.Stage("alice", solid(color.White))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := dir.Commit(staged, final); err != nil {
		t.Fatalf("commit: %v", err)
	}
	published, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	staged, _, err = dir.Stage("alice", solid(color.Black))
	if err != nil {
		t.Fatalf("second stage: %v", err)
	}
	if err := dir.Discard(staged); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if err := dir.Discard(staged); err != nil {
		t.Fatalf("discarding twice must be harmless: %v", err)
	}

	after, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(after, published) {
		t.Fatal("a discarded capture must not replace the published one")
	}
}
