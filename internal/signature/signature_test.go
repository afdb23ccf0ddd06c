package signature

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/example/face-unlock/internal/imageprocessor"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestExtractBucketInvariants(t *testing.T) {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, gradient(320, 240), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	inputs := map[string][]byte{
		"small png":     encodePNG(t, gradient(10, 7)),
		"large png":     encodePNG(t, gradient(640, 480)),
		"exact size":    encodePNG(t, gradient(Size, Size)),
		"jpeg":          jpg.Bytes(),
		"solid colored": encodePNG(t, solid(33, 90, color.RGBA{R: 200, G: 40, B: 90, A: 255})),
	}

	ex := NewExtractor()
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			fp, err := ex.Extract(raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(fp.Buckets) != BucketCount {
				t.Fatalf("expected %d buckets, got %d", BucketCount, len(fp.Buckets))
			}
			if got := fp.PixelCount(); got != Size*Size {
				t.Fatalf("expected bucket sum %d, got %d", Size*Size, got)
			}
			for i, n := range fp.Buckets {
				if n < 0 {
					t.Fatalf("bucket %d is negative: %d", i, n)
				}
			}
			if fp.Width != Size || fp.Height != Size {
				t.Fatalf("unexpected dimensions %dx%d", fp.Width, fp.Height)
			}
			if len(fp.ContentHash) != 40 {
				t.Fatalf("unexpected hash length %d", len(fp.ContentHash))
			}
		})
	}
}

func TestExtractSolidImagesFillOneBucket(t *testing.T) {
	ex := NewExtractor()

	black, err := ex.Extract(encodePNG(t, solid(50, 50, color.Black)))
	if err != nil {
		t.Fatalf("black: %v", err)
	}
	if black.Buckets[0] != Size*Size {
		t.Fatalf("expected all pixels in bucket 0, got %v", black.Buckets)
	}

	white, err := ex.Extract(encodePNG(t, solid(50, 50, color.White)))
	if err != nil {
		t.Fatalf("white: %v", err)
	}
	if white.Buckets[BucketCount-1] != Size*Size {
		t.Fatalf("expected all pixels in last bucket, got %v", white.Buckets)
	}
	if black.ContentHash == white.ContentHash {
		t.Fatal("expected different content hashes")
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	raw := encodePNG(t, gradient(120, 80))
	ex := NewExtractor()

	a, err := ex.Extract(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ex.Extract(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("fingerprints differ: %+v vs %+v", a, b)
	}
}

func TestExtractRejectsUndecodableInput(t *testing.T) {
	_, err := NewExtractor().Extract([]byte("definitely not an image"))
	if !errors.Is(err, imageprocessor.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}
