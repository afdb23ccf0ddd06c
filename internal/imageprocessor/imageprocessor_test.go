package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePayloadVariants(t *testing.T) {
	raw := pngBytes(t)
	std := base64.StdEncoding.EncodeToString(raw)

	cases := map[string]string{
		"data url": "data:image/png;base64," + std,
		"std":      std,
		"raw std":  base64.RawStdEncoding.EncodeToString(raw),
		"url":      base64.URLEncoding.EncodeToString(raw),
		"padded":   "  " + std + "\n",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := DecodePayload(payload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, raw) {
				t.Fatal("decoded bytes differ from source")
			}
		})
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	for _, payload := range []string{"", "data:image/png;base64", "data:image/png;base64,", "%%%not base64%%%"} {
		if _, err := DecodePayload(payload); !errors.Is(err, ErrInvalidImage) {
			t.Fatalf("payload %q: expected ErrInvalidImage, got %v", payload, err)
		}
	}
}

func TestDecode(t *testing.T) {
	img, format, err := Decode(pngBytes(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != "png" {
		t.Fatalf("unexpected format %q", format)
	}
	if img.Bounds().Dx() != 8 {
		t.Fatalf("unexpected width %d", img.Bounds().Dx())
	}

	if _, _, err := Decode([]byte("plainly not an image")); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
	if _, _, err := Decode(nil); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage for empty input, got %v", err)
	}
}

// withDimensions rewrites the IHDR chunk of a PNG so it claims w x h pixels.
func withDimensions(t *testing.T, raw []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), raw...)
	if string(out[12:16]) != "IHDR" {
		t.Fatal("expected IHDR as the first chunk")
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecodeRejectsOversizedDimensions(t *testing.T) {
	huge := withDimensions(t, pngBytes(t), 20000, 20000)
	_, _, err := Decode(huge)
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}

	if _, _, err := Decode(withDimensions(t, pngBytes(t), 4097, 4096)); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage just over the cap, got %v", err)
	}
}
