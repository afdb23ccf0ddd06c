// Package signature reduces captured images to fixed-size grayscale
// fingerprints that can be compared with one another.
package signature

import (
	"crypto/sha1"
	"encoding/hex"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/example/face-unlock/internal/imageprocessor"
)

const (
	// Size is the edge length, in pixels, of the normalized image.
	Size = 64
	// BucketCount is the number of histogram buckets in a Fingerprint.
	BucketCount = 16

	bucketWidth = 256 / BucketCount
)

// Fingerprint is the comparable summary of one normalized image.
type Fingerprint struct {
	Buckets     [BucketCount]int `json:"bucket_counts"`
	ContentHash string           `json:"content_hash"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
}

// PixelCount returns the sum of all bucket counts.
func (f Fingerprint) PixelCount() int {
	total := 0
	for _, n := range f.Buckets {
		total += n
	}
	return total
}

// Extractor produces fingerprints from raw encoded images.
type Extractor struct {
	scaler draw.Scaler
}

// NewExtractor returns an Extractor using bilinear resampling.
func NewExtractor() *Extractor {
	return &Extractor{scaler: draw.BiLinear}
}

// Extract decodes raw and fingerprints it. Undecodable input yields an error
// wrapping imageprocessor.ErrInvalidImage.
func (e *Extractor) Extract(raw []byte) (Fingerprint, error) {
	img, _, err := imageprocessor.Decode(raw)
	if err != nil {
		return Fingerprint{}, err
	}
	return e.FromImage(img), nil
}

// FromImage fingerprints an already decoded image.
func (e *Extractor) FromImage(img image.Image) Fingerprint {
	gray := e.normalize(img)

	var fp Fingerprint
	for _, v := range gray.Pix {
		fp.Buckets[int(v)/bucketWidth]++
	}
	sum := sha1.Sum(gray.Pix)
	fp.ContentHash = hex.EncodeToString(sum[:])
	fp.Width = Size
	fp.Height = Size
	return fp
}

// normalize resizes img to Size x Size and converts it to 8-bit luma.
func (e *Extractor) normalize(img image.Image) *image.Gray {
	scaled := image.NewRGBA(image.Rect(0, 0, Size, Size))
	e.scaler.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)

	gray := image.NewGray(scaled.Bounds())
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			gray.SetGray(x, y, color.GrayModel.Convert(scaled.RGBAAt(x, y)).(color.Gray))
		}
	}
	return gray
}
