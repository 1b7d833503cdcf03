package helper

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const (
	MaxImageDimension   = 1600
	MinImageDimension   = 32
	TargetImageSizeKB   = 600
	TargetImageSize     = TargetImageSizeKB * 1024
	MaxDecompressedSize = 50 * 1024 * 1024
)

// NormalizeImage validates and re-encodes image bytes for the channel:
// decode, bound the decompressed size, fit into the maximum dimension and
// compress to WebP, stepping the quality down until the payload meets the
// size target.
func NormalizeImage(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Reject decompression bombs before doing any work on the pixels.
	if int64(width)*int64(height)*4 > MaxDecompressedSize {
		return nil, fmt.Errorf("image too large when decompressed (%dx%d)", width, height)
	}

	if width < MinImageDimension || height < MinImageDimension {
		return nil, fmt.Errorf("image too small: minimum %dx%d pixels", MinImageDimension, MinImageDimension)
	}

	if width > MaxImageDimension || height > MaxImageDimension {
		img = imaging.Fit(img, MaxImageDimension, MaxImageDimension, imaging.Lanczos)
	}

	out, err := encodeWebPWithSizeLimit(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s image: %w", format, err)
	}
	return out, nil
}

// encodeWebPWithSizeLimit encodes to WebP, reducing quality in steps
// until the result fits the size target or quality bottoms out.
func encodeWebPWithSizeLimit(img image.Image) ([]byte, error) {
	for quality := float32(90); quality >= 40; quality -= 10 {
		var buf bytes.Buffer
		if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
			return nil, err
		}
		if buf.Len() <= TargetImageSize || quality == 40 {
			return buf.Bytes(), nil
		}
	}
	// Unreachable: the loop always returns at quality 40.
	return nil, fmt.Errorf("unable to compress image")
}
