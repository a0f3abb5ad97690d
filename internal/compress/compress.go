// Package compress transcodes images to smaller payloads before upload.
package compress

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	// Import image codecs.
	_ "image/gif"
	_ "image/png"
)

// Options controls the quality/size tradeoff.
type Options struct {
	// Quality is the JPEG quality in [1, 100].
	Quality int

	// MaxDimension, if non-zero, downscales the image so that neither
	// side exceeds it. Aspect ratio is preserved.
	MaxDimension int
}

// Result is a transcoded image payload.
type Result struct {
	// Data is the re-encoded image.
	Data []byte

	// MimeType is the mime type of Data.
	MimeType string

	// CompressedSize is len(Data).
	CompressedSize int64

	// Ratio is CompressedSize divided by the original size. A value of
	// 1 means no reduction.
	Ratio float64
}

// Compress re-encodes an image as JPEG at the configured quality,
// downscaling first if it exceeds Options.MaxDimension.
//
// Compression is best-effort: an error here means the input could not
// be decoded, and the caller is expected to upload the original bytes
// instead. If re-encoding does not shrink the payload, the original
// bytes are returned with Ratio 1.
func Compress(data []byte, mimeType string, opts Options) (Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("compress: failed to decode image: %v", err)
	}

	if opts.MaxDimension > 0 {
		img = downscale(img, opts.MaxDimension)
	}

	quality := opts.Quality
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Result{}, fmt.Errorf("compress: failed to encode jpeg: %v", err)
	}

	// Keep the original when re-encoding didn't help. This happens for
	// already well-compressed files, unless we also downscaled.
	if buf.Len() >= len(data) {
		return Result{
			Data:           data,
			MimeType:       mimeType,
			CompressedSize: int64(len(data)),
			Ratio:          1,
		}, nil
	}

	return Result{
		Data:           buf.Bytes(),
		MimeType:       "image/jpeg",
		CompressedSize: int64(buf.Len()),
		Ratio:          float64(buf.Len()) / float64(len(data)),
	}, nil
}

// downscale returns the image scaled so neither side exceeds maxDim.
//
// Returns the input unchanged if it already fits.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width <= maxDim && height <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(width)
	if height > width {
		scale = float64(maxDim) / float64(height)
	}

	scaled := image.NewRGBA(image.Rect(
		0, 0,
		max(1, int(float64(width)*scale)),
		max(1, int(float64(height)*scale)),
	))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
	return scaled
}
