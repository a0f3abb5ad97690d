package compress_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framehub/framehub/core/internal/compress"
)

// encodeTestPNG returns a noisy PNG that JPEG re-encoding can shrink.
func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 7 % 256),
				G: uint8(y * 13 % 256),
				B: uint8((x + y) * 31 % 256),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressShrinksImage(t *testing.T) {
	original := encodeTestPNG(t, 200, 100)

	result, err := compress.Compress(original, "image/png", compress.Options{
		Quality: 60,
	})

	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", result.MimeType)
	assert.Less(t, result.CompressedSize, int64(len(original)))
	assert.Less(t, result.Ratio, 1.0)
	assert.Equal(t, int64(len(result.Data)), result.CompressedSize)
}

func TestCompressDownscalesToMaxDimension(t *testing.T) {
	original := encodeTestPNG(t, 400, 200)

	result, err := compress.Compress(original, "image/png", compress.Options{
		Quality:      80,
		MaxDimension: 100,
	})

	require.NoError(t, err)

	config, _, err := image.DecodeConfig(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, config.Width)
	assert.Equal(t, 50, config.Height)
}

func TestCompressTallImage(t *testing.T) {
	original := encodeTestPNG(t, 100, 400)

	result, err := compress.Compress(original, "image/png", compress.Options{
		Quality:      80,
		MaxDimension: 200,
	})

	require.NoError(t, err)

	config, _, err := image.DecodeConfig(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, 50, config.Width)
	assert.Equal(t, 200, config.Height)
}

func TestCompressCorruptImage(t *testing.T) {
	_, err := compress.Compress(
		[]byte("not an image at all"),
		"image/jpeg",
		compress.Options{Quality: 80},
	)

	assert.ErrorContains(t, err, "failed to decode")
}

func TestCompressKeepsOriginalWhenLarger(t *testing.T) {
	// A tiny image's JPEG encoding has fixed overhead that exceeds the
	// PNG size, so the original must be kept.
	original := encodeTestPNG(t, 2, 2)

	result, err := compress.Compress(original, "image/png", compress.Options{
		Quality: 100,
	})

	require.NoError(t, err)
	assert.Equal(t, original, result.Data)
	assert.Equal(t, "image/png", result.MimeType)
	assert.Equal(t, 1.0, result.Ratio)
}
