package main

import (
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFormat(t *testing.T) {
	cases := map[string]string{"": PNG, "png": PNG, ".PNG": PNG, "jpg": JPG, "jpeg": JPG, "JPEG": JPG}
	for in, want := range cases {
		got, err := normalizeFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"tiff", "webp", "gif"} {
		_, err := normalizeFormat(in)
		assert.True(t, errors.Is(err, ErrConfig), in)
	}
}

func TestEncodeDecodeTile(t *testing.T) {
	src := solidTile(TileSize, blue)
	for _, format := range []string{PNG, JPG} {
		data, err := EncodeTile(src, format)
		require.NoError(t, err, format)
		img, err := DecodeTile(data)
		require.NoError(t, err, format)
		assert.Equal(t, image.Rect(0, 0, TileSize, TileSize), img.Bounds(), format)
		assert.Greater(t, rgbaAt(img, 50, 50).B, uint8(240), format)
	}

	_, err := EncodeTile(src, "bmp")
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = DecodeTile([]byte("garbage"))
	assert.Error(t, err)
}
