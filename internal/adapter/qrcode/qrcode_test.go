package qrcode

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qr "github.com/skip2/go-qrcode"
)

func TestParseRecoveryLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    qr.RecoveryLevel
		wantErr bool
	}{
		{name: "", want: qr.Medium},
		{name: "low", want: qr.Low},
		{name: "Medium", want: qr.Medium},
		{name: "high", want: qr.High},
		{name: "HIGHEST", want: qr.Highest},
		{name: "extreme", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecoveryLevel(tt.name)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRenderer(t *testing.T) {
	t.Run("invalid size", func(t *testing.T) {
		r, err := NewRenderer(0, qr.Medium)

		assert.ErrorIs(t, err, ErrInvalidSize)
		assert.Nil(t, r)
	})

	t.Run("negative margin", func(t *testing.T) {
		r, err := NewRenderer(DefaultSize, qr.Medium, WithMargin(-1))

		assert.ErrorIs(t, err, ErrInvalidMargin)
		assert.Nil(t, r)
	})
}

func decodeDataURL(t *testing.T, dataURL string) image.Image {
	t.Helper()

	require.True(t, strings.HasPrefix(dataURL, dataURLPrefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, dataURLPrefix))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	return img
}

func isDark(img image.Image, x, y int) bool {
	g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
	return g.Y < 128
}

func TestRenderer_Render(t *testing.T) {
	const content = "http://localhost:5000/r/abcd1234"

	t.Run("size", func(t *testing.T) {
		r, err := NewRenderer(DefaultSize, qr.Medium)
		require.NoError(t, err)

		dataURL, err := r.Render(content)
		require.NoError(t, err)

		img := decodeDataURL(t, dataURL)

		assert.Equal(t, DefaultSize, img.Bounds().Dx())
		assert.Equal(t, DefaultSize, img.Bounds().Dy())
	})

	t.Run("one module quiet zone", func(t *testing.T) {
		r, err := NewRenderer(DefaultSize, qr.Medium)
		require.NoError(t, err)

		dataURL, err := r.Render(content)
		require.NoError(t, err)

		img := decodeDataURL(t, dataURL)

		q, err := qr.New(content, qr.Medium)
		require.NoError(t, err)
		q.DisableBorder = true

		scale := float64(DefaultSize) / float64(len(q.Bitmap())+2*DefaultMargin)
		inside := int(math.Ceil(scale))

		// Margin corners are light, the finder patterns start right after them.
		assert.False(t, isDark(img, 0, 0))
		assert.False(t, isDark(img, int(scale)-1, int(scale)-1))
		assert.False(t, isDark(img, DefaultSize-1, DefaultSize-1))
		assert.True(t, isDark(img, inside, inside))
		assert.True(t, isDark(img, DefaultSize-1-inside, inside))
		assert.True(t, isDark(img, inside, DefaultSize-1-inside))

		// The library's default four-module border leaves the same pixel light.
		png4, err := qr.Encode(content, qr.Medium, DefaultSize)
		require.NoError(t, err)
		img4, err := png.Decode(bytes.NewReader(png4))
		require.NoError(t, err)
		assert.False(t, isDark(img4, inside, inside))
	})

	t.Run("size too small", func(t *testing.T) {
		r, err := NewRenderer(10, qr.Medium)
		require.NoError(t, err)

		dataURL, err := r.Render(content)

		assert.ErrorIs(t, err, ErrSizeTooSmall)
		assert.Empty(t, dataURL)
	})
}
