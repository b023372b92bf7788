// Package qrcode renders QR codes as PNG data URLs.
package qrcode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	qr "github.com/skip2/go-qrcode"
)

const (
	DefaultSize   = 240
	DefaultMargin = 1

	dataURLPrefix = "data:image/png;base64,"
)

var (
	ErrInvalidSize   = errors.New("qr code size must be positive")
	ErrInvalidMargin = errors.New("qr code margin must not be negative")
	ErrSizeTooSmall  = errors.New("qr code size is smaller than the symbol")
)

// ParseRecoveryLevel maps a configured level name onto the error correction
// level of the encoder. An empty name selects medium.
func ParseRecoveryLevel(name string) (qr.RecoveryLevel, error) {
	const op = "adapter.qrcode.ParseRecoveryLevel"

	switch strings.ToLower(name) {
	case "low":
		return qr.Low, nil
	case "", "medium":
		return qr.Medium, nil
	case "high":
		return qr.High, nil
	case "highest":
		return qr.Highest, nil
	default:
		return 0, fmt.Errorf("%s: unknown recovery level %q", op, name)
	}
}

type Option func(*Renderer)

// WithMargin sets the quiet zone around the symbol, in modules.
func WithMargin(modules int) Option {
	return func(r *Renderer) {
		r.margin = modules
	}
}

type Renderer struct {
	size   int
	margin int
	level  qr.RecoveryLevel
}

func NewRenderer(size int, level qr.RecoveryLevel, opts ...Option) (*Renderer, error) {
	const op = "adapter.qrcode.NewRenderer"

	r := &Renderer{
		size:   size,
		margin: DefaultMargin,
		level:  level,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.size <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSize)
	}
	if r.margin < 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidMargin)
	}

	return r, nil
}

// Render encodes content into a size x size PNG and returns it as a data URL.
// The symbol is stretched to fill the image apart from the margin.
func (r *Renderer) Render(content string) (string, error) {
	const op = "adapter.qrcode.Renderer.Render"

	q, err := qr.New(content, r.level)
	if err != nil {
		return "", fmt.Errorf("%s: failed to encode qr code: %w", op, err)
	}
	q.DisableBorder = true

	img, err := r.draw(q.Bitmap())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("%s: failed to encode png: %w", op, err)
	}

	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (r *Renderer) draw(bitmap [][]bool) (*image.Paletted, error) {
	n := len(bitmap)
	modules := n + 2*r.margin
	if r.size < modules {
		return nil, fmt.Errorf("%w: %d px for %d modules", ErrSizeTooSmall, r.size, modules)
	}

	scale := float64(r.size) / float64(modules)
	img := image.NewPaletted(image.Rect(0, 0, r.size, r.size), color.Palette{color.White, color.Black})

	for y := 0; y < r.size; y++ {
		my := int(float64(y)/scale) - r.margin
		if my < 0 || my >= n {
			continue
		}

		for x := 0; x < r.size; x++ {
			mx := int(float64(x)/scale) - r.margin
			if mx >= 0 && mx < n && bitmap[my][mx] {
				img.SetColorIndex(x, y, 1)
			}
		}
	}

	return img, nil
}
