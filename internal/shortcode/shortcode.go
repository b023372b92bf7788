// Package shortcode generates candidate short codes for tracked redirects.
package shortcode

import (
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultLength is the length of generated short codes when none is configured.
const DefaultLength = 8

// ErrInvalidLength is returned when a generator is configured with a non-positive length.
var ErrInvalidLength = errors.New("invalid short code length")

// Generator produces fixed-length codes over the URL-safe alphabet A-Za-z0-9_-
// using a cryptographically strong random source. It does not check uniqueness.
type Generator struct {
	length int
}

// New returns a Generator producing codes of the given length.
func New(length int) (*Generator, error) {
	const op = "shortcode.New"

	if length <= 0 {
		return nil, fmt.Errorf("%s: %d: %w", op, length, ErrInvalidLength)
	}

	return &Generator{length: length}, nil
}

// Generate returns a new candidate code.
func (g *Generator) Generate() (string, error) {
	const op = "shortcode.Generator.Generate"

	code, err := gonanoid.New(g.length)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate short code: %w", op, err)
	}

	return code, nil
}
