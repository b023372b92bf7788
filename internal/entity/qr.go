// Package entity defines the entities and errors used in the application.
// It includes the QR struct, which represents a tracked redirect code together
// with its destination and scan statistics, and the errors shared by all layers.
package entity

import (
	"cmp"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

var (
	// ErrInvalidURL is returned when the destination URL is malformed or does not use the http or https scheme.
	ErrInvalidURL = errors.New("invalid url")
	// ErrShortCodeExists is returned when attempting to save a QR with a short code that already exists.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrQRNotFound is returned when a QR with the specified short code cannot be found.
	ErrQRNotFound = errors.New("qr not found")
	// ErrStorageCorrupted is returned when persisted state cannot be parsed.
	ErrStorageCorrupted = errors.New("storage corrupted")
)

// QR represents a tracked redirect code.
type QR struct {
	ID             string     // ID is the globally unique identifier of the record.
	OriginalURL    string     // OriginalURL is the destination the short code redirects to.
	ShortCode      string     // ShortCode is the generated code embedded into the tracked URL.
	TrackedURL     string     // TrackedURL is the redirect link encoded into the QR image.
	QRImageDataURL string     // QRImageDataURL is the rendered QR image as a data URL.
	QRStats                   // QRStats contains statistics about the QR.
	Seq            int64      // Seq is the creation sequence number assigned by the store.
	CreatedAt      time.Time  // CreatedAt is the timestamp when the record was created.
	UpdatedAt      *time.Time // UpdatedAt is the timestamp of the last scan, nil until the first one.
}

// QRStats contains statistics related to a tracked QR.
type QRStats struct {
	ScanCount int64 // ScanCount is the number of times the short code has been resolved.
}

// Clone returns a deep copy of the QR.
func (qr *QR) Clone() *QR {
	c := *qr
	if qr.UpdatedAt != nil {
		t := *qr.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

// NormalizeURL trims the raw destination and checks that it is an absolute
// http or https URL with a host.
func NormalizeURL(raw string) (string, error) {
	const op = "entity.NormalizeURL"

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%s: empty url: %w", op, ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidURL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s: unsupported scheme %q: %w", op, u.Scheme, ErrInvalidURL)
	}

	if u.Host == "" {
		return "", fmt.Errorf("%s: missing host: %w", op, ErrInvalidURL)
	}

	return raw, nil
}

// SortByRecency orders qrs by creation time descending. QRs created at the same
// instant are ordered by sequence number, the later insertion first.
func SortByRecency(qrs []*QR) {
	slices.SortStableFunc(qrs, func(a, b *QR) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
}
