// Package file implements the QR repository on top of a single JSON file.
//
// The whole collection is kept in memory and guarded by one RWMutex. Every write
// builds the next snapshot, replaces the file atomically (temp file, fsync,
// rename) and only then publishes the snapshot, so a failed write leaves both the
// file and the in-memory state at the last committed version.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vadimbarashkov/qr-tracker/internal/entity"
)

const corruptTimeLayout = "20060102T150405.000000000Z"

// qrRecord is the persisted form of a QR.
type qrRecord struct {
	ID             string     `json:"id"`
	OriginalURL    string     `json:"originalUrl"`
	ShortCode      string     `json:"shortCode"`
	TrackedURL     string     `json:"trackedUrl"`
	QRImageDataURL string     `json:"qrImageDataUrl,omitempty"`
	ScanCount      int64      `json:"scanCount"`
	Seq            int64      `json:"seq,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

func toRecord(qr *entity.QR) qrRecord {
	return qrRecord{
		ID:             qr.ID,
		OriginalURL:    qr.OriginalURL,
		ShortCode:      qr.ShortCode,
		TrackedURL:     qr.TrackedURL,
		QRImageDataURL: qr.QRImageDataURL,
		ScanCount:      qr.ScanCount,
		Seq:            qr.Seq,
		CreatedAt:      qr.CreatedAt,
		UpdatedAt:      qr.UpdatedAt,
	}
}

func (r *qrRecord) toEntity() *entity.QR {
	return &entity.QR{
		ID:             r.ID,
		OriginalURL:    r.OriginalURL,
		ShortCode:      r.ShortCode,
		TrackedURL:     r.TrackedURL,
		QRImageDataURL: r.QRImageDataURL,
		QRStats: entity.QRStats{
			ScanCount: r.ScanCount,
		},
		Seq:       r.Seq,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: utcPtr(r.UpdatedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger used to report recovery from corrupted state.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// WithNowFunc overrides the clock used for CreatedAt and UpdatedAt.
func WithNowFunc(fn func() time.Time) Option {
	return func(r *Repository) {
		r.nowFunc = fn
	}
}

// Repository is a QR repository persisted as a JSON array in a single file.
type Repository struct {
	path    string
	logger  *slog.Logger
	nowFunc func() time.Time

	mu     sync.RWMutex
	qrs    []*entity.QR // committed snapshot in insertion order, elements are never mutated
	byCode map[string]int
	seq    int64
}

// New opens the repository stored at path, creating the file and its parent
// directories when missing. A file that cannot be parsed is moved aside to
// "<path>.corrupt-<timestamp>" and the repository starts empty.
func New(path string, opts ...Option) (*Repository, error) {
	const op = "adapter.repository.file.New"

	r := &Repository{
		path:    path,
		logger:  slog.Default(),
		nowFunc: time.Now,
		byCode:  make(map[string]int),
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%s: failed to create data directory: %w", op, err)
	}

	if err := r.load(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return r, nil
}

// Path returns the location of the backing file.
func (r *Repository) Path() string {
	return r.path
}

func (r *Repository) load() error {
	const op = "adapter.repository.file.Repository.load"

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r.persist(nil)
		}

		return fmt.Errorf("%s: failed to read store file: %w", op, err)
	}

	qrs, err := decode(data)
	if err != nil {
		return r.quarantine(err)
	}

	r.publish(qrs)

	return nil
}

// quarantine moves the unreadable file aside and starts from an empty store.
func (r *Repository) quarantine(cause error) error {
	const op = "adapter.repository.file.Repository.quarantine"

	dst := fmt.Sprintf("%s.corrupt-%s", r.path, r.nowFunc().UTC().Format(corruptTimeLayout))

	if err := os.Rename(r.path, dst); err != nil {
		return fmt.Errorf("%s: failed to move corrupted store file aside: %w", op, err)
	}

	r.logger.Error(
		"store file is corrupted, moved aside and starting empty",
		slog.String("op", op),
		slog.String("path", r.path),
		slog.String("moved_to", dst),
		slog.Any("err", cause),
	)

	if err := r.persist(nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.publish(nil)

	return nil
}

func decode(data []byte) ([]*entity.QR, error) {
	const op = "adapter.repository.file.decode"

	var recs []qrRecord

	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, entity.ErrStorageCorrupted, err)
	}

	if recs == nil {
		return nil, fmt.Errorf("%s: %w: top-level value is not an array", op, entity.ErrStorageCorrupted)
	}

	renumber := false
	codes := make(map[string]struct{}, len(recs))
	seqs := make(map[int64]struct{}, len(recs))

	for i, rec := range recs {
		switch {
		case rec.ID == "" || rec.ShortCode == "" || rec.OriginalURL == "":
			return nil, fmt.Errorf("%s: %w: record %d is missing required fields", op, entity.ErrStorageCorrupted, i)
		case rec.ScanCount < 0:
			return nil, fmt.Errorf("%s: %w: record %d has negative scan count", op, entity.ErrStorageCorrupted, i)
		}

		if _, ok := codes[rec.ShortCode]; ok {
			return nil, fmt.Errorf("%s: %w: duplicate short code %q", op, entity.ErrStorageCorrupted, rec.ShortCode)
		}
		codes[rec.ShortCode] = struct{}{}

		if rec.Seq <= 0 {
			renumber = true
			continue
		}
		if _, ok := seqs[rec.Seq]; ok {
			renumber = true
		}
		seqs[rec.Seq] = struct{}{}
	}

	qrs := make([]*entity.QR, len(recs))
	for i := range recs {
		// Files written without sequence numbers keep their insertion order.
		if renumber {
			recs[i].Seq = int64(i + 1)
		}
		qrs[i] = recs[i].toEntity()
	}

	return qrs, nil
}

// persist atomically replaces the store file with the given snapshot.
func (r *Repository) persist(qrs []*entity.QR) error {
	const op = "adapter.repository.file.Repository.persist"

	recs := make([]qrRecord, len(qrs))
	for i, qr := range qrs {
		recs[i] = toRecord(qr)
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: failed to encode records: %w", op, err)
	}

	if err := writeFileAtomic(r.path, data, 0o644); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// publish makes qrs the committed snapshot. The caller must hold the write lock
// or have exclusive access to r.
func (r *Repository) publish(qrs []*entity.QR) {
	byCode := make(map[string]int, len(qrs))
	var seq int64

	for i, qr := range qrs {
		byCode[qr.ShortCode] = i
		seq = max(seq, qr.Seq)
	}

	r.qrs = qrs
	r.byCode = byCode
	r.seq = seq
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	const op = "adapter.repository.file.writeFileAtomic"

	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%s: failed to create temp file: %w", op, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("%s: failed to write temp file: %w", op, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%s: failed to sync temp file: %w", op, err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("%s: failed to chmod temp file: %w", op, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%s: failed to close temp file: %w", op, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%s: failed to replace store file: %w", op, err)
	}

	// The rename is durable only once the directory entry is flushed.
	if d, derr := os.Open(dir); derr == nil {
		d.Sync()
		d.Close()
	}

	return nil
}

// Exists reports whether a QR with the short code is stored.
func (r *Repository) Exists(_ context.Context, shortCode string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byCode[shortCode]
	return ok, nil
}

// Save stores a new QR. The ID, sequence number and creation time are assigned
// here; scan statistics always start from zero.
func (r *Repository) Save(_ context.Context, qr *entity.QR) (*entity.QR, error) {
	const op = "adapter.repository.file.Repository.Save"

	originalURL, err := entity.NormalizeURL(qr.OriginalURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if qr.ShortCode == "" {
		return nil, fmt.Errorf("%s: empty short code", op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byCode[qr.ShortCode]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	rec := &entity.QR{
		ID:             uuid.NewString(),
		OriginalURL:    originalURL,
		ShortCode:      qr.ShortCode,
		TrackedURL:     qr.TrackedURL,
		QRImageDataURL: qr.QRImageDataURL,
		Seq:            r.seq + 1,
		CreatedAt:      r.nowFunc().UTC(),
	}

	next := append(r.qrs[:len(r.qrs):len(r.qrs)], rec)

	if err := r.persist(next); err != nil {
		return nil, fmt.Errorf("%s: failed to save qr: %w", op, err)
	}

	r.qrs = next
	r.byCode[rec.ShortCode] = len(next) - 1
	r.seq = rec.Seq

	return rec.Clone(), nil
}

// IncrementScan atomically increments the scan count of the QR with the short
// code and returns the updated QR.
func (r *Repository) IncrementScan(_ context.Context, shortCode string) (*entity.QR, error) {
	const op = "adapter.repository.file.Repository.IncrementScan"

	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byCode[shortCode]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrQRNotFound)
	}

	updated := r.qrs[i].Clone()
	updated.ScanCount++
	now := r.nowFunc().UTC()
	updated.UpdatedAt = &now

	next := slices.Clone(r.qrs)
	next[i] = updated

	if err := r.persist(next); err != nil {
		return nil, fmt.Errorf("%s: failed to update scan count: %w", op, err)
	}

	r.qrs = next

	return updated.Clone(), nil
}

// List returns copies of all QRs, most recently created first.
func (r *Repository) List(_ context.Context) ([]*entity.QR, error) {
	r.mu.RLock()
	qrs := make([]*entity.QR, len(r.qrs))
	for i, qr := range r.qrs {
		qrs[i] = qr.Clone()
	}
	r.mu.RUnlock()

	entity.SortByRecency(qrs)

	return qrs, nil
}
