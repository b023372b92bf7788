// Package redis implements the QR repository on top of Redis.
//
// Each QR is a hash under "<prefix>:qr:<short code>", a sorted set
// "<prefix>:qrs" orders short codes by sequence number and "<prefix>:seq" holds
// the last assigned sequence number. Every operation that touches more than one
// key runs as a Lua script, so it is atomic on the server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vadimbarashkov/qr-tracker/internal/entity"

	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldID             = "id"
	fieldShortCode      = "short_code"
	fieldOriginalURL    = "original_url"
	fieldTrackedURL     = "tracked_url"
	fieldQRImageDataURL = "qr_image_data_url"
	fieldScanCount      = "scan_count"
	fieldSeq            = "seq"
	fieldCreatedAt      = "created_at"
	fieldUpdatedAt      = "updated_at"
)

// KEYS: qr hash, index, seq counter. ARGV: id, short code, original url,
// tracked url, image, created at. Returns 0 when the short code is taken.
var saveScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local seq = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1],
	'id', ARGV[1],
	'short_code', ARGV[2],
	'original_url', ARGV[3],
	'tracked_url', ARGV[4],
	'qr_image_data_url', ARGV[5],
	'scan_count', 0,
	'seq', seq,
	'created_at', ARGV[6])
redis.call('ZADD', KEYS[2], seq, ARGV[2])
return seq
`)

// KEYS: qr hash. ARGV: updated at.
var incrementScanScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'scan_count', 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: index. ARGV: qr hash key prefix.
var listScript = goredis.NewScript(`
local codes = redis.call('ZREVRANGE', KEYS[1], 0, -1)
local out = {}
for i, code in ipairs(codes) do
	out[i] = redis.call('HGETALL', ARGV[1] .. code)
end
return out
`)

// Option configures a QRRepository.
type Option func(*QRRepository)

// WithKeyPrefix sets the prefix of all keys used by the repository.
func WithKeyPrefix(prefix string) Option {
	return func(r *QRRepository) {
		r.prefix = prefix
	}
}

// WithNowFunc overrides the clock used for CreatedAt and UpdatedAt.
func WithNowFunc(fn func() time.Time) Option {
	return func(r *QRRepository) {
		r.nowFunc = fn
	}
}

type QRRepository struct {
	client  goredis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

func NewQRRepository(client goredis.UniversalClient, opts ...Option) *QRRepository {
	r := &QRRepository{
		client:  client,
		prefix:  "qr-tracker",
		nowFunc: time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *QRRepository) qrKeyPrefix() string {
	return r.prefix + ":qr:"
}

func (r *QRRepository) qrKey(shortCode string) string {
	return r.qrKeyPrefix() + shortCode
}

func (r *QRRepository) indexKey() string {
	return r.prefix + ":qrs"
}

func (r *QRRepository) seqKey() string {
	return r.prefix + ":seq"
}

func (r *QRRepository) Exists(ctx context.Context, shortCode string) (bool, error) {
	const op = "adapter.repository.redis.QRRepository.Exists"

	n, err := r.client.Exists(ctx, r.qrKey(shortCode)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: failed to check qr key: %w", op, err)
	}

	return n == 1, nil
}

func (r *QRRepository) Save(ctx context.Context, qr *entity.QR) (*entity.QR, error) {
	const op = "adapter.repository.redis.QRRepository.Save"

	originalURL, err := entity.NormalizeURL(qr.OriginalURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if qr.ShortCode == "" {
		return nil, fmt.Errorf("%s: empty short code", op)
	}

	rec := &entity.QR{
		ID:             uuid.NewString(),
		OriginalURL:    originalURL,
		ShortCode:      qr.ShortCode,
		TrackedURL:     qr.TrackedURL,
		QRImageDataURL: qr.QRImageDataURL,
		CreatedAt:      r.nowFunc().UTC(),
	}

	keys := []string{r.qrKey(rec.ShortCode), r.indexKey(), r.seqKey()}
	args := []any{
		rec.ID,
		rec.ShortCode,
		rec.OriginalURL,
		rec.TrackedURL,
		rec.QRImageDataURL,
		rec.CreatedAt.Format(time.RFC3339Nano),
	}

	seq, err := saveScript.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to save qr: %w", op, err)
	}

	if seq == 0 {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	rec.Seq = seq

	return rec, nil
}

func (r *QRRepository) IncrementScan(ctx context.Context, shortCode string) (*entity.QR, error) {
	const op = "adapter.repository.redis.QRRepository.IncrementScan"

	updatedAt := r.nowFunc().UTC().Format(time.RFC3339Nano)

	res, err := incrementScanScript.Run(ctx, r.client, []string{r.qrKey(shortCode)}, updatedAt).Slice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrQRNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update scan count: %w", op, err)
	}

	qr, err := fromReply(res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return qr, nil
}

func (r *QRRepository) List(ctx context.Context) ([]*entity.QR, error) {
	const op = "adapter.repository.redis.QRRepository.List"

	res, err := listScript.Run(ctx, r.client, []string{r.indexKey()}, r.qrKeyPrefix()).Slice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%s: failed to list qrs: %w", op, err)
	}

	qrs := make([]*entity.QR, 0, len(res))
	for _, item := range res {
		reply, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: %w: unexpected reply type %T", op, entity.ErrStorageCorrupted, item)
		}

		qr, err := fromReply(reply)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		qrs = append(qrs, qr)
	}

	entity.SortByRecency(qrs)

	return qrs, nil
}

// fromReply converts a flat HGETALL reply into a QR.
func fromReply(reply []any) (*entity.QR, error) {
	const op = "adapter.repository.redis.fromReply"

	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("%s: %w: odd number of hash fields", op, entity.ErrStorageCorrupted)
	}

	h := make(map[string]string, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		k, kok := reply[i].(string)
		v, vok := reply[i+1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("%s: %w: non-string hash field", op, entity.ErrStorageCorrupted)
		}
		h[k] = v
	}

	scanCount, err := strconv.ParseInt(h[fieldScanCount], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: scan count: %w", op, entity.ErrStorageCorrupted, err)
	}

	seq, err := strconv.ParseInt(h[fieldSeq], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: seq: %w", op, entity.ErrStorageCorrupted, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, h[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("%s: %w: created at: %w", op, entity.ErrStorageCorrupted, err)
	}

	qr := &entity.QR{
		ID:             h[fieldID],
		OriginalURL:    h[fieldOriginalURL],
		ShortCode:      h[fieldShortCode],
		TrackedURL:     h[fieldTrackedURL],
		QRImageDataURL: h[fieldQRImageDataURL],
		QRStats: entity.QRStats{
			ScanCount: scanCount,
		},
		Seq:       seq,
		CreatedAt: createdAt.UTC(),
	}

	if v, ok := h[fieldUpdatedAt]; ok {
		updatedAt, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: updated at: %w", op, entity.ErrStorageCorrupted, err)
		}
		updatedAt = updatedAt.UTC()
		qr.UpdatedAt = &updatedAt
	}

	return qr, nil
}
