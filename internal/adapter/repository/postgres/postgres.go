package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/qr-tracker/internal/entity"
)

const uniqueViolationErrCode = "23505"

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

type qrDB struct {
	Seq            int64        `db:"seq"`
	ID             string       `db:"id"`
	ShortCode      string       `db:"short_code"`
	OriginalURL    string       `db:"original_url"`
	TrackedURL     string       `db:"tracked_url"`
	QRImageDataURL string       `db:"qr_image_data_url"`
	ScanCount      int64        `db:"scan_count"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      sql.NullTime `db:"updated_at"`
}

func (q *qrDB) toEntity() *entity.QR {
	qr := &entity.QR{
		ID:             q.ID,
		OriginalURL:    q.OriginalURL,
		ShortCode:      q.ShortCode,
		TrackedURL:     q.TrackedURL,
		QRImageDataURL: q.QRImageDataURL,
		QRStats: entity.QRStats{
			ScanCount: q.ScanCount,
		},
		Seq:       q.Seq,
		CreatedAt: q.CreatedAt.UTC(),
	}

	if q.UpdatedAt.Valid {
		t := q.UpdatedAt.Time.UTC()
		qr.UpdatedAt = &t
	}

	return qr
}

type QRRepository struct {
	db *sqlx.DB
}

func NewQRRepository(db *sqlx.DB) *QRRepository {
	return &QRRepository{db: db}
}

func (r *QRRepository) Exists(ctx context.Context, shortCode string) (bool, error) {
	const op = "adapter.repository.postgres.QRRepository.Exists"
	const query = `SELECT EXISTS(SELECT 1 FROM qr_codes WHERE short_code = $1)`

	var exists bool

	if err := r.db.GetContext(ctx, &exists, query, shortCode); err != nil {
		return false, fmt.Errorf("%s: failed to check qr_codes table: %w", op, err)
	}

	return exists, nil
}

func (r *QRRepository) Save(ctx context.Context, qr *entity.QR) (*entity.QR, error) {
	const op = "adapter.repository.postgres.QRRepository.Save"
	const query = `INSERT INTO qr_codes(id, short_code, original_url, tracked_url, qr_image_data_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`

	originalURL, err := entity.NormalizeURL(qr.OriginalURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var row qrDB

	err = r.db.GetContext(ctx, &row, query, uuid.NewString(), qr.ShortCode, originalURL, qr.TrackedURL, qr.QRImageDataURL)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into qr_codes table: %w", op, err)
	}

	return row.toEntity(), nil
}

func (r *QRRepository) IncrementScan(ctx context.Context, shortCode string) (*entity.QR, error) {
	const op = "adapter.repository.postgres.QRRepository.IncrementScan"
	const query = `UPDATE qr_codes
		SET scan_count = scan_count + 1, updated_at = NOW()
		WHERE short_code = $1
		RETURNING *`

	var row qrDB

	if err := r.db.GetContext(ctx, &row, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrQRNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update qr_codes table row: %w", op, err)
	}

	return row.toEntity(), nil
}

func (r *QRRepository) List(ctx context.Context) ([]*entity.QR, error) {
	const op = "adapter.repository.postgres.QRRepository.List"
	const query = `SELECT * FROM qr_codes ORDER BY created_at DESC, seq DESC`

	var rows []qrDB

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%s: failed to select from qr_codes table: %w", op, err)
	}

	qrs := make([]*entity.QR, len(rows))
	for i := range rows {
		qrs[i] = rows[i].toEntity()
	}

	return qrs, nil
}
