package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vadimbarashkov/qr-tracker/internal/entity"
)

const maxRetries = 5

var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")

type qrRepository interface {
	Exists(ctx context.Context, shortCode string) (bool, error)
	Save(ctx context.Context, qr *entity.QR) (*entity.QR, error)
	IncrementScan(ctx context.Context, shortCode string) (*entity.QR, error)
	List(ctx context.Context) ([]*entity.QR, error)
}

type codeGenerator interface {
	Generate() (string, error)
}

type qrRenderer interface {
	Render(content string) (string, error)
}

type QRUseCase struct {
	baseURL  string
	codeGen  codeGenerator
	renderer qrRenderer
	qrRepo   qrRepository
}

func New(baseURL string, codeGen codeGenerator, renderer qrRenderer, qrRepo qrRepository) *QRUseCase {
	return &QRUseCase{
		baseURL:  strings.TrimRight(baseURL, "/"),
		codeGen:  codeGen,
		renderer: renderer,
		qrRepo:   qrRepo,
	}
}

func (uc *QRUseCase) trackedURL(shortCode string) string {
	return uc.baseURL + "/r/" + shortCode
}

// ShortenURL registers originalURL under a fresh short code. A candidate that
// is already taken, either before rendering or at commit time, is replaced by a
// new one up to maxRetries times.
func (uc *QRUseCase) ShortenURL(ctx context.Context, originalURL string) (*entity.QR, error) {
	const op = "usecase.QRUseCase.ShortenURL"

	originalURL, err := entity.NormalizeURL(originalURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for i := 0; i < maxRetries; i++ {
		shortCode, err := uc.codeGen.Generate()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		exists, err := uc.qrRepo.Exists(ctx, shortCode)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to check short code: %w", op, err)
		}
		if exists {
			continue
		}

		trackedURL := uc.trackedURL(shortCode)

		image, err := uc.renderer.Render(trackedURL)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to render qr code: %w", op, err)
		}

		qr, err := uc.qrRepo.Save(ctx, &entity.QR{
			OriginalURL:    originalURL,
			ShortCode:      shortCode,
			TrackedURL:     trackedURL,
			QRImageDataURL: image,
		})
		if err != nil {
			if errors.Is(err, entity.ErrShortCodeExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to save qr: %w", op, err)
		}

		qr.TrackedURL = trackedURL

		return qr, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveShortCode counts a scan of shortCode and returns the updated QR.
func (uc *QRUseCase) ResolveShortCode(ctx context.Context, shortCode string) (*entity.QR, error) {
	const op = "usecase.QRUseCase.ResolveShortCode"

	qr, err := uc.qrRepo.IncrementScan(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	qr.TrackedURL = uc.trackedURL(qr.ShortCode)

	return qr, nil
}

func (uc *QRUseCase) ListQRs(ctx context.Context) ([]*entity.QR, error) {
	const op = "usecase.QRUseCase.ListQRs"

	qrs, err := uc.qrRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list qrs: %w", op, err)
	}

	for _, qr := range qrs {
		qr.TrackedURL = uc.trackedURL(qr.ShortCode)
	}

	return qrs, nil
}
