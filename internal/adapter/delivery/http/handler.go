package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/qr-tracker/internal/entity"
	"github.com/vadimbarashkov/qr-tracker/internal/usecase"
)

const qrNotFoundText = "QR code not found"

func handleHealth(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, healthResponse{Status: "ok"})
}

type qrUseCase interface {
	ShortenURL(ctx context.Context, originalURL string) (*entity.QR, error)
	ResolveShortCode(ctx context.Context, shortCode string) (*entity.QR, error)
	ListQRs(ctx context.Context) ([]*entity.QR, error)
}

type qrHandler struct {
	useCase  qrUseCase
	validate *validator.Validate
}

func newQRHandler(useCase qrUseCase, validate *validator.Validate) *qrHandler {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &qrHandler{
		useCase:  useCase,
		validate: validate,
	}
}

func (h *qrHandler) listQRs(w http.ResponseWriter, r *http.Request) {
	qrs, err := h.useCase.ListQRs(r.Context())
	if err != nil {
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, dataResponse{Data: toQRResponses(qrs)})
}

func (h *qrHandler) createQR(w http.ResponseWriter, r *http.Request) {
	var req qrRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, emptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidRequestBodyResponse)
		return
	}

	req.URL = strings.TrimSpace(req.URL)

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationErrorResponse(err))
		return
	}

	qr, err := h.useCase.ShortenURL(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidURL) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, invalidURLResponse)
			return
		}

		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		if errors.Is(err, usecase.ErrMaxRetriesExceeded) {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, maxRetriesResponse)
			return
		}

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, dataResponse{Data: toQRResponse(qr)})
}

func (h *qrHandler) redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	qr, err := h.useCase.ResolveShortCode(r.Context(), shortCode)
	if err != nil {
		if errors.Is(err, entity.ErrQRNotFound) {
			render.Status(r, http.StatusNotFound)
			render.PlainText(w, r, qrNotFoundText)
			return
		}

		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusInternalServerError)
		render.PlainText(w, r, serverErrorResponse.Message)
		return
	}

	http.Redirect(w, r, qr.OriginalURL, http.StatusFound)
}
