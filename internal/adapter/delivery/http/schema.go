package http

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/qr-tracker/internal/entity"
)

const statusError = "error"

type healthResponse struct {
	Status string `json:"status"`
}

// qrRequest represents the structure for a request to register a URL.
type qrRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// dataResponse wraps every successful API payload.
type dataResponse struct {
	Data any `json:"data"`
}

// qrResponse represents a registered QR as seen by API clients.
type qrResponse struct {
	ID             string     `json:"id"`
	OriginalURL    string     `json:"originalUrl"`
	ShortCode      string     `json:"shortCode"`
	TrackedURL     string     `json:"trackedUrl"`
	QRImageDataURL string     `json:"qrImageDataUrl"`
	ScanCount      int64      `json:"scanCount"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

func toQRResponse(qr *entity.QR) qrResponse {
	return qrResponse{
		ID:             qr.ID,
		OriginalURL:    qr.OriginalURL,
		ShortCode:      qr.ShortCode,
		TrackedURL:     qr.TrackedURL,
		QRImageDataURL: qr.QRImageDataURL,
		ScanCount:      qr.ScanCount,
		CreatedAt:      qr.CreatedAt,
		UpdatedAt:      qr.UpdatedAt,
	}
}

func toQRResponses(qrs []*entity.QR) []qrResponse {
	resp := make([]qrResponse, len(qrs))
	for i, qr := range qrs {
		resp[i] = toQRResponse(qr)
	}
	return resp
}

// validationError represents an individual validation error.
type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorResponse represents a structured error response. Error carries a
// human-readable reason that clients can show as is.
type errorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Errors  []validationError `json:"errors,omitempty"`
}

const invalidURLText = "Please provide a valid URL starting with http:// or https://"

var (
	emptyRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "empty request body",
		Error:   "Request body is empty, expected a JSON object with a url field",
	}

	invalidRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "invalid request body",
		Error:   "Request body must be a JSON object with a url field",
	}

	invalidURLResponse = errorResponse{
		Status:  statusError,
		Message: "invalid url",
		Error:   invalidURLText,
		Errors: []validationError{
			{Field: "url", Message: "url must use http or https and include a host"},
		},
	}

	maxRetriesResponse = errorResponse{
		Status:  statusError,
		Message: "short code generation failed",
		Error:   "Could not generate a unique QR code",
	}

	serverErrorResponse = errorResponse{
		Status:  statusError,
		Message: "server error occurred",
		Error:   "Internal server error",
	}
)

func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "url":
		return "invalid url"
	default:
		return "invalid value"
	}
}

func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

func validationErrorResponse(err error) errorResponse {
	return errorResponse{
		Status:  statusError,
		Message: "validation error",
		Error:   invalidURLText,
		Errors:  getValidationErrors(err),
	}
}
