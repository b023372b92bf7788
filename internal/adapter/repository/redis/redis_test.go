package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vadimbarashkov/qr-tracker/internal/entity"
)

func TestFromReply(t *testing.T) {
	createdAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	updatedAt := createdAt.Add(time.Minute)

	t.Run("success", func(t *testing.T) {
		qr, err := fromReply([]any{
			fieldID, "id-1",
			fieldShortCode, "abcd1234",
			fieldOriginalURL, "https://example.com",
			fieldTrackedURL, "http://localhost:5000/r/abcd1234",
			fieldQRImageDataURL, "data:image/png;base64,AAAA",
			fieldScanCount, "3",
			fieldSeq, "7",
			fieldCreatedAt, createdAt.Format(time.RFC3339Nano),
			fieldUpdatedAt, updatedAt.Format(time.RFC3339Nano),
		})

		assert.NoError(t, err)
		assert.Equal(t, &entity.QR{
			ID:             "id-1",
			OriginalURL:    "https://example.com",
			ShortCode:      "abcd1234",
			TrackedURL:     "http://localhost:5000/r/abcd1234",
			QRImageDataURL: "data:image/png;base64,AAAA",
			QRStats:        entity.QRStats{ScanCount: 3},
			Seq:            7,
			CreatedAt:      createdAt,
			UpdatedAt:      &updatedAt,
		}, qr)
	})

	tests := []struct {
		name  string
		reply []any
	}{
		{
			name:  "odd number of fields",
			reply: []any{fieldID},
		},
		{
			name:  "non-string field",
			reply: []any{fieldScanCount, int64(1)},
		},
		{
			name:  "bad scan count",
			reply: []any{fieldScanCount, "x", fieldSeq, "1", fieldCreatedAt, createdAt.Format(time.RFC3339Nano)},
		},
		{
			name:  "bad created at",
			reply: []any{fieldScanCount, "0", fieldSeq, "1", fieldCreatedAt, "yesterday"},
		},
		{
			name: "bad updated at",
			reply: []any{
				fieldScanCount, "0", fieldSeq, "1",
				fieldCreatedAt, createdAt.Format(time.RFC3339Nano),
				fieldUpdatedAt, "soon",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qr, err := fromReply(tt.reply)

			assert.ErrorIs(t, err, entity.ErrStorageCorrupted)
			assert.Nil(t, qr)
		})
	}
}

func TestKeys(t *testing.T) {
	repo := NewQRRepository(nil, WithKeyPrefix("p"))

	assert.Equal(t, "p:qr:abc", repo.qrKey("abc"))
	assert.Equal(t, "p:qrs", repo.indexKey())
	assert.Equal(t, "p:seq", repo.seqKey())
}
