package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/require"
	"github.com/vadimbarashkov/qr-tracker/internal/adapter/qrcode"
	"github.com/vadimbarashkov/qr-tracker/internal/adapter/repository/file"
	"github.com/vadimbarashkov/qr-tracker/internal/shortcode"
	"github.com/vadimbarashkov/qr-tracker/internal/usecase"

	qr "github.com/skip2/go-qrcode"
)

func TestRouter_EndToEnd(t *testing.T) {
	const baseURL = "http://localhost:5000"

	repo, err := file.New(filepath.Join(t.TempDir(), "qrs.json"))
	require.NoError(t, err)

	gen, err := shortcode.New(shortcode.DefaultLength)
	require.NoError(t, err)

	renderer, err := qrcode.NewRenderer(qrcode.DefaultSize, qr.Medium)
	require.NoError(t, err)

	uc := usecase.New(baseURL, gen, renderer, repo)
	logger := httplog.NewLogger("", httplog.Options{Writer: io.Discard})

	server := httptest.NewServer(NewRouter(logger, []string{"http://localhost:3000"}, uc))
	t.Cleanup(server.Close)

	e := httpexpect.Default(t, server.URL)

	data := e.POST("/api/qrs").
		WithJSON(map[string]string{"url": "https://example.com"}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object().
		Value("data").Object()

	data.Value("shortCode").String().Length().IsEqual(shortcode.DefaultLength)
	shortCode := data.Value("shortCode").String().Raw()
	data.Value("trackedUrl").String().HasSuffix("/r/" + shortCode)
	data.Value("trackedUrl").String().HasPrefix(baseURL)
	data.HasValue("scanCount", 0)
	require.True(t, strings.HasPrefix(data.Value("qrImageDataUrl").String().Raw(), "data:image/png;base64,"))

	for i := 0; i < 3; i++ {
		e.GET("/r/"+shortCode).
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com")
	}

	list := e.GET("/api/qrs").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("data").Array()

	list.Length().IsEqual(1)
	list.Value(0).Object().HasValue("shortCode", shortCode)
	list.Value(0).Object().HasValue("scanCount", 3)
	list.Value(0).Object().ContainsKey("updatedAt")

	e.GET("/r/unknown0").
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusNotFound).
		Text().IsEqual(qrNotFoundText)

	for _, url := range []string{"ftp://x", "not-a-url", ""} {
		e.POST("/api/qrs").
			WithJSON(map[string]string{"url": url}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object().
			HasValue("error", invalidURLText)
	}
}
