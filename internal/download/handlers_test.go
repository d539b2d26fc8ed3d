package download_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-satstore/internal/download"
)

func serveToken(t *testing.T, h *download.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/download/"+token, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("token", token)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	return rr
}

func TestGetStreamsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p1"), []byte("file-bytes"), 0o600))

	issuer := download.Issuer{Secret: "dl-secret", TTL: time.Hour}
	h := &download.Handler{Issuer: issuer, UploadPath: dir, Logger: zerolog.Nop()}

	token, err := issuer.Mint("p1", "ord_1")
	require.NoError(t, err)

	rr := serveToken(t, h, token)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "file-bytes", rr.Body.String())
	require.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
}

func TestGetRejectsExpiredToken(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	issuer := download.Issuer{Secret: "dl-secret", TTL: time.Minute, Now: func() time.Time { return now }}
	token, err := issuer.Mint("p1", "ord_1")
	require.NoError(t, err)

	h := &download.Handler{
		Issuer:     download.Issuer{Secret: "dl-secret", TTL: time.Minute, Now: func() time.Time { return now.Add(time.Hour) }},
		UploadPath: dir,
		Logger:     zerolog.Nop(),
	}
	rr := serveToken(t, h, token)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetRejectsGarbageToken(t *testing.T) {
	h := &download.Handler{
		Issuer:     download.Issuer{Secret: "dl-secret", TTL: time.Hour},
		UploadPath: t.TempDir(),
		Logger:     zerolog.Nop(),
	}
	rr := serveToken(t, h, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetUnknownFileIs404(t *testing.T) {
	issuer := download.Issuer{Secret: "dl-secret", TTL: time.Hour}
	h := &download.Handler{Issuer: issuer, UploadPath: t.TempDir(), Logger: zerolog.Nop()}
	token, err := issuer.Mint("missing", "ord_1")
	require.NoError(t, err)

	rr := serveToken(t, h, token)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetBlocksPathTraversal(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.Mkdir(uploads, 0o700))

	issuer := download.Issuer{Secret: "dl-secret", TTL: time.Hour}
	h := &download.Handler{Issuer: issuer, UploadPath: uploads, Logger: zerolog.Nop()}
	token, err := issuer.Mint("../secret.txt", "ord_1")
	require.NoError(t, err)

	rr := serveToken(t, h, token)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetUnconfiguredSecretIs500(t *testing.T) {
	h := &download.Handler{UploadPath: t.TempDir(), Logger: zerolog.Nop()}
	rr := serveToken(t, h, "a.b")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
